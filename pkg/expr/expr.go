// Package expr provides the transform expressions a scan planner attaches to
// scan files, and an [Evaluator] that applies them to an [arrow.Record] to
// turn physical data into logical data.
package expr

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// Expression represents an operation that can be evaluated to produce a column.
type Expression interface {
	fmt.Stringer
	isExpr()
}

// Types implementing [Expression].
type (
	// Column is an [Expression] that looks up the column by name in the record
	// supplied to [Evaluator.Evaluate].
	//
	// Unlike a Literal, a missing column is an error.
	Column struct{ Name string }

	// Literal is an [Expression] that repeats a single scalar value for every
	// row of the input record.
	Literal struct{ Value scalar.Scalar }

	// Struct is an [Expression] producing one column per field. The top-level
	// transform of a scan file is a Struct with one field per logical column,
	// in logical schema order.
	Struct struct{ Fields []Expression }
)

func (*Column) isExpr()  {}
func (*Literal) isExpr() {}
func (*Struct) isExpr()  {}

// NewColumn returns a reference to the input column name.
func NewColumn(name string) *Column { return &Column{Name: name} }

// NewLiteral returns a literal expression for v.
func NewLiteral(v scalar.Scalar) *Literal { return &Literal{Value: v} }

// NewStruct returns a struct expression made of fields.
func NewStruct(fields ...Expression) *Struct { return &Struct{Fields: fields} }

func (c *Column) String() string { return "col(" + c.Name + ")" }

func (l *Literal) String() string {
	if l.Value == nil || !l.Value.IsValid() {
		return "null"
	}
	return fmt.Sprintf("%s(%s)", l.Value.DataType(), l.Value)
}

func (s *Struct) String() string {
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		parts = append(parts, f.String())
	}
	return "struct(" + strings.Join(parts, ", ") + ")"
}
