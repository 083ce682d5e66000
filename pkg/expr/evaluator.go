package expr

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

var (
	// ErrUnknownColumn is returned when an expression references a column that
	// is not part of the input schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrShape is returned when an expression does not produce the shape of
	// the output schema.
	ErrShape = errors.New("expression does not match output schema")
)

// Evaluator applies an expression to records of a fixed input schema,
// producing records of a fixed output schema.
//
// An Evaluator holds no per-record state. It may be reused for any number of
// records but is not safe for concurrent use.
type Evaluator struct {
	alloc  memory.Allocator
	input  *arrow.Schema
	output *arrow.Schema
	fields []Expression
}

// NewEvaluator validates e against the input and output schemas and returns
// an Evaluator for it. A top-level [Struct] maps its fields onto the fields
// of output; any other expression must produce the single output column.
func NewEvaluator(alloc memory.Allocator, input *arrow.Schema, e Expression, output *arrow.Schema) (*Evaluator, error) {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	fields := []Expression{e}
	if s, ok := e.(*Struct); ok {
		fields = s.Fields
	}
	if len(fields) != output.NumFields() {
		return nil, fmt.Errorf("%w: %d expressions for %d output fields", ErrShape, len(fields), output.NumFields())
	}

	for i, f := range fields {
		if err := validate(input, f, output.Field(i).Type); err != nil {
			return nil, fmt.Errorf("field %s: %w", output.Field(i).Name, err)
		}
	}

	return &Evaluator{
		alloc:  alloc,
		input:  input,
		output: output,
		fields: fields,
	}, nil
}

func validate(input *arrow.Schema, e Expression, dt arrow.DataType) error {
	switch e := e.(type) {
	case *Column:
		if !input.HasField(e.Name) {
			return fmt.Errorf("%w %q", ErrUnknownColumn, e.Name)
		}
		return nil

	case *Literal:
		if e.Value == nil {
			return fmt.Errorf("%w: literal without value", ErrShape)
		}
		return nil

	case *Struct:
		st, ok := dt.(*arrow.StructType)
		if !ok {
			return fmt.Errorf("%w: struct expression for %s", ErrShape, dt)
		}
		if st.NumFields() != len(e.Fields) {
			return fmt.Errorf("%w: %d expressions for %d struct fields", ErrShape, len(e.Fields), st.NumFields())
		}
		for i, f := range e.Fields {
			if err := validate(input, f, st.Field(i).Type); err != nil {
				return fmt.Errorf("field %s: %w", st.Field(i).Name, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported expression %T", e)
	}
}

// Evaluate applies the expression to rec. The returned record has the output
// schema and the same number of rows as rec. The caller owns the returned
// record; rec is not released.
func (e *Evaluator) Evaluate(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	ctx = compute.WithAllocator(ctx, e.alloc)

	cols := make([]arrow.Array, 0, len(e.fields))
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	for i, f := range e.fields {
		col, err := e.eval(ctx, f, rec, e.output.Field(i).Type)
		if err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", e.output.Field(i).Name, err)
		}
		cols = append(cols, col)
	}

	// NewRecord retains cols; the deferred release drops our references.
	return array.NewRecord(e.output, cols, rec.NumRows()), nil
}

func (e *Evaluator) eval(ctx context.Context, ex Expression, rec arrow.Record, dt arrow.DataType) (arrow.Array, error) {
	switch ex := ex.(type) {
	case *Column:
		idx := rec.Schema().FieldIndices(ex.Name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w %q", ErrUnknownColumn, ex.Name)
		}
		col := rec.Column(idx[0])
		if arrow.TypeEqual(col.DataType(), dt) {
			col.Retain()
			return col, nil
		}
		return compute.CastArray(ctx, col, compute.SafeCastOptions(dt))

	case *Literal:
		sc := ex.Value
		if !arrow.TypeEqual(sc.DataType(), dt) {
			if !sc.IsValid() {
				sc = scalar.MakeNullScalar(dt)
			} else {
				cast, err := sc.CastTo(dt)
				if err != nil {
					return nil, fmt.Errorf("casting literal %s to %s: %w", ex, dt, err)
				}
				sc = cast
			}
		}
		return scalar.MakeArrayFromScalar(sc, int(rec.NumRows()), e.alloc)

	case *Struct:
		st := dt.(*arrow.StructType)
		children := make([]arrow.Array, 0, len(ex.Fields))
		defer func() {
			for _, c := range children {
				c.Release()
			}
		}()
		for i, f := range ex.Fields {
			child, err := e.eval(ctx, f, rec, st.Field(i).Type)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		arr, err := array.NewStructArrayWithFields(children, st.Fields())
		if err != nil {
			return nil, err
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("unsupported expression %T", ex)
	}
}
