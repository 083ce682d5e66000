package delta

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	jsoniter "github.com/json-iterator/go"
)

type structType struct {
	Type   string        `json:"type"`
	Fields []structField `json:"fields"`
}

type structField struct {
	Name     string              `json:"name"`
	Type     jsoniter.RawMessage `json:"type"`
	Nullable bool                `json:"nullable"`
	Metadata map[string]any      `json:"metadata"`
}

// complexType covers the object form of a type: struct, array and map.
type complexType struct {
	Type   string        `json:"type"`
	Fields []structField `json:"fields"`

	ElementType  jsoniter.RawMessage `json:"elementType"`
	ContainsNull bool                `json:"containsNull"`

	KeyType           jsoniter.RawMessage `json:"keyType"`
	ValueType         jsoniter.RawMessage `json:"valueType"`
	ValueContainsNull bool                `json:"valueContainsNull"`
}

var decimalType = regexp.MustCompile(`^decimal\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)

// parseSchema converts the schemaString of a metadata action to an arrow
// schema.
func parseSchema(s string) (*arrow.Schema, error) {
	var st structType
	if err := json.UnmarshalFromString(s, &st); err != nil {
		return nil, fmt.Errorf("%w: parsing table schema: %v", ErrInvalidLog, err)
	}
	if st.Type != "struct" {
		return nil, fmt.Errorf("%w: table schema has type %q", ErrInvalidLog, st.Type)
	}

	fields, err := convertFields(st.Fields)
	if err != nil {
		return nil, err
	}
	return arrow.NewSchema(fields, nil), nil
}

func convertFields(in []structField) ([]arrow.Field, error) {
	fields := make([]arrow.Field, 0, len(in))
	for _, f := range in {
		dt, err := convertType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: f.Nullable})
	}
	return fields, nil
}

func convertType(raw jsoniter.RawMessage) (arrow.DataType, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return primitiveType(name)
	}

	var ct complexType
	if err := json.Unmarshal(raw, &ct); err != nil {
		return nil, fmt.Errorf("%w: bad type %s", ErrInvalidLog, string(raw))
	}

	switch ct.Type {
	case "struct":
		fields, err := convertFields(ct.Fields)
		if err != nil {
			return nil, err
		}
		return arrow.StructOf(fields...), nil

	case "array":
		elem, err := convertType(ct.ElementType)
		if err != nil {
			return nil, err
		}
		return arrow.ListOfField(arrow.Field{Name: "element", Type: elem, Nullable: ct.ContainsNull}), nil

	case "map":
		key, err := convertType(ct.KeyType)
		if err != nil {
			return nil, err
		}
		value, err := convertType(ct.ValueType)
		if err != nil {
			return nil, err
		}
		mt := arrow.MapOf(key, value)
		mt.SetItemNullable(ct.ValueContainsNull)
		return mt, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnsupportedTable, ct.Type)
}

func primitiveType(name string) (arrow.DataType, error) {
	switch name {
	case "string":
		return arrow.BinaryTypes.String, nil
	case "long":
		return arrow.PrimitiveTypes.Int64, nil
	case "integer":
		return arrow.PrimitiveTypes.Int32, nil
	case "short":
		return arrow.PrimitiveTypes.Int16, nil
	case "byte":
		return arrow.PrimitiveTypes.Int8, nil
	case "float":
		return arrow.PrimitiveTypes.Float32, nil
	case "double":
		return arrow.PrimitiveTypes.Float64, nil
	case "boolean":
		return arrow.FixedWidthTypes.Boolean, nil
	case "binary":
		return arrow.BinaryTypes.Binary, nil
	case "date":
		return arrow.FixedWidthTypes.Date32, nil
	case "timestamp":
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	case "timestamp_ntz":
		return &arrow.TimestampType{Unit: arrow.Microsecond}, nil
	}

	if m := decimalType.FindStringSubmatch(name); m != nil {
		precision, _ := strconv.Atoi(m[1])
		scale, _ := strconv.Atoi(m[2])
		if precision < 1 || precision > 38 || scale > precision {
			return nil, fmt.Errorf("%w: type %q", ErrUnsupportedTable, name)
		}
		return &arrow.Decimal128Type{Precision: int32(precision), Scale: int32(scale)}, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnsupportedTable, name)
}
