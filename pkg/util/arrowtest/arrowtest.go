// Package arrowtest provides helpers for building and inspecting Arrow
// records in tests.
package arrowtest

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Row is a single row of data keyed by column name. A nil value (or a
// missing key) is a null.
type Row map[string]any

// Rows is a list of rows in record order.
type Rows []Row

// Record builds an [arrow.Record] with the given schema from rows. Record
// panics if a value cannot be appended to the column of its field.
//
// Supported Go values per column type: bool, int8/16/32/64 (or int), float32,
// float64, string, []byte, arrow.Date32, time.Time and arrow.Timestamp for
// timestamps, and string for decimals.
func (rows Rows) Record(alloc memory.Allocator, schema *arrow.Schema) arrow.Record {
	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for _, row := range rows {
		for i, field := range schema.Fields() {
			appendValue(builder.Field(i), field, row[field.Name])
		}
	}
	return builder.NewRecord()
}

func appendValue(b array.Builder, field arrow.Field, v any) {
	if v == nil {
		b.AppendNull()
		return
	}

	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(v.(bool))
	case *array.Int8Builder:
		b.Append(v.(int8))
	case *array.Int16Builder:
		b.Append(v.(int16))
	case *array.Int32Builder:
		b.Append(v.(int32))
	case *array.Int64Builder:
		switch v := v.(type) {
		case int:
			b.Append(int64(v))
		default:
			b.Append(v.(int64))
		}
	case *array.Float32Builder:
		b.Append(v.(float32))
	case *array.Float64Builder:
		b.Append(v.(float64))
	case *array.StringBuilder:
		b.Append(v.(string))
	case *array.BinaryBuilder:
		b.Append(v.([]byte))
	case *array.Date32Builder:
		b.Append(v.(arrow.Date32))
	case *array.TimestampBuilder:
		switch v := v.(type) {
		case time.Time:
			unit := field.Type.(*arrow.TimestampType).Unit
			ts, err := arrow.TimestampFromTime(v, unit)
			if err != nil {
				panic(err)
			}
			b.Append(ts)
		default:
			b.Append(v.(arrow.Timestamp))
		}
	case *array.Decimal128Builder:
		dt := field.Type.(*arrow.Decimal128Type)
		n, err := decimal128.FromString(v.(string), dt.Precision, dt.Scale)
		if err != nil {
			panic(err)
		}
		b.Append(n)
	default:
		panic(fmt.Sprintf("arrowtest: unsupported column type %s for field %s", field.Type, field.Name))
	}
}

// RecordRows converts rec into Rows. Null values are left out of the row
// map, so that comparing against literal Rows in tests does not require
// spelling out every null column.
func RecordRows(rec arrow.Record) (Rows, error) {
	rows := make(Rows, rec.NumRows())
	for i := range rows {
		rows[i] = make(Row, rec.NumCols())
	}

	for c, field := range rec.Schema().Fields() {
		col := rec.Column(c)
		for i := range rows {
			if col.IsNull(i) {
				continue
			}
			v, err := value(col, i)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", field.Name, err)
			}
			rows[i][field.Name] = v
		}
	}
	return rows, nil
}

func value(col arrow.Array, i int) (any, error) {
	switch col := col.(type) {
	case *array.Boolean:
		return col.Value(i), nil
	case *array.Int8:
		return col.Value(i), nil
	case *array.Int16:
		return col.Value(i), nil
	case *array.Int32:
		return col.Value(i), nil
	case *array.Int64:
		return col.Value(i), nil
	case *array.Float32:
		return col.Value(i), nil
	case *array.Float64:
		return col.Value(i), nil
	case *array.String:
		return col.Value(i), nil
	case *array.Binary:
		return col.Value(i), nil
	case *array.Date32:
		return col.Value(i), nil
	case *array.Timestamp:
		return col.Value(i), nil
	case *array.Decimal128:
		dt := col.DataType().(*arrow.Decimal128Type)
		return col.Value(i).ToString(dt.Scale), nil
	default:
		return nil, fmt.Errorf("unsupported array type %s", col.DataType())
	}
}
