package delta

import (
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// partitionValues returns the non-null raw partition values of an add.
// Delta serializes a null partition value as null or as an empty string.
func partitionValues(values map[string]*string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if v == nil || *v == "" {
			continue
		}
		out[k] = *v
	}
	return out
}

// parsePartitionValue parses a raw partition value of column type dt. ok
// false is a null value.
func parsePartitionValue(raw string, ok bool, dt arrow.DataType) (scalar.Scalar, error) {
	if !ok || raw == "" {
		return scalar.MakeNullScalar(dt), nil
	}

	switch dt := dt.(type) {
	case *arrow.StringType:
		return scalar.NewStringScalar(raw), nil
	case *arrow.BinaryType:
		return scalar.NewBinaryScalar(memory.NewBufferBytes([]byte(raw)), dt), nil
	case *arrow.BooleanType:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		return scalar.NewBooleanScalar(v), nil
	case *arrow.Int8Type:
		v, err := strconv.ParseInt(raw, 10, 8)
		if err != nil {
			return nil, err
		}
		return scalar.NewInt8Scalar(int8(v)), nil
	case *arrow.Int16Type:
		v, err := strconv.ParseInt(raw, 10, 16)
		if err != nil {
			return nil, err
		}
		return scalar.NewInt16Scalar(int16(v)), nil
	case *arrow.Int32Type:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		return scalar.NewInt32Scalar(int32(v)), nil
	case *arrow.Int64Type:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return scalar.NewInt64Scalar(v), nil
	case *arrow.Float32Type:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, err
		}
		return scalar.NewFloat32Scalar(float32(v)), nil
	case *arrow.Float64Type:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return scalar.NewFloat64Scalar(v), nil
	case *arrow.Date32Type:
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, err
		}
		return scalar.NewDate32Scalar(arrow.Date32FromTime(t)), nil
	case *arrow.TimestampType:
		t, err := parseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		ts, err := arrow.TimestampFromTime(t, dt.Unit)
		if err != nil {
			return nil, err
		}
		return scalar.NewTimestampScalar(ts, dt), nil
	case *arrow.Decimal128Type:
		v, err := decimal128.FromString(raw, dt.Precision, dt.Scale)
		if err != nil {
			return nil, err
		}
		return scalar.NewDecimal128Scalar(v, dt), nil
	}
	return nil, fmt.Errorf("%w: partition column of type %s", ErrUnsupportedTable, dt)
}

func parseTimestamp(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
