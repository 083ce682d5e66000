package scan

import (
	"bytes"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/grafana/deltascan/pkg/util/arrowtest"
)

var (
	idField   = arrow.Field{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true}
	nameField = arrow.Field{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true}
)

func TestSelectionVector(t *testing.T) {
	t.Run("take hands out the mask once", func(t *testing.T) {
		sel := NewSelectionVector([]bool{true, false})
		require.Equal(t, 2, sel.Len())
		require.Equal(t, 1, sel.Selected())

		mask, ok := sel.Take()
		require.True(t, ok)
		require.Equal(t, []bool{true, false}, mask)
		require.True(t, sel.Consumed())
		require.Equal(t, 0, sel.Len())

		mask, ok = sel.Take()
		require.False(t, ok)
		require.Nil(t, mask)
	})

	t.Run("empty selects all", func(t *testing.T) {
		sel := NewSelectionVector(nil)
		require.Equal(t, 0, sel.Len())
		require.Equal(t, -1, sel.Selected())
	})
}

func TestResolveSelection(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{idField}, nil)

	newContext := func(e *testEngine, logger log.Logger) *Context {
		ts, err := NewTableScan(t.Context(), e, "mem://table/", ScanOptions{}, logger, nil)
		require.NoError(t, err)
		return ts.Context
	}

	t.Run("no deletion vector", func(t *testing.T) {
		e := newTestEngine(memory.DefaultAllocator, schema, nil)
		c := newContext(e, nil)

		sel := ResolveSelection(t.Context(), c, NewFile("a.parquet", 0))
		require.Equal(t, 0, sel.Len())
	})

	t.Run("deterministic", func(t *testing.T) {
		e := newTestEngine(memory.DefaultAllocator, schema, nil)
		e.masks["dv1"] = []bool{true, false, true}
		c := newContext(e, nil)

		f := NewFile("a.parquet", 0)
		f.DeletionVector = &DeletionVector{StorageType: "i", PathOrInlineDV: "dv1"}

		first, ok := ResolveSelection(t.Context(), c, f).Take()
		require.True(t, ok)
		second, ok := ResolveSelection(t.Context(), c, f).Take()
		require.True(t, ok)
		require.Equal(t, first, second)
		require.Equal(t, []bool{true, false, true}, first)
	})

	t.Run("failure selects all and warns", func(t *testing.T) {
		var buf bytes.Buffer
		e := newTestEngine(memory.DefaultAllocator, schema, nil)
		e.maskErrs["broken"] = errors.New("checksum mismatch")
		c := newContext(e, log.NewLogfmtLogger(&buf))

		f := NewFile("a.parquet", 0)
		f.DeletionVector = &DeletionVector{StorageType: "u", PathOrInlineDV: "broken"}

		sel := ResolveSelection(t.Context(), c, f)
		require.Equal(t, 0, sel.Len())
		require.Contains(t, buf.String(), "level=warn")
		require.Contains(t, buf.String(), "checksum mismatch")
		require.Equal(t, float64(1), testutil.ToFloat64(c.Metrics.selectionFailures))
	})
}

func TestFilterRecord(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{idField, nameField}, nil)
	rows := arrowtest.Rows{
		{"id": int64(0), "name": "a"},
		{"id": int64(1), "name": "b"},
		{"id": int64(2), "name": "c"},
		{"id": int64(3)},
		{"id": int64(4), "name": "e"},
	}

	t.Run("keeps selected rows in order", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		rec := rows.Record(alloc, schema)
		defer rec.Release()

		out, err := filterRecord(t.Context(), alloc, rec, []bool{true, false, true, true, false})
		require.NoError(t, err)
		defer out.Release()

		actual, err := arrowtest.RecordRows(out)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"id": int64(0), "name": "a"},
			{"id": int64(2), "name": "c"},
			{"id": int64(3)},
		}, actual)
	})

	t.Run("length mismatch", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		rec := rows.Record(alloc, schema)
		defer rec.Release()

		_, err := filterRecord(t.Context(), alloc, rec, []bool{true, false})
		require.ErrorIs(t, err, ErrSelectionLength)
	})

	t.Run("no columns", func(t *testing.T) {
		empty := arrow.NewSchema(nil, nil)
		rec := array.NewRecord(empty, nil, 5)
		defer rec.Release()

		out, err := filterRecord(t.Context(), memory.DefaultAllocator, rec, []bool{false, true, true, false, false})
		require.NoError(t, err)
		defer out.Release()
		require.EqualValues(t, 2, out.NumRows())
	})
}

func TestPartitionDirectory(t *testing.T) {
	t.Run("declared count", func(t *testing.T) {
		dir, err := NewPartitionDirectory(2, NewSliceIterator([]string{"year", "month"}))
		require.NoError(t, err)
		require.Equal(t, 2, dir.Len())
		require.Equal(t, []string{"year", "month"}, dir.Names())
		require.True(t, dir.Contains("month"))
		require.False(t, dir.Contains("day"))
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, err := NewPartitionDirectory(3, NewSliceIterator([]string{"year", "month"}))
		require.ErrorIs(t, err, ErrPartitionCountMismatch)
	})

	t.Run("no partitions", func(t *testing.T) {
		dir, err := NewPartitionDirectory(0, NewSliceIterator(nil))
		require.NoError(t, err)
		require.Equal(t, 0, dir.Len())
	})
}
