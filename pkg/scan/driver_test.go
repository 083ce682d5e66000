package scan

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/grafana/deltascan/pkg/expr"
	"github.com/grafana/deltascan/pkg/util/arrowtest"
)

func runScan(t *testing.T, e *testEngine, logger log.Logger) (*TableScan, error) {
	t.Helper()

	ts, err := NewTableScan(t.Context(), e, "mem://table/", ScanOptions{}, logger, nil)
	require.NoError(t, err)
	return ts, ts.Run(t.Context())
}

func finalizedRows(t *testing.T, ts *TableScan) arrowtest.Rows {
	t.Helper()

	rec, err := ts.Context.Accumulator.Finalize()
	require.NoError(t, err)
	if rec == nil {
		return nil
	}
	defer rec.Release()

	rows, err := arrowtest.RecordRows(rec)
	require.NoError(t, err)
	return rows
}

func TestDrive(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		nameField,
	}, nil)

	t.Run("two files without deletion vectors", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		e := newTestEngine(alloc, schema, nil)
		e.files["a.parquet"] = []arrowtest.Rows{{
			{"id": int32(1), "name": "one"},
			{"id": int32(2), "name": "two"},
		}}
		e.files["b.parquet"] = []arrowtest.Rows{{
			{"id": int32(3), "name": "three"},
		}}
		e.addChunk(nil, testEntry{path: "a.parquet"}, testEntry{path: "b.parquet"})

		ts, err := runScan(t, e, nil)
		require.NoError(t, err)
		defer ts.Close()

		require.EqualValues(t, 3, ts.Context.Accumulator.NumRows())
		rec, err := ts.Context.Accumulator.Finalize()
		require.NoError(t, err)
		defer rec.Release()

		require.EqualValues(t, 3, rec.NumRows())
		require.Empty(t, e.singleChunk)
		require.Equal(t, "id", rec.ColumnName(0))
		require.Equal(t, "name", rec.ColumnName(1))

		rows, err := arrowtest.RecordRows(rec)
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{
			{"id": int32(1), "name": "one"},
			{"id": int32(2), "name": "two"},
			{"id": int32(3), "name": "three"},
		}, rows)
	})

	t.Run("deletion vector filters the first chunk", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		e := newTestEngine(alloc, schema, nil)
		e.files["a.parquet"] = []arrowtest.Rows{{
			{"id": int32(0)}, {"id": int32(1)}, {"id": int32(2)}, {"id": int32(3)}, {"id": int32(4)},
		}}
		e.masks["dv"] = []bool{true, false, true, true, false}
		e.addChunk(nil, testEntry{path: "a.parquet", dv: "dv"})

		ts, err := runScan(t, e, nil)
		require.NoError(t, err)
		defer ts.Close()

		require.Equal(t, 1, ts.Context.Accumulator.Len())
		rows, err := arrowtest.RecordRows(ts.Context.Accumulator.Batches()[0])
		require.NoError(t, err)
		require.Equal(t, arrowtest.Rows{{"id": int32(0)}, {"id": int32(2)}, {"id": int32(3)}}, rows)

		require.Equal(t, []string{"a.parquet"}, e.singleChunk, "a file with a selection vector is read in one chunk")
	})

	t.Run("selection failure reads the file unfiltered", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		var logs bytes.Buffer
		e := newTestEngine(alloc, schema, nil)
		e.files["a.parquet"] = []arrowtest.Rows{{{"id": int32(1)}, {"id": int32(2)}}}
		e.files["b.parquet"] = []arrowtest.Rows{{{"id": int32(3)}, {"id": int32(4)}}}
		e.files["c.parquet"] = []arrowtest.Rows{{{"id": int32(5)}, {"id": int32(6)}}}
		e.masks["dv-a"] = []bool{false, true}
		e.maskErrs["dv-b"] = errors.New("missing deletion vector file")
		e.masks["dv-c"] = []bool{true, false}
		e.addChunk(nil,
			testEntry{path: "a.parquet", dv: "dv-a"},
			testEntry{path: "b.parquet", dv: "dv-b"},
			testEntry{path: "c.parquet", dv: "dv-c"},
		)

		ts, err := runScan(t, e, log.NewLogfmtLogger(&logs))
		require.NoError(t, err)
		defer ts.Close()

		require.Equal(t, arrowtest.Rows{
			{"id": int32(2)},
			{"id": int32(3)}, {"id": int32(4)},
			{"id": int32(5)},
		}, finalizedRows(t, ts))
		require.Contains(t, logs.String(), "level=warn")
		require.Contains(t, logs.String(), "path=b.parquet")
		require.Equal(t, float64(1), testutil.ToFloat64(ts.Context.Metrics.selectionFailures))
	})

	t.Run("metadata iteration error stops the scan", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		e := newTestEngine(alloc, schema, nil)
		e.files["a.parquet"] = []arrowtest.Rows{{{"id": int32(1)}}}
		e.files["b.parquet"] = []arrowtest.Rows{{{"id": int32(2)}}}
		e.addChunk(nil, testEntry{path: "a.parquet"})
		e.addChunk(nil, testEntry{path: "b.parquet"})
		e.nextErrAt = 1

		ts, err := runScan(t, e, nil)
		defer ts.Close()

		var se *Error
		require.ErrorAs(t, err, &se)
		require.Equal(t, "iterate scan metadata", se.Op)
		require.Equal(t, []string{"a.parquet"}, e.opened)
		require.EqualValues(t, 1, ts.Context.Accumulator.NumRows())
	})

	t.Run("dead entries are skipped and order is kept", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		e := newTestEngine(alloc, schema, nil)
		for _, path := range []string{"a", "b", "c", "d"} {
			e.files[path] = []arrowtest.Rows{{{"name": path}}}
		}
		first := e.addChunk([]bool{true, false}, testEntry{path: "a"}, testEntry{path: "b"})
		second := e.addChunk([]bool{true}, testEntry{path: "c"}, testEntry{path: "d"})

		ts, err := runScan(t, e, nil)
		require.NoError(t, err)
		defer ts.Close()

		require.Equal(t, []string{"a", "c", "d"}, e.opened)
		require.Equal(t, arrowtest.Rows{{"name": "a"}, {"name": "c"}, {"name": "d"}}, finalizedRows(t, ts))
		require.True(t, first.released)
		require.True(t, second.released)
		require.Equal(t, float64(2), testutil.ToFloat64(ts.Context.Metrics.metadataChunks))
		require.Equal(t, float64(3), testutil.ToFloat64(ts.Context.Metrics.filesScanned))
	})

	t.Run("read failure names the file", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		e := newTestEngine(alloc, schema, nil)
		e.addChunk(nil, testEntry{path: "missing.parquet"})

		ts, err := runScan(t, e, nil)
		defer ts.Close()

		var se *Error
		require.ErrorAs(t, err, &se)
		require.Equal(t, "read file", se.Op)
		require.Equal(t, "missing.parquet", se.Path)
		require.EqualError(t, err, "read file missing.parquet: opening data file: file missing.parquet not found")
	})

	t.Run("cancelled context", func(t *testing.T) {
		e := newTestEngine(memory.DefaultAllocator, schema, nil)
		e.files["a.parquet"] = []arrowtest.Rows{{{"id": int32(1)}}}
		e.addChunk(nil, testEntry{path: "a.parquet"})

		ts, err := NewTableScan(t.Context(), e, "mem://table/", ScanOptions{}, nil, nil)
		require.NoError(t, err)
		defer ts.Close()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		require.ErrorIs(t, ts.Run(ctx), context.Canceled)
		require.Empty(t, e.opened)
	})
}

func TestDrive_MultipleChunks(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{idField}, nil)
	chunks := []arrowtest.Rows{
		{{"id": int64(0)}, {"id": int64(1)}, {"id": int64(2)}},
		{{"id": int64(3)}, {"id": int64(4)}, {"id": int64(5)}},
	}

	t.Run("later chunks are not filtered", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		e := newTestEngine(alloc, schema, nil)
		e.files["a.parquet"] = chunks
		e.masks["dv"] = []bool{false, true, true}
		e.addChunk(nil, testEntry{path: "a.parquet", dv: "dv"})

		ts, err := runScan(t, e, nil)
		require.NoError(t, err)
		defer ts.Close()

		require.Equal(t, 2, ts.Context.Accumulator.Len())
		require.Equal(t, arrowtest.Rows{
			{"id": int64(1)}, {"id": int64(2)},
			{"id": int64(3)}, {"id": int64(4)}, {"id": int64(5)},
		}, finalizedRows(t, ts))
	})

	t.Run("mask covering the whole file", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		e := newTestEngine(alloc, schema, nil)
		e.files["a.parquet"] = chunks
		e.masks["dv"] = []bool{true, true, true, true, true, false}
		e.addChunk(nil, testEntry{path: "a.parquet", dv: "dv"})

		ts, err := runScan(t, e, nil)
		defer ts.Close()

		require.ErrorIs(t, err, ErrSelectionLength)
		require.Equal(t, 0, ts.Context.Accumulator.Len())
	})
}

func TestDrive_Partitioned(t *testing.T) {
	physical := arrow.NewSchema([]arrow.Field{idField}, nil)
	logical := arrow.NewSchema([]arrow.Field{
		{Name: "letter", Type: arrow.BinaryTypes.String, Nullable: true},
		idField,
	}, nil)

	transform := func(letter string) expr.Expression {
		return expr.NewStruct(expr.NewLiteral(scalar.NewStringScalar(letter)), expr.NewColumn("id"))
	}

	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	e := newTestEngine(alloc, logical, physical)
	e.partitions = []string{"letter"}
	e.files["letter=a/1.parquet"] = []arrowtest.Rows{{{"id": int64(1)}, {"id": int64(2)}}}
	e.files["letter=b/2.parquet"] = []arrowtest.Rows{{{"id": int64(3)}}}
	e.addChunk(nil,
		testEntry{path: "letter=a/1.parquet", transform: transform("a"), partitions: map[string]string{"letter": "a"}},
		testEntry{path: "letter=b/2.parquet", transform: transform("b"), partitions: map[string]string{"letter": "b"}},
	)

	ts, err := NewTableScan(t.Context(), e, "mem://table/", ScanOptions{}, nil, nil)
	require.NoError(t, err)
	defer ts.Close()
	require.Equal(t, []string{"letter"}, ts.Context.Partitions.Names())

	seen := map[string]string{}
	e.onRead = func(path string) {
		v, ok := ts.Context.PartitionValue("letter")
		require.True(t, ok)
		seen[path] = v
	}

	require.NoError(t, ts.Run(t.Context()))
	require.Equal(t, map[string]string{"letter=a/1.parquet": "a", "letter=b/2.parquet": "b"}, seen)

	require.False(t, ts.Context.Visiting())
	_, ok := ts.Context.PartitionValue("letter")
	require.False(t, ok)

	require.Equal(t, arrowtest.Rows{
		{"letter": "a", "id": int64(1)},
		{"letter": "a", "id": int64(2)},
		{"letter": "b", "id": int64(3)},
	}, finalizedRows(t, ts))

	// Borrowed data of visited files is no longer accessible.
	require.Len(t, e.issued, 2)
	require.PanicsWithValue(t, ErrBorrowExpired, func() { e.issued[0].Transform() })
	require.PanicsWithValue(t, ErrBorrowExpired, func() { e.issued[1].PartitionValue("letter") })
}

func TestNewTableScan_PartitionCountMismatch(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{idField}, nil)
	e := newTestEngine(memory.DefaultAllocator, schema, nil)
	e.partitions = []string{"a"}
	e.declared = 2

	_, err := NewTableScan(t.Context(), e, "mem://table/", ScanOptions{}, nil, nil)
	require.ErrorIs(t, err, ErrPartitionCountMismatch)

	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "get partition columns", se.Op)
}
