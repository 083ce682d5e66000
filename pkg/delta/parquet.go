package delta

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/thanos-io/objstore"

	"github.com/grafana/deltascan/pkg/scan"
)

// parquetReader reads a parquet data file in chunks, projected onto a read
// schema. Columns of the read schema missing from the file are filled with
// nulls.
type parquetReader struct {
	alloc  memory.Allocator
	path   string
	schema *arrow.Schema

	pf *file.Reader
	rr pqarrow.RecordReader

	// Used when no column of the read schema is stored in the file.
	batchSize int64
	remaining int64
}

var _ scan.ChunkReader = (*parquetReader)(nil)

func openParquet(ctx context.Context, bucket objstore.BucketReader, alloc memory.Allocator, meta scan.FileMeta, schema *arrow.Schema, batchSize int64) (*parquetReader, error) {
	obj, err := openObject(ctx, bucket, meta.Path, meta.Size)
	if err != nil {
		return nil, err
	}

	pf, err := file.NewParquetReader(obj, file.WithReadProps(parquet.NewReaderProperties(alloc)))
	if err != nil {
		if ok, existsErr := bucket.Exists(ctx, meta.Path); existsErr == nil && !ok {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, meta.Path)
		}
		return nil, fmt.Errorf("opening parquet file %s: %w", meta.Path, err)
	}

	if meta.SingleChunk {
		batchSize = max(batchSize, pf.NumRows())
	}

	r := &parquetReader{
		alloc:     alloc,
		path:      meta.Path,
		schema:    schema,
		pf:        pf,
		batchSize: batchSize,
		remaining: pf.NumRows(),
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: batchSize}, alloc)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("reading parquet schema of %s: %w", meta.Path, err)
	}

	leaves, err := projectLeaves(fr.Manifest, schema)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", meta.Path, err)
	}
	if len(leaves) > 0 {
		rr, err := fr.GetRecordReader(ctx, leaves, nil)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("reading parquet file %s: %w", meta.Path, err)
		}
		r.rr = rr
	}
	return r, nil
}

// parquetNumRows returns the row count recorded in the footer of the
// parquet file at path.
func parquetNumRows(ctx context.Context, bucket objstore.BucketReader, path string, size int64) (int64, error) {
	obj, err := openObject(ctx, bucket, path, size)
	if err != nil {
		return 0, err
	}
	pf, err := file.NewParquetReader(obj)
	if err != nil {
		return 0, fmt.Errorf("reading parquet footer of %s: %w", path, err)
	}
	defer pf.Close()
	return pf.NumRows(), nil
}

// projectLeaves returns the leaf column indices of the top-level file fields
// named in schema.
func projectLeaves(manifest *pqarrow.SchemaManifest, schema *arrow.Schema) ([]int, error) {
	byName := make(map[string]pqarrow.SchemaField, len(manifest.Fields))
	for _, f := range manifest.Fields {
		byName[f.Field.Name] = f
	}

	var leaves []int
	for _, want := range schema.Fields() {
		sf, ok := byName[want.Name]
		if !ok {
			if !want.Nullable {
				return nil, fmt.Errorf("%w: %s", ErrMissingColumn, want.Name)
			}
			continue
		}
		leaves = appendLeaves(leaves, sf)
	}
	return leaves, nil
}

func appendLeaves(leaves []int, sf pqarrow.SchemaField) []int {
	if len(sf.Children) == 0 {
		return append(leaves, sf.ColIndex)
	}
	for _, child := range sf.Children {
		leaves = appendLeaves(leaves, child)
	}
	return leaves
}

func (r *parquetReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.rr == nil {
		if r.remaining <= 0 {
			return nil, scan.EOF
		}
		n := min(r.batchSize, r.remaining)
		r.remaining -= n
		return r.project(ctx, nil, n)
	}

	if !r.rr.Next() {
		if err := r.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading %s: %w", r.path, err)
		}
		return nil, scan.EOF
	}
	rec := r.rr.Record()
	return r.project(ctx, rec, rec.NumRows())
}

// project builds a record of the read schema from rec, which may be nil. rec
// is owned by the record reader and is not released.
func (r *parquetReader) project(ctx context.Context, rec arrow.Record, numRows int64) (arrow.Record, error) {
	ctx = compute.WithAllocator(ctx, r.alloc)

	cols := make([]arrow.Array, 0, r.schema.NumFields())
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	for _, f := range r.schema.Fields() {
		var indices []int
		if rec != nil {
			indices = rec.Schema().FieldIndices(f.Name)
		}
		if len(indices) == 0 {
			cols = append(cols, array.MakeArrayOfNull(r.alloc, f.Type, int(numRows)))
			continue
		}

		col := rec.Column(indices[0])
		if arrow.TypeEqual(col.DataType(), f.Type) {
			col.Retain()
			cols = append(cols, col)
			continue
		}

		cast, err := compute.CastArray(ctx, col, compute.SafeCastOptions(f.Type))
		if err != nil {
			return nil, fmt.Errorf("casting column %s of %s from %s to %s: %w", f.Name, r.path, col.DataType(), f.Type, err)
		}
		cols = append(cols, cast)
	}

	return array.NewRecord(r.schema, cols, numRows), nil
}

func (r *parquetReader) Close() {
	if r.rr != nil {
		r.rr.Release()
		r.rr = nil
	}
	if r.pf != nil {
		_ = r.pf.Close()
		r.pf = nil
	}
}
