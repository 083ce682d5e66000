// Package scan implements the consumption side of a table scan: pulling scan
// metadata chunks from an engine, visiting every live file, reading its
// physical data, applying the file's row selection and transform, and
// collecting the resulting logical records.
//
// The package only depends on the [Engine] boundary. A default engine for
// Delta tables lives in [github.com/grafana/deltascan/pkg/delta].
//
// Everything in this package is single-threaded and synchronous. Records are
// reference counted; every stage that does not forward a record releases it.
package scan

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/deltascan/pkg/expr"
)

// Engine is the planner and I/O collaborator of a scan.
type Engine interface {
	// Snapshot resolves the latest (or configured) version of the table at
	// tableRoot.
	Snapshot(ctx context.Context, tableRoot string) (Snapshot, error)

	// ReadParquetFile opens a chunked reader over the physical data of file,
	// projected to schema.
	ReadParquetFile(ctx context.Context, file FileMeta, schema *arrow.Schema) (ChunkReader, error)

	// SelectionVector resolves dv into a mask over the physical rows of the
	// file it belongs to. Resolution is deterministic: resolving the same
	// descriptor twice yields equal masks.
	SelectionVector(ctx context.Context, dv *DeletionVector, tableRoot string) ([]bool, error)

	// NewEvaluator returns an evaluator for e mapping records of the input
	// schema onto records of the output schema.
	NewEvaluator(input *arrow.Schema, e expr.Expression, output *arrow.Schema) (Evaluator, error)

	// Allocator returns the allocator used for records produced by the
	// engine and by the pipeline stages.
	Allocator() memory.Allocator
}

// Snapshot is a fixed version of a table.
type Snapshot interface {
	Version() uint64
	Schema() *arrow.Schema
	TableRoot() string

	// PartitionColumnCount returns the number of partition columns
	// PartitionColumns yields.
	PartitionColumnCount() int
	PartitionColumns() StringIterator

	Scan(ctx context.Context, opts ScanOptions) (Scan, error)
}

// ScanOptions configures a scan of a snapshot.
type ScanOptions struct {
	// Columns restricts the logical schema to the named columns, in the
	// order of the table schema. Empty selects every column.
	Columns []string
}

// Scan is a planned scan over a snapshot.
type Scan interface {
	// LogicalSchema is the schema of the records the scan produces.
	LogicalSchema() *arrow.Schema
	// PhysicalSchema is the schema data files are read with.
	PhysicalSchema() *arrow.Schema
	TableRoot() string

	MetadataIterator(ctx context.Context) (MetadataIterator, error)
}

// MetadataIterator pulls scan metadata chunks. Next returns [EOF] once every
// chunk has been returned.
type MetadataIterator interface {
	Next(ctx context.Context) (MetadataChunk, error)
	Close()
}

// MetadataChunk is an engine-owned batch of scan file entries. Each chunk is
// visited once and then released.
type MetadataChunk interface {
	// NumFiles returns the number of entries in the chunk, live or not.
	NumFiles() int

	// Selection reports which entries are live. Entries past the end of the
	// returned mask are live; a nil mask selects every entry.
	Selection() ([]bool, error)

	// File returns entry i. The returned file's borrowed fields are only
	// valid for the duration of the visit.
	File(i int) *File

	Release()
}

// StringIterator yields strings until it is exhausted.
type StringIterator interface {
	Next() (string, bool)
}

// ChunkReader reads physical (or logical) records in chunks. Read returns
// [EOF] when the reader is exhausted.
type ChunkReader interface {
	// Read returns the next record. The caller owns the record.
	Read(ctx context.Context) (arrow.Record, error)
	// Close releases the resources of the reader and of its inputs.
	Close()
}

// Evaluator applies an expression to a record.
type Evaluator interface {
	// Evaluate returns a new record owned by the caller; rec is not
	// released.
	Evaluate(ctx context.Context, rec arrow.Record) (arrow.Record, error)
}

// FileMeta locates a physical data file.
type FileMeta struct {
	// Path is the location of the file, relative to the table root.
	Path string
	// Size is the size of the file in bytes, 0 if unknown.
	Size int64
	// SingleChunk asks for the whole file in one chunk. It is set when a
	// selection vector covers the file, since the vector is applied to the
	// first chunk only.
	SingleChunk bool
}
