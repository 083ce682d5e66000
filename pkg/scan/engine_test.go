package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/deltascan/pkg/expr"
	"github.com/grafana/deltascan/pkg/util/arrowtest"
)

// testEngine is an in-memory Engine. Data files are lists of chunks of rows
// in the physical schema; deletion vectors are looked up by their
// PathOrInlineDV.
type testEngine struct {
	alloc    memory.Allocator
	logical  *arrow.Schema
	physical *arrow.Schema

	partitions []string
	declared   int

	files    map[string][]arrowtest.Rows
	masks    map[string][]bool
	maskErrs map[string]error
	chunks   []*testChunk

	// nextErrAt makes the metadata iterator fail when asked for that chunk.
	nextErrAt int
	onRead    func(path string)

	opened      []string
	// singleChunk records the files opened as a single chunk.
	singleChunk []string
	issued      []*File
}

func newTestEngine(alloc memory.Allocator, logical, physical *arrow.Schema) *testEngine {
	if physical == nil {
		physical = logical
	}
	return &testEngine{
		alloc:     alloc,
		logical:   logical,
		physical:  physical,
		files:     map[string][]arrowtest.Rows{},
		masks:     map[string][]bool{},
		maskErrs:  map[string]error{},
		nextErrAt: -1,
	}
}

type testEntry struct {
	path       string
	dv         string
	transform  expr.Expression
	partitions map[string]string
}

// addChunk adds a metadata chunk with the given entries. Entries with a false
// selection are dead.
func (e *testEngine) addChunk(selection []bool, entries ...testEntry) *testChunk {
	c := &testChunk{engine: e, selection: selection, entries: entries}
	e.chunks = append(e.chunks, c)
	return c
}

func (e *testEngine) Snapshot(_ context.Context, tableRoot string) (Snapshot, error) {
	return &testSnapshot{engine: e, root: tableRoot}, nil
}

func (e *testEngine) ReadParquetFile(_ context.Context, file FileMeta, schema *arrow.Schema) (ChunkReader, error) {
	chunks, ok := e.files[file.Path]
	if !ok {
		return nil, fmt.Errorf("file %s not found", file.Path)
	}
	if e.onRead != nil {
		e.onRead(file.Path)
	}
	e.opened = append(e.opened, file.Path)
	if file.SingleChunk {
		e.singleChunk = append(e.singleChunk, file.Path)
	}

	r := &testReader{}
	for _, rows := range chunks {
		r.records = append(r.records, rows.Record(e.alloc, schema))
	}
	return r, nil
}

func (e *testEngine) SelectionVector(_ context.Context, dv *DeletionVector, _ string) ([]bool, error) {
	if err, ok := e.maskErrs[dv.PathOrInlineDV]; ok {
		return nil, err
	}
	mask, ok := e.masks[dv.PathOrInlineDV]
	if !ok {
		return nil, errors.New("unknown deletion vector")
	}
	return append([]bool(nil), mask...), nil
}

func (e *testEngine) NewEvaluator(input *arrow.Schema, ex expr.Expression, output *arrow.Schema) (Evaluator, error) {
	return expr.NewEvaluator(e.alloc, input, ex, output)
}

func (e *testEngine) Allocator() memory.Allocator { return e.alloc }

type testSnapshot struct {
	engine *testEngine
	root   string
}

func (s *testSnapshot) Version() uint64       { return 1 }
func (s *testSnapshot) Schema() *arrow.Schema { return s.engine.logical }
func (s *testSnapshot) TableRoot() string     { return s.root }

func (s *testSnapshot) PartitionColumnCount() int {
	if s.engine.declared != 0 {
		return s.engine.declared
	}
	return len(s.engine.partitions)
}

func (s *testSnapshot) PartitionColumns() StringIterator {
	return NewSliceIterator(s.engine.partitions)
}

func (s *testSnapshot) Scan(_ context.Context, _ ScanOptions) (Scan, error) {
	return &testScan{snapshot: s}, nil
}

type testScan struct{ snapshot *testSnapshot }

func (s *testScan) LogicalSchema() *arrow.Schema  { return s.snapshot.engine.logical }
func (s *testScan) PhysicalSchema() *arrow.Schema { return s.snapshot.engine.physical }
func (s *testScan) TableRoot() string             { return s.snapshot.root }

func (s *testScan) MetadataIterator(_ context.Context) (MetadataIterator, error) {
	return &testIterator{engine: s.snapshot.engine}, nil
}

type testIterator struct {
	engine *testEngine
	pos    int
	closed bool
}

func (it *testIterator) Next(_ context.Context) (MetadataChunk, error) {
	if it.pos == it.engine.nextErrAt {
		return nil, errors.New("corrupt log")
	}
	if it.pos >= len(it.engine.chunks) {
		return nil, EOF
	}
	c := it.engine.chunks[it.pos]
	it.pos++
	return c, nil
}

func (it *testIterator) Close() { it.closed = true }

type testChunk struct {
	engine    *testEngine
	selection []bool
	entries   []testEntry
	released  bool
}

func (c *testChunk) NumFiles() int              { return len(c.entries) }
func (c *testChunk) Selection() ([]bool, error) { return c.selection, nil }
func (c *testChunk) Release()                   { c.released = true }

func (c *testChunk) File(i int) *File {
	ent := c.entries[i]
	f := NewFile(ent.path, 0).
		WithTransform(ent.transform).
		WithPartitionValues(ent.partitions)
	if ent.dv != "" {
		f.DeletionVector = &DeletionVector{StorageType: "i", PathOrInlineDV: ent.dv}
	}
	c.engine.issued = append(c.engine.issued, f)
	return f
}

type testReader struct {
	records []arrow.Record
}

func (r *testReader) Read(_ context.Context) (arrow.Record, error) {
	if len(r.records) == 0 {
		return nil, EOF
	}
	rec := r.records[0]
	r.records = r.records[1:]
	return rec, nil
}

func (r *testReader) Close() {
	for _, rec := range r.records {
		rec.Release()
	}
	r.records = nil
}
