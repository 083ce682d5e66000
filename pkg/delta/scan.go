package delta

import (
	"context"
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log/level"

	"github.com/grafana/deltascan/pkg/expr"
	"github.com/grafana/deltascan/pkg/scan"
)

type tableScan struct {
	snap     *Snapshot
	logical  *arrow.Schema
	physical *arrow.Schema

	// partitioned is set when the logical schema holds a partition column,
	// in which case every file gets a transform.
	partitioned bool
}

var _ scan.Scan = (*tableScan)(nil)

func newTableScan(s *Snapshot, opts scan.ScanOptions) (*tableScan, error) {
	all := s.schema.Fields()

	var fields []arrow.Field
	if len(opts.Columns) == 0 {
		fields = all
	} else {
		for _, name := range opts.Columns {
			if !s.schema.HasField(name) {
				return nil, fmt.Errorf("unknown column %q", name)
			}
		}
		for _, f := range all {
			if slices.Contains(opts.Columns, f.Name) {
				fields = append(fields, f)
			}
		}
	}

	ts := &tableScan{snap: s, logical: arrow.NewSchema(fields, nil)}

	physical := make([]arrow.Field, 0, len(fields))
	for _, f := range fields {
		if slices.Contains(s.partitionColumns, f.Name) {
			ts.partitioned = true
			continue
		}
		physical = append(physical, f)
	}
	ts.physical = arrow.NewSchema(physical, nil)
	return ts, nil
}

func (ts *tableScan) LogicalSchema() *arrow.Schema  { return ts.logical }
func (ts *tableScan) PhysicalSchema() *arrow.Schema { return ts.physical }
func (ts *tableScan) TableRoot() string             { return ts.snap.engine.root }

func (ts *tableScan) MetadataIterator(_ context.Context) (scan.MetadataIterator, error) {
	return &metadataIterator{
		scan:      ts,
		commits:   ts.snap.log.commits,
		next:      len(ts.snap.log.commits) - 1,
		seen:      make(map[fileKey]struct{}),
		batchSize: ts.snap.engine.cfg.MetadataBatchSize,
	}, nil
}

// transform returns the expression turning physical records of a file with
// the given partition values into logical records.
func (ts *tableScan) transform(values map[string]string) (expr.Expression, error) {
	if !ts.partitioned {
		return nil, nil
	}

	fields := make([]expr.Expression, 0, ts.logical.NumFields())
	for _, f := range ts.logical.Fields() {
		if !slices.Contains(ts.snap.partitionColumns, f.Name) {
			fields = append(fields, expr.NewColumn(f.Name))
			continue
		}

		raw, ok := values[f.Name]
		v, err := parsePartitionValue(raw, ok, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: partition value %q of %s: %v", ErrInvalidLog, raw, f.Name, err)
		}
		fields = append(fields, expr.NewLiteral(v))
	}
	return expr.NewStruct(fields...), nil
}

// metadataIterator walks the commits newest first. An add is live unless a
// newer commit added or removed the same logical file.
type metadataIterator struct {
	scan    *tableScan
	commits []commit

	// next is the index of the commit being emitted, offset the position of
	// the next add within it.
	next   int
	offset int

	seen      map[fileKey]struct{}
	batchSize int
}

var _ scan.MetadataIterator = (*metadataIterator)(nil)

func (it *metadataIterator) Next(ctx context.Context) (scan.MetadataChunk, error) {
	for it.next >= 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := it.commits[it.next]
		if it.offset >= len(c.adds) {
			it.finishCommit(c)
			continue
		}

		end := min(it.offset+it.batchSize, len(c.adds))
		chunk, err := it.buildChunk(ctx, c, c.adds[it.offset:end])
		if err != nil {
			return nil, err
		}
		it.offset = end

		level.Debug(it.scan.snap.engine.logger).Log(
			"msg", "emitting scan metadata chunk",
			"commit", c.version,
			"files", len(chunk.files),
			"live", chunk.live,
		)
		return chunk, nil
	}
	return nil, scan.EOF
}

// finishCommit records the files of c as seen and moves to the previous
// commit.
func (it *metadataIterator) finishCommit(c commit) {
	for _, a := range c.adds {
		it.seen[a.key()] = struct{}{}
	}
	for _, r := range c.removes {
		it.seen[r.key()] = struct{}{}
	}
	it.next--
	it.offset = 0
}

func (it *metadataIterator) buildChunk(ctx context.Context, c commit, adds []*addAction) (*metadataChunk, error) {
	chunk := &metadataChunk{
		files:     make([]*scan.File, len(adds)),
		selection: make([]bool, len(adds)),
	}

	for i, a := range adds {
		f, err := a.scanFile()
		if err != nil {
			return nil, fmt.Errorf("commit %d: %w", c.version, err)
		}
		chunk.files[i] = f

		if _, dead := it.seen[a.key()]; dead {
			continue
		}
		chunk.selection[i] = true
		chunk.live++

		if f.DeletionVector != nil && f.Stats == nil {
			it.footerRowCount(ctx, f)
		}

		values := partitionValues(a.PartitionValues)
		tr, err := it.scan.transform(values)
		if err != nil {
			return nil, fmt.Errorf("commit %d: %s: %w", c.version, f.Path, err)
		}
		f.WithTransform(tr).WithPartitionValues(values)
	}
	return chunk, nil
}

// footerRowCount fills the row count of a file with a deletion vector but
// no stats from its parquet footer. On failure the count stays unknown and
// the deletion vector cannot be resolved.
func (it *metadataIterator) footerRowCount(ctx context.Context, f *scan.File) {
	e := it.scan.snap.engine

	var n int64
	p, err := e.dataPath(f.Path)
	if err == nil {
		n, err = parquetNumRows(ctx, e.bucket, p, f.Size)
	}
	if err != nil {
		level.Warn(e.logger).Log("msg", "failed to read row count of data file", "path", f.Path, "err", err)
		return
	}

	f.Stats = &scan.Stats{NumRecords: n}
	f.DeletionVector.NumRecords = n
}

func (it *metadataIterator) Close() {
	it.commits = nil
	it.seen = nil
	it.next = -1
}

type metadataChunk struct {
	files     []*scan.File
	selection []bool
	live      int
}

var _ scan.MetadataChunk = (*metadataChunk)(nil)

func (c *metadataChunk) NumFiles() int              { return len(c.files) }
func (c *metadataChunk) Selection() ([]bool, error) { return c.selection, nil }
func (c *metadataChunk) File(i int) *scan.File      { return c.files[i] }

func (c *metadataChunk) Release() {
	c.files = nil
	c.selection = nil
}
