package scan

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// TableScan ties together the snapshot, scan plan and context of one scan of
// a table.
type TableScan struct {
	Snapshot Snapshot
	Scan     Scan
	Context  *Context
}

// NewTableScan resolves the snapshot of tableRoot, builds its partition
// directory and plans a scan with opts. Each failing step is returned as an
// [*Error] naming it.
func NewTableScan(ctx context.Context, engine Engine, tableRoot string, opts ScanOptions, logger log.Logger, metrics *Metrics) (*TableScan, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	snapshot, err := engine.Snapshot(ctx, tableRoot)
	if err != nil {
		return nil, opError("get snapshot", "", err)
	}

	partitions, err := NewPartitionDirectory(snapshot.PartitionColumnCount(), snapshot.PartitionColumns())
	if err != nil {
		return nil, opError("get partition columns", "", err)
	}

	s, err := snapshot.Scan(ctx, opts)
	if err != nil {
		return nil, opError("build scan", "", err)
	}

	level.Debug(logger).Log("msg", "planned scan", "table", snapshot.TableRoot(), "version", snapshot.Version(), "partition_columns", partitions.Len())

	return &TableScan{
		Snapshot: snapshot,
		Scan:     s,
		Context:  NewContext(engine, s, partitions, logger, metrics),
	}, nil
}

// Run drives the scan to completion, collecting every logical record in the
// context's accumulator.
func (t *TableScan) Run(ctx context.Context) error {
	it, err := t.Scan.MetadataIterator(ctx)
	if err != nil {
		return opError("get scan metadata iterator", "", err)
	}
	return Drive(ctx, t.Context, it)
}

// Close releases the collected records.
func (t *TableScan) Close() { t.Context.Close() }
