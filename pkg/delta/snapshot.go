package delta

import (
	"context"
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/deltascan/pkg/scan"
)

// Snapshot is a version of a Delta table.
type Snapshot struct {
	engine *Engine
	log    *tableLog
	schema *arrow.Schema

	partitionColumns []string
}

var _ scan.Snapshot = (*Snapshot)(nil)

func newSnapshot(e *Engine, tl *tableLog) (*Snapshot, error) {
	if err := checkProtocol(tl.protocol, tl.metadata); err != nil {
		return nil, err
	}

	schema, err := parseSchema(tl.metadata.SchemaString)
	if err != nil {
		return nil, err
	}
	for _, name := range tl.metadata.PartitionColumns {
		if !schema.HasField(name) {
			return nil, fmt.Errorf("%w: partition column %s is not in the table schema", ErrInvalidLog, name)
		}
	}

	return &Snapshot{
		engine:           e,
		log:              tl,
		schema:           schema,
		partitionColumns: slices.Clone(tl.metadata.PartitionColumns),
	}, nil
}

func (s *Snapshot) Version() uint64           { return uint64(s.log.version) }
func (s *Snapshot) Schema() *arrow.Schema     { return s.schema }
func (s *Snapshot) TableRoot() string         { return s.engine.root }
func (s *Snapshot) PartitionColumnCount() int { return len(s.partitionColumns) }
func (s *Snapshot) PartitionColumns() scan.StringIterator {
	return scan.NewSliceIterator(s.partitionColumns)
}

// Scan plans a scan of the snapshot.
func (s *Snapshot) Scan(_ context.Context, opts scan.ScanOptions) (scan.Scan, error) {
	return newTableScan(s, opts)
}
