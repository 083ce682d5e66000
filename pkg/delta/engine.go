// Package delta is the default scan engine. It reads Delta tables stored on a
// filesystem or in an object store: it replays the transaction log, plans scans
// with partition transforms, resolves deletion vectors and reads parquet data
// files.
package delta

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"

	"github.com/grafana/deltascan/pkg/expr"
	"github.com/grafana/deltascan/pkg/scan"
	"github.com/grafana/deltascan/pkg/storage/bucket"
)

// Engine implements [scan.Engine] for the Delta table at a single root.
type Engine struct {
	root   string
	bucket objstore.Bucket
	stats  *bucket.Stats

	cfg    Config
	alloc  memory.Allocator
	logger log.Logger
}

var _ scan.Engine = (*Engine)(nil)

// NewEngine returns an engine for the table at tableRoot. opts are free-form
// engine options; the storage ones override storageCfg.
func NewEngine(tableRoot string, opts map[string]string, cfg Config, storageCfg bucket.Config, logger log.Logger, reg prometheus.Registerer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	storageCfg, err := storageCfg.ApplyOptions(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("applying engine options: %w", err)
	}

	client, stats, err := bucket.NewClient(tableRoot, storageCfg, "delta", logger, reg)
	if err != nil {
		return nil, err
	}

	e := NewEngineWithBucket(tableRoot, client, cfg, memory.DefaultAllocator, logger)
	e.stats = stats
	return e, nil
}

// NewEngineWithBucket returns an engine reading the table stored at the root
// of bkt. tableRoot is only used to name the table.
func NewEngineWithBucket(tableRoot string, bkt objstore.Bucket, cfg Config, alloc memory.Allocator, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{
		root:   tableRoot,
		bucket: bkt,
		cfg:    cfg,
		alloc:  alloc,
		logger: log.With(logger, "component", "delta"),
	}
}

// Stats returns the storage statistics of the engine, nil for engines built
// with [NewEngineWithBucket].
func (e *Engine) Stats() *bucket.Stats { return e.stats }

// Allocator implements [scan.Engine].
func (e *Engine) Allocator() memory.Allocator { return e.alloc }

// Close closes the storage client of the engine.
func (e *Engine) Close() error { return e.bucket.Close() }

// Snapshot implements [scan.Engine]. The configured version, if any, is
// read instead of the latest one.
func (e *Engine) Snapshot(ctx context.Context, tableRoot string) (scan.Snapshot, error) {
	if strings.TrimSuffix(tableRoot, "/") != strings.TrimSuffix(e.root, "/") {
		return nil, fmt.Errorf("engine is bound to table %s, not %s", e.root, tableRoot)
	}

	tl, err := replayLog(ctx, e.bucket, e.cfg.Version, e.logger)
	if err != nil {
		return nil, err
	}
	snap, err := newSnapshot(e, tl)
	if err != nil {
		return nil, err
	}

	level.Info(e.logger).Log("msg", "loaded snapshot", "table", e.root, "version", tl.version, "partition_columns", len(snap.partitionColumns))
	return snap, nil
}

// ReadParquetFile implements [scan.Engine].
func (e *Engine) ReadParquetFile(ctx context.Context, file scan.FileMeta, schema *arrow.Schema) (scan.ChunkReader, error) {
	p, err := e.dataPath(file.Path)
	if err != nil {
		return nil, err
	}
	file.Path = p

	r, err := openParquet(ctx, e.bucket, e.alloc, file, schema, e.cfg.ReadBatchSize)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// dataPath returns the bucket path of a data file. Absolute URLs are made
// relative to the table root.
func (e *Engine) dataPath(p string) (string, error) {
	if !strings.Contains(p, "://") {
		return p, nil
	}
	return relativeTo(p, e.root)
}

// SelectionVector implements [scan.Engine]. The mask covers dv.NumRecords
// rows when it is known.
func (e *Engine) SelectionVector(ctx context.Context, dv *scan.DeletionVector, tableRoot string) ([]bool, error) {
	if dv == nil {
		return []bool{}, nil
	}

	bm, err := readDeletionVector(ctx, e.bucket, dv, tableRoot)
	if err != nil {
		return nil, err
	}
	if dv.Cardinality > 0 && bm.GetCardinality() != uint64(dv.Cardinality) {
		return nil, fmt.Errorf("%w: cardinality %d, expected %d", ErrInvalidDeletionVector, bm.GetCardinality(), dv.Cardinality)
	}
	return selectionFromBitmap(bm, dv.NumRecords)
}

// NewEvaluator implements [scan.Engine].
func (e *Engine) NewEvaluator(input *arrow.Schema, ex expr.Expression, output *arrow.Schema) (scan.Evaluator, error) {
	ev, err := expr.NewEvaluator(e.alloc, input, ex, output)
	if err != nil {
		return nil, err
	}
	return ev, nil
}
