package scan

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log"
)

// Context is the state shared by every stage of one scan.
//
// The schemas, the partition directory and the engine are read-only for the
// duration of the scan. The accumulator is appended to by the read pipeline.
// Partition values are only set while a file is being visited.
//
// The engine is owned by the caller; closing a Context does not close it.
type Context struct {
	TableRoot      string
	Engine         Engine
	LogicalSchema  *arrow.Schema
	PhysicalSchema *arrow.Schema
	Partitions     *PartitionDirectory
	Accumulator    *Accumulator

	Logger  log.Logger
	Metrics *Metrics

	current *File
}

// NewContext returns a Context for scanning s with engine. A nil logger
// discards logs; nil metrics are not registered anywhere.
func NewContext(engine Engine, s Scan, partitions *PartitionDirectory, logger log.Logger, metrics *Metrics) *Context {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Context{
		TableRoot:      s.TableRoot(),
		Engine:         engine,
		LogicalSchema:  s.LogicalSchema(),
		PhysicalSchema: s.PhysicalSchema(),
		Partitions:     partitions,
		Accumulator:    NewAccumulator(engine.Allocator()),
		Logger:         logger,
		Metrics:        metrics,
	}
}

// PartitionValue returns the raw partition value of column name for the file
// currently being visited. It returns false outside of a visit or when the
// value is null.
func (c *Context) PartitionValue(name string) (string, bool) {
	if c.current == nil {
		return "", false
	}
	return c.current.PartitionValue(name)
}

// Visiting reports whether a file is currently being visited.
func (c *Context) Visiting() bool { return c.current != nil }

func (c *Context) setPartitionValues(f *File) { c.current = f }

func (c *Context) clearPartitionValues() { c.current = nil }

// Close releases the records collected by the accumulator.
func (c *Context) Close() {
	if c.Accumulator != nil {
		c.Accumulator.Release()
	}
}
