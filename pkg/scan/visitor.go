package scan

import (
	"context"

	"github.com/go-kit/log/level"
)

// VisitFile processes one live scan file: it resolves the file's selection
// vector, exposes the file's partition values through c for the duration of
// the visit, and reads the file into the accumulator.
//
// A read failure is returned as an [*Error] naming the file. Files are never
// skipped silently.
func VisitFile(ctx context.Context, c *Context, f *File) error {
	c.Metrics.filesScanned.Inc()

	sel := ResolveSelection(ctx, c, f)

	c.setPartitionValues(f)
	defer c.clearPartitionValues()

	if c.Partitions.Len() > 0 {
		logPartitionValues(c, f)
	}

	if err := ReadFile(ctx, c, f.Path, f.Size, sel, f.Transform()); err != nil {
		return opError("read file", f.Path, err)
	}
	return nil
}

func logPartitionValues(c *Context, f *File) {
	kvs := make([]any, 0, 4+2*c.Partitions.Len())
	kvs = append(kvs, "msg", "visiting partitioned file", "path", f.Path)
	for _, name := range c.Partitions.Names() {
		v, ok := c.PartitionValue(name)
		if !ok {
			kvs = append(kvs, name, "<null>")
			continue
		}
		kvs = append(kvs, name, v)
	}
	level.Debug(c.Logger).Log(kvs...)
}
