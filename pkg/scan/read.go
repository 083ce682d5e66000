package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel/attribute"

	"github.com/grafana/deltascan/pkg/expr"
)

// ReadFile reads the data file at path and appends its logical records to
// the accumulator of c.
//
// The selection vector is applied to the first chunk only and is consumed by
// it. The transform is applied to every chunk. Any reader, filter or
// transform error aborts the read and is returned; records appended before
// the failure stay in the accumulator.
func ReadFile(ctx context.Context, c *Context, path string, size int64, sel *SelectionVector, transform expr.Expression) error {
	reader, err := c.Engine.ReadParquetFile(ctx, FileMeta{Path: path, Size: size, SingleChunk: sel.Len() > 0}, c.PhysicalSchema)
	if err != nil {
		return fmt.Errorf("opening data file: %w", err)
	}

	pipeline := newFilePipeline(c, path, reader, sel, transform)
	defer pipeline.Close()

	var chunks, rows int64
	for {
		rec, err := pipeline.Read(ctx)
		if errors.Is(err, EOF) {
			break
		} else if err != nil {
			return err
		}

		chunks++
		rows += rec.NumRows()
		c.Metrics.chunksRead.Inc()
		c.Metrics.rowsEmitted.Add(float64(rec.NumRows()))
		c.Accumulator.Append(rec)
	}

	level.Debug(c.Logger).Log("msg", "read data file", "path", path, "chunks", chunks, "rows", rows)
	return nil
}

func newFilePipeline(c *Context, path string, reader ChunkReader, sel *SelectionVector, transform expr.Expression) ChunkReader {
	alloc := c.Engine.Allocator()

	var r ChunkReader = traceReader("physical", reader, attribute.String("path", path))
	if sel != nil {
		r = newSelectionReader(alloc, sel, r)
	}
	if transform != nil {
		r = newTransformReader(c.Engine, transform, c.PhysicalSchema, c.LogicalSchema, r)
	}
	return r
}
