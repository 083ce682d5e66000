package scan

import (
	"context"
	"errors"

	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Drive pulls every metadata chunk from it and visits each live file of each
// chunk, in order. Drive closes it.
//
// Drive returns nil once the iterator is exhausted. Any other iterator error,
// or the first file error, is returned and stops the scan. Cancellation of
// ctx is checked between chunks.
func Drive(ctx context.Context, c *Context, it MetadataIterator) error {
	defer it.Close()

	for {
		if err := ctx.Err(); err != nil {
			return opError("iterate scan metadata", "", err)
		}

		chunk, err := it.Next(ctx)
		if errors.Is(err, EOF) {
			return nil
		} else if err != nil {
			return opError("iterate scan metadata", "", err)
		}

		err = visitChunk(ctx, c, chunk)
		chunk.Release()
		if err != nil {
			return err
		}
	}
}

func visitChunk(ctx context.Context, c *Context, chunk MetadataChunk) (err error) {
	ctx, span := tracer.Start(ctx, "scan.visitChunk")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	c.Metrics.metadataChunks.Inc()

	sel, err := chunk.Selection()
	if err != nil {
		return opError("iterate scan metadata", "", err)
	}

	var visited int
	for i := range chunk.NumFiles() {
		if i < len(sel) && !sel[i] {
			continue
		}

		f := chunk.File(i)
		err := VisitFile(ctx, c, f)
		f.expire()
		if err != nil {
			return err
		}
		visited++
	}

	span.SetAttributes(
		attribute.Int("files", chunk.NumFiles()),
		attribute.Int("visited", visited),
	)
	level.Debug(c.Logger).Log("msg", "visited scan metadata chunk", "files", chunk.NumFiles(), "visited", visited)
	return nil
}
