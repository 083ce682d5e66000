package scan

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pkg/scan")

type readFunc func(context.Context, []ChunkReader) (arrow.Record, error)

// GenericReader is a [ChunkReader] stage computing its records from its
// inputs with a read function.
//
// The first error returned by the read function, EOF included, ends the
// stage: later reads return it again without touching the inputs. Reading a
// closed stage returns EOF.
type GenericReader struct {
	inputs []ChunkReader
	read   readFunc

	err    error
	closed bool
}

func newGenericReader(read readFunc, inputs ...ChunkReader) *GenericReader {
	return &GenericReader{
		read:   read,
		inputs: inputs,
	}
}

var _ ChunkReader = (*GenericReader)(nil)

// Read implements ChunkReader.
func (p *GenericReader) Read(ctx context.Context) (arrow.Record, error) {
	switch {
	case p.closed || p.read == nil:
		return nil, EOF
	case p.err != nil:
		return nil, p.err
	}

	rec, err := p.read(ctx, p.inputs)
	if err != nil {
		p.err = err
		return nil, err
	}
	return rec, nil
}

// Close implements ChunkReader. The inputs are closed once.
func (p *GenericReader) Close() {
	if p.closed {
		return
	}
	p.closed = true
	for _, inp := range p.inputs {
		inp.Close()
	}
}

type tracedReader struct {
	name  string
	attrs []attribute.KeyValue
	inner ChunkReader
}

var _ ChunkReader = (*tracedReader)(nil)

// traceReader wraps a [ChunkReader] to record each call to Read with a span.
func traceReader(name string, r ChunkReader, attrs ...attribute.KeyValue) *tracedReader {
	return &tracedReader{
		name:  name,
		attrs: attrs,
		inner: r,
	}
}

func (p *tracedReader) Read(ctx context.Context) (arrow.Record, error) {
	ctx, span := tracer.Start(ctx, p.name+".Read", trace.WithAttributes(p.attrs...))
	defer span.End()

	res, err := p.inner.Read(ctx)
	if err != nil && !errors.Is(err, EOF) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if res != nil {
		span.SetAttributes(attribute.Int64("rows", res.NumRows()))
	}
	return res, err
}

func (p *tracedReader) Close() { p.inner.Close() }
