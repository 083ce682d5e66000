package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"
)

type countingReader struct {
	reads, closes int
	err           error
}

func (r *countingReader) Read(_ context.Context) (arrow.Record, error) {
	r.reads++
	return nil, r.err
}

func (r *countingReader) Close() { r.closes++ }

func TestGenericReader(t *testing.T) {
	passthrough := func(ctx context.Context, inputs []ChunkReader) (arrow.Record, error) {
		return inputs[0].Read(ctx)
	}

	t.Run("end is sticky", func(t *testing.T) {
		input := &countingReader{err: EOF}
		r := newGenericReader(passthrough, input)

		for range 3 {
			_, err := r.Read(t.Context())
			require.ErrorIs(t, err, EOF)
		}
		require.Equal(t, 1, input.reads)
	})

	t.Run("error is sticky", func(t *testing.T) {
		failure := errors.New("disk on fire")
		input := &countingReader{err: failure}
		r := newGenericReader(passthrough, input)

		_, err := r.Read(t.Context())
		require.ErrorIs(t, err, failure)
		_, err = r.Read(t.Context())
		require.ErrorIs(t, err, failure)
		require.Equal(t, 1, input.reads)
	})

	t.Run("close once", func(t *testing.T) {
		input := &countingReader{}
		r := newGenericReader(passthrough, input)

		r.Close()
		r.Close()
		require.Equal(t, 1, input.closes)

		_, err := r.Read(t.Context())
		require.ErrorIs(t, err, EOF)
		require.Zero(t, input.reads)
	})
}
