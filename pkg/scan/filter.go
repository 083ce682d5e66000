package scan

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// newSelectionReader applies sel to the first record read from input. Later
// records are forwarded unfiltered.
//
// The mask is applied to the first chunk as is. A mask covering a file that
// is read in several chunks does not match the row count of the first chunk
// and fails with [ErrSelectionLength].
func newSelectionReader(alloc memory.Allocator, sel *SelectionVector, input ChunkReader) *GenericReader {
	return newGenericReader(func(ctx context.Context, inputs []ChunkReader) (arrow.Record, error) {
		rec, err := inputs[0].Read(ctx)
		if err != nil {
			return nil, err
		}

		mask, ok := sel.Take()
		if !ok || len(mask) == 0 {
			return rec, nil
		}
		defer rec.Release()
		return filterRecord(ctx, alloc, rec, mask)
	}, input)
}

// filterRecord returns a new record holding the rows of rec whose mask entry
// is true, in their original order. rec is not released.
func filterRecord(ctx context.Context, alloc memory.Allocator, rec arrow.Record, mask []bool) (arrow.Record, error) {
	if int64(len(mask)) != rec.NumRows() {
		return nil, fmt.Errorf("%w: mask has %d entries, chunk has %d rows", ErrSelectionLength, len(mask), rec.NumRows())
	}

	if rec.NumCols() == 0 {
		var n int64
		for _, keep := range mask {
			if keep {
				n++
			}
		}
		return array.NewRecord(rec.Schema(), nil, n), nil
	}

	builder := array.NewBooleanBuilder(alloc)
	defer builder.Release()
	builder.AppendValues(mask, nil)

	filter := builder.NewBooleanArray()
	defer filter.Release()

	ctx = compute.WithAllocator(ctx, alloc)
	return compute.FilterRecordBatch(ctx, rec, filter, compute.DefaultFilterOptions())
}
