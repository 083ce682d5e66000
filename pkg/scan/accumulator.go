package scan

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Accumulator collects logical records in arrival order.
type Accumulator struct {
	alloc   memory.Allocator
	batches []arrow.Record
	rows    int64
}

// NewAccumulator returns an empty accumulator. Finalize allocates from alloc.
func NewAccumulator(alloc memory.Allocator) *Accumulator {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	return &Accumulator{alloc: alloc}
}

// Append takes ownership of rec.
func (a *Accumulator) Append(rec arrow.Record) {
	a.batches = append(a.batches, rec)
	a.rows += rec.NumRows()
}

// Len returns the number of collected records.
func (a *Accumulator) Len() int { return len(a.batches) }

// NumRows returns the total number of rows collected.
func (a *Accumulator) NumRows() int64 { return a.rows }

// Batches returns the collected records. The records remain owned by the
// accumulator.
func (a *Accumulator) Batches() []arrow.Record { return a.batches }

// Finalize concatenates the collected records column by column, in arrival
// order, into a single record owned by the caller. It returns nil if no
// records were collected.
//
// On failure the collected records are left intact and remain owned by the
// accumulator.
func (a *Accumulator) Finalize() (arrow.Record, error) {
	if len(a.batches) == 0 {
		return nil, nil
	}

	schema := a.batches[0].Schema()
	for i, rec := range a.batches[1:] {
		if !rec.Schema().Equal(schema) {
			return nil, fmt.Errorf("record %d has schema %s, expected %s", i+1, rec.Schema(), schema)
		}
	}

	cols := make([]arrow.Array, 0, schema.NumFields())
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	parts := make([]arrow.Array, len(a.batches))
	for c := range schema.NumFields() {
		for i, rec := range a.batches {
			parts[i] = rec.Column(c)
		}
		col, err := array.Concatenate(parts, a.alloc)
		if err != nil {
			return nil, fmt.Errorf("concatenating column %s: %w", schema.Field(c).Name, err)
		}
		cols = append(cols, col)
	}

	return array.NewRecord(schema, cols, a.rows), nil
}

// Release frees every collected record.
func (a *Accumulator) Release() {
	for _, rec := range a.batches {
		rec.Release()
	}
	a.batches = nil
	a.rows = 0
}
