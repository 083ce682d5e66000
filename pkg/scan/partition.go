package scan

import (
	"fmt"
	"slices"
)

// PartitionDirectory is the ordered list of partition column names of a
// snapshot.
type PartitionDirectory struct {
	names []string
}

// NewPartitionDirectory consumes it to exhaustion. It returns
// [ErrPartitionCountMismatch] if it yields a number of names other than
// count.
func NewPartitionDirectory(count int, it StringIterator) (*PartitionDirectory, error) {
	names := make([]string, 0, count)
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		names = append(names, name)
	}

	if len(names) != count {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrPartitionCountMismatch, count, len(names))
	}
	return &PartitionDirectory{names: names}, nil
}

// Len returns the number of partition columns.
func (d *PartitionDirectory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

// Names returns the partition column names in declaration order.
func (d *PartitionDirectory) Names() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.names)
}

// Contains reports whether name is a partition column.
func (d *PartitionDirectory) Contains(name string) bool {
	return d != nil && slices.Contains(d.names, name)
}

// SliceIterator is a [StringIterator] over a slice.
type SliceIterator struct {
	values []string
	pos    int
}

// NewSliceIterator returns an iterator yielding values in order.
func NewSliceIterator(values []string) *SliceIterator {
	return &SliceIterator{values: values}
}

// Next implements [StringIterator].
func (it *SliceIterator) Next() (string, bool) {
	if it.pos >= len(it.values) {
		return "", false
	}
	v := it.values[it.pos]
	it.pos++
	return v, true
}
