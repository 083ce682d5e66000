package scan

import (
	"context"

	"github.com/go-kit/log/level"
)

// SelectionVector is a mask over the physical rows of one data file. A row is
// kept when its entry is true. A vector of length 0 selects every row.
//
// The mask is handed out once: after [SelectionVector.Take] the vector is
// consumed.
type SelectionVector struct {
	mask     []bool
	consumed bool
}

// NewSelectionVector takes ownership of mask.
func NewSelectionVector(mask []bool) *SelectionVector {
	return &SelectionVector{mask: mask}
}

// Len returns the length of the mask, 0 once consumed.
func (s *SelectionVector) Len() int {
	if s == nil || s.consumed {
		return 0
	}
	return len(s.mask)
}

// Selected returns the number of rows the mask keeps. It returns -1 for a
// vector that selects every row.
func (s *SelectionVector) Selected() int {
	if s.Len() == 0 {
		return -1
	}
	n := 0
	for _, v := range s.mask {
		if v {
			n++
		}
	}
	return n
}

// Take hands out the mask, transferring ownership to the caller. It returns
// false if the vector was already consumed.
func (s *SelectionVector) Take() ([]bool, bool) {
	if s == nil || s.consumed {
		return nil, false
	}
	mask := s.mask
	s.mask, s.consumed = nil, true
	return mask, true
}

// Consumed reports whether the mask has been handed out.
func (s *SelectionVector) Consumed() bool { return s != nil && s.consumed }

// ResolveSelection builds the selection vector of f. A file without a
// deletion vector selects every row.
//
// Failing to resolve the deletion vector is not fatal: the failure is logged
// and counted, and the returned vector selects every row.
func ResolveSelection(ctx context.Context, c *Context, f *File) *SelectionVector {
	if f.DeletionVector == nil {
		return NewSelectionVector(nil)
	}

	dv := *f.DeletionVector
	if dv.NumRecords == 0 && f.Stats != nil {
		dv.NumRecords = f.Stats.NumRecords
	}

	mask, err := c.Engine.SelectionVector(ctx, &dv, c.TableRoot)
	if err != nil {
		c.Metrics.selectionFailures.Inc()
		level.Warn(c.Logger).Log("msg", "failed to resolve selection vector, selecting all rows", "path", f.Path, "err", err)
		return NewSelectionVector(nil)
	}
	return NewSelectionVector(mask)
}
