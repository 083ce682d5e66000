package scan

import (
	"errors"
	"fmt"
)

var (
	// EOF is returned by ChunkReader.Read and MetadataIterator.Next when
	// there is no more data.
	EOF = errors.New("scan exhausted") //nolint:revive,staticcheck

	// ErrSelectionLength is returned when a selection vector does not cover
	// exactly the rows of the chunk it is applied to.
	ErrSelectionLength = errors.New("selection vector length does not match chunk rows")

	// ErrPartitionCountMismatch is returned when the partition column
	// iterator yields a different number of names than declared.
	ErrPartitionCountMismatch = errors.New("partition column count mismatch")

	// ErrBorrowExpired is the panic value raised when borrowed data of a
	// scan file is accessed after its visit returned.
	ErrBorrowExpired = errors.New("borrowed scan file data accessed after visit")
)

// Error is a fatal scan error. Op names the failed operation; Path is the
// data file involved, if any.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op, path string, err error) error {
	var se *Error
	if errors.As(err, &se) && se.Op == op && se.Path == path {
		return err
	}
	return &Error{Op: op, Path: path, Err: err}
}
