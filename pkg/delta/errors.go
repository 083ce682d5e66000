package delta

import "errors"

var (
	// ErrUnsupportedTable is returned for tables using log or protocol
	// features the engine cannot read.
	ErrUnsupportedTable = errors.New("unsupported table")

	// ErrFileNotFound is returned when a file referenced by the log does not
	// exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrVersionNotFound is returned when the requested table version does
	// not exist.
	ErrVersionNotFound = errors.New("table version not found")

	// ErrInvalidDeletionVector is returned for malformed or inconsistent
	// deletion vectors.
	ErrInvalidDeletionVector = errors.New("invalid deletion vector")

	// ErrMissingColumn is returned when a data file lacks a non-nullable
	// column of the read schema.
	ErrMissingColumn = errors.New("missing column")

	// ErrInvalidLog is returned for commit files that cannot be parsed.
	ErrInvalidLog = errors.New("invalid delta log")
)
