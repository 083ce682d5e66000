package scan

import (
	"strconv"

	"github.com/grafana/deltascan/pkg/expr"
)

// Stats holds the statistics an engine knows about a data file.
type Stats struct {
	// NumRecords is the number of physical rows in the file.
	NumRecords int64
}

// DeletionVector describes the rows deleted from a data file.
type DeletionVector struct {
	// StorageType is the engine-defined kind of storage ("i" inline, "u"
	// relative path, "p" absolute path for Delta tables).
	StorageType    string
	PathOrInlineDV string
	Offset         *int32
	SizeInBytes    int32
	Cardinality    int64

	// NumRecords is the number of physical rows of the file the vector
	// applies to; 0 if unknown.
	NumRecords int64
}

// ID returns a string unique to the deletion vector.
func (dv *DeletionVector) ID() string {
	if dv == nil {
		return ""
	}
	id := dv.StorageType + dv.PathOrInlineDV
	if dv.Offset != nil {
		id += "@" + strconv.Itoa(int(*dv.Offset))
	}
	return id
}

// File is a single entry of a scan metadata chunk.
//
// The transform and partition values of a File are borrowed from the chunk:
// they are valid only while the file is being visited. Accessing them later
// panics with [ErrBorrowExpired].
type File struct {
	Path           string
	Size           int64
	Stats          *Stats
	DeletionVector *DeletionVector

	transform       expr.Expression
	partitionValues map[string]string
	expired         bool
}

// NewFile returns a scan file entry for the data file at path.
func NewFile(path string, size int64) *File {
	return &File{Path: path, Size: size}
}

// WithTransform sets the transform that turns the file's physical records
// into logical records. A nil transform is the identity.
func (f *File) WithTransform(e expr.Expression) *File {
	f.transform = e
	return f
}

// WithPartitionValues sets the raw partition values of the file. A column
// missing from values has a null partition value.
func (f *File) WithPartitionValues(values map[string]string) *File {
	f.partitionValues = values
	return f
}

// Transform returns the file's transform, nil for the identity.
func (f *File) Transform() expr.Expression {
	f.borrow()
	return f.transform
}

// PartitionValue returns the raw partition value of column name.
func (f *File) PartitionValue(name string) (string, bool) {
	f.borrow()
	v, ok := f.partitionValues[name]
	return v, ok
}

func (f *File) borrow() {
	if f.expired {
		panic(ErrBorrowExpired)
	}
}

// expire ends the borrow of the file's transform and partition values.
func (f *File) expire() {
	f.expired = true
	f.transform = nil
	f.partitionValues = nil
}
