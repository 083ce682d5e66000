package delta

import (
	"fmt"
	"net/url"

	jsoniter "github.com/json-iterator/go"

	"github.com/grafana/deltascan/pkg/scan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// action is a single line of a commit file. Exactly one field is set for
// the actions the engine reads; other actions leave all fields nil.
type action struct {
	Protocol *protocolAction `json:"protocol,omitempty"`
	MetaData *metadataAction `json:"metaData,omitempty"`
	Add      *addAction      `json:"add,omitempty"`
	Remove   *removeAction   `json:"remove,omitempty"`
}

type protocolAction struct {
	MinReaderVersion int      `json:"minReaderVersion"`
	MinWriterVersion int      `json:"minWriterVersion"`
	ReaderFeatures   []string `json:"readerFeatures,omitempty"`
	WriterFeatures   []string `json:"writerFeatures,omitempty"`
}

type formatSpec struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options"`
}

type metadataAction struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           formatSpec        `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration,omitempty"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}

type addAction struct {
	Path             string                    `json:"path"`
	PartitionValues  map[string]*string        `json:"partitionValues"`
	Size             int64                     `json:"size"`
	ModificationTime int64                     `json:"modificationTime"`
	DataChange       bool                      `json:"dataChange"`
	Stats            string                    `json:"stats,omitempty"`
	Tags             map[string]string         `json:"tags,omitempty"`
	DeletionVector   *deletionVectorDescriptor `json:"deletionVector,omitempty"`
}

type removeAction struct {
	Path              string                    `json:"path"`
	DeletionTimestamp *int64                    `json:"deletionTimestamp,omitempty"`
	DataChange        bool                      `json:"dataChange"`
	PartitionValues   map[string]*string        `json:"partitionValues,omitempty"`
	Size              *int64                    `json:"size,omitempty"`
	DeletionVector    *deletionVectorDescriptor `json:"deletionVector,omitempty"`
}

type deletionVectorDescriptor struct {
	StorageType    string `json:"storageType"`
	PathOrInlineDv string `json:"pathOrInlineDv"`
	Offset         *int32 `json:"offset,omitempty"`
	SizeInBytes    int32  `json:"sizeInBytes"`
	Cardinality    int64  `json:"cardinality"`
}

// fileStats is the subset of the add.stats JSON the engine uses.
type fileStats struct {
	NumRecords *int64 `json:"numRecords"`
}

// scanDeletionVector returns dv as a scan deletion vector, nil for a nil
// descriptor.
func (dv *deletionVectorDescriptor) scanDeletionVector() *scan.DeletionVector {
	if dv == nil {
		return nil
	}
	return &scan.DeletionVector{
		StorageType:    dv.StorageType,
		PathOrInlineDV: dv.PathOrInlineDv,
		Offset:         dv.Offset,
		SizeInBytes:    dv.SizeInBytes,
		Cardinality:    dv.Cardinality,
	}
}

// fileKey identifies a logical file: the same path with a different
// deletion vector is a different file.
type fileKey struct {
	path string
	dvID string
}

func (a *addAction) key() fileKey {
	return fileKey{path: a.Path, dvID: a.DeletionVector.scanDeletionVector().ID()}
}

func (r *removeAction) key() fileKey {
	return fileKey{path: r.Path, dvID: r.DeletionVector.scanDeletionVector().ID()}
}

// numRecords returns the row count of the add's stats, or -1 if the stats
// are absent.
func (a *addAction) numRecords() (int64, error) {
	if a.Stats == "" {
		return -1, nil
	}
	var st fileStats
	if err := json.UnmarshalFromString(a.Stats, &st); err != nil {
		return -1, fmt.Errorf("parsing stats of %s: %w", a.Path, err)
	}
	if st.NumRecords == nil {
		return -1, nil
	}
	return *st.NumRecords, nil
}

// scanFile converts the add into a scan file entry, without transform or
// partition values.
func (a *addAction) scanFile() (*scan.File, error) {
	path, err := url.PathUnescape(a.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: bad path %q: %v", ErrInvalidLog, a.Path, err)
	}

	f := scan.NewFile(path, a.Size)

	n, err := a.numRecords()
	if err != nil {
		return nil, err
	}
	if n >= 0 {
		f.Stats = &scan.Stats{NumRecords: n}
	}

	if dv := a.DeletionVector.scanDeletionVector(); dv != nil {
		if n >= 0 {
			dv.NumRecords = n
		}
		f.DeletionVector = dv
	}
	return f, nil
}
