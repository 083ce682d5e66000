// Package deltatest builds Delta tables for tests: parquet data files written
// with parquet-go, deletion vector files and commits, stored in an objstore
// bucket.
package deltatest

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/grafana/deltascan/pkg/delta"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Table writes a Delta table into a bucket. Versions are committed in order
// starting at 0.
type Table struct {
	t       testing.TB
	Bucket  objstore.Bucket
	version int64
}

// NewTable returns a table writing into bkt.
func NewTable(t testing.TB, bkt objstore.Bucket) *Table {
	return &Table{t: t, Bucket: bkt}
}

// NewInMemTable returns a table stored in an in-memory bucket.
func NewInMemTable(t testing.TB) *Table {
	return NewTable(t, objstore.NewInMemBucket())
}

// NewDirTable returns a table stored in a temporary directory, and the
// directory.
func NewDirTable(t testing.TB) (*Table, string) {
	dir := t.TempDir()
	bkt, err := filesystem.NewBucket(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bkt.Close() })
	return NewTable(t, bkt), dir
}

// Field is a column of a table schema.
type Field struct {
	Name     string
	Type     any
	Nullable bool
}

// SchemaString returns the Delta schema JSON of fields. Type is either a
// primitive type name or a complex type object.
func SchemaString(fields ...Field) string {
	type field struct {
		Name     string         `json:"name"`
		Type     any            `json:"type"`
		Nullable bool           `json:"nullable"`
		Metadata map[string]any `json:"metadata"`
	}

	out := struct {
		Type   string  `json:"type"`
		Fields []field `json:"fields"`
	}{Type: "struct"}
	for _, f := range fields {
		out.Fields = append(out.Fields, field{Name: f.Name, Type: f.Type, Nullable: f.Nullable, Metadata: map[string]any{}})
	}

	s, err := json.MarshalToString(out)
	if err != nil {
		panic(err)
	}
	return s
}

// Action is a single line of a commit file.
type Action map[string]any

// Protocol returns a protocol action.
func Protocol(minReader, minWriter int, readerFeatures ...string) Action {
	p := map[string]any{
		"minReaderVersion": minReader,
		"minWriterVersion": minWriter,
	}
	if minReader >= 3 {
		if readerFeatures == nil {
			readerFeatures = []string{}
		}
		p["readerFeatures"] = readerFeatures
		p["writerFeatures"] = readerFeatures
	}
	return Action{"protocol": p}
}

// Metadata returns a metaData action.
func Metadata(schema string, partitionColumns []string, configuration map[string]string) Action {
	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	if configuration == nil {
		configuration = map[string]string{}
	}
	return Action{"metaData": map[string]any{
		"id":               uuid.NewString(),
		"format":           map[string]any{"provider": "parquet", "options": map[string]string{}},
		"schemaString":     schema,
		"partitionColumns": partitionColumns,
		"configuration":    configuration,
		"createdTime":      1700000000000,
	}}
}

// DeletionVector is the descriptor of a deletion vector.
type DeletionVector struct {
	StorageType    string `json:"storageType"`
	PathOrInlineDv string `json:"pathOrInlineDv"`
	Offset         *int32 `json:"offset,omitempty"`
	SizeInBytes    int32  `json:"sizeInBytes"`
	Cardinality    int64  `json:"cardinality"`
}

// AddFile describes an add action.
type AddFile struct {
	Path            string
	Size            int64
	PartitionValues map[string]*string
	// NumRecords is written to the stats when positive.
	NumRecords     int64
	DeletionVector *DeletionVector
}

// Add returns an add action.
func Add(f AddFile) Action {
	add := map[string]any{
		"path":             f.Path,
		"size":             f.Size,
		"partitionValues":  f.PartitionValues,
		"modificationTime": 1700000000000,
		"dataChange":       true,
	}
	if f.PartitionValues == nil {
		add["partitionValues"] = map[string]*string{}
	}
	if f.NumRecords > 0 {
		add["stats"] = fmt.Sprintf(`{"numRecords":%d}`, f.NumRecords)
	}
	if f.DeletionVector != nil {
		add["deletionVector"] = f.DeletionVector
	}
	return Action{"add": add}
}

// Remove returns a remove action for the file at path with the given
// deletion vector.
func Remove(path string, dv *DeletionVector) Action {
	remove := map[string]any{
		"path":              path,
		"deletionTimestamp": 1700000000000,
		"dataChange":        true,
	}
	if dv != nil {
		remove["deletionVector"] = dv
	}
	return Action{"remove": remove}
}

// Value returns a pointer to a partition value.
func Value(s string) *string { return &s }

// Commit writes actions as the next version of the table and returns the
// version.
func (tb *Table) Commit(actions ...Action) int64 {
	var buf bytes.Buffer
	for _, a := range actions {
		line, err := json.Marshal(a)
		require.NoError(tb.t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}

	v := tb.version
	tb.Put(fmt.Sprintf("_delta_log/%020d.json", v), buf.Bytes())
	tb.version++
	return v
}

// Put uploads data at path.
func (tb *Table) Put(path string, data []byte) {
	require.NoError(tb.t, tb.Bucket.Upload(tb.t.Context(), path, bytes.NewReader(data)))
}

// InlineDV returns an inline deletion vector deleting rows.
func (tb *Table) InlineDV(rows ...uint64) *DeletionVector {
	encoded, size, err := delta.InlineDeletionVector(rows)
	require.NoError(tb.t, err)
	return &DeletionVector{
		StorageType:    "i",
		PathOrInlineDv: encoded,
		SizeInBytes:    size,
		Cardinality:    int64(len(rows)),
	}
}

// WriteDV writes a deletion vector file deleting rows under prefix and
// returns its descriptor.
func (tb *Table) WriteDV(prefix string, rows ...uint64) *DeletionVector {
	data, offset, size, err := delta.DeletionVectorFile(rows)
	require.NoError(tb.t, err)

	pathOrInline, path, err := delta.RelativeDeletionVectorPath(prefix, uuid.New())
	require.NoError(tb.t, err)
	tb.Put(path, data)

	return &DeletionVector{
		StorageType:    "u",
		PathOrInlineDv: pathOrInline,
		Offset:         &offset,
		SizeInBytes:    size,
		Cardinality:    int64(len(rows)),
	}
}

// WriteParquet writes rows as a parquet file at path and returns its size.
func WriteParquet[T any](tb *Table, path string, rows []T) int64 {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf)
	_, err := w.Write(rows)
	require.NoError(tb.t, err)
	require.NoError(tb.t, w.Close())

	tb.Put(path, buf.Bytes())
	return int64(buf.Len())
}
