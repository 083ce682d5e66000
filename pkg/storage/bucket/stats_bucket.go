package bucket

import (
	"context"
	"io"

	"github.com/thanos-io/objstore"
	"go.uber.org/atomic"
)

// Stats counts the requests made through a [StatsBucket].
type Stats struct {
	Iters      atomic.Int64
	Gets       atomic.Int64
	GetRanges  atomic.Int64
	Attributes atomic.Int64
	BytesRead  atomic.Int64
}

// StatsBucket wraps an objstore.Bucket and records request counts and bytes
// read to its Stats.
type StatsBucket struct {
	bkt   objstore.Bucket
	stats *Stats
}

// NewStatsBucket creates a new StatsBucket that wraps the given bucket.
func NewStatsBucket(bkt objstore.Bucket) *StatsBucket {
	return &StatsBucket{bkt: bkt, stats: &Stats{}}
}

// Stats returns the counters of the bucket.
func (b *StatsBucket) Stats() *Stats { return b.stats }

// Provider returns the underlying bucket provider.
func (b *StatsBucket) Provider() objstore.ObjProvider {
	return b.bkt.Provider()
}

// Close closes the underlying bucket.
func (b *StatsBucket) Close() error {
	return b.bkt.Close()
}

// Iter calls f for each entry in the given directory (not recursive.).
func (b *StatsBucket) Iter(ctx context.Context, dir string, f func(string) error, options ...objstore.IterOption) error {
	b.stats.Iters.Inc()
	return b.bkt.Iter(ctx, dir, f, options...)
}

// IterWithAttributes calls f for each entry in the given directory similar to Iter.
func (b *StatsBucket) IterWithAttributes(ctx context.Context, dir string, f func(objstore.IterObjectAttributes) error, options ...objstore.IterOption) error {
	b.stats.Iters.Inc()
	return b.bkt.IterWithAttributes(ctx, dir, f, options...)
}

// SupportedIterOptions returns a list of supported IterOptions by the underlying provider.
func (b *StatsBucket) SupportedIterOptions() []objstore.IterOptionType {
	return b.bkt.SupportedIterOptions()
}

// Get returns a reader for the given object name.
func (b *StatsBucket) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	b.stats.Gets.Inc()
	rc, err := b.bkt.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: rc, n: &b.stats.BytesRead}, nil
}

// GetRange returns a new range reader for the given object name and range.
func (b *StatsBucket) GetRange(ctx context.Context, name string, off, length int64) (io.ReadCloser, error) {
	b.stats.GetRanges.Inc()
	rc, err := b.bkt.GetRange(ctx, name, off, length)
	if err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: rc, n: &b.stats.BytesRead}, nil
}

// GetAndReplace an existing object with a new object.
func (b *StatsBucket) GetAndReplace(ctx context.Context, name string, f func(io.ReadCloser) (io.ReadCloser, error)) error {
	return b.bkt.GetAndReplace(ctx, name, f)
}

// Exists checks if the given object exists in the bucket.
func (b *StatsBucket) Exists(ctx context.Context, name string) (bool, error) {
	return b.bkt.Exists(ctx, name)
}

// IsObjNotFoundErr returns true if error means that object is not found.
func (b *StatsBucket) IsObjNotFoundErr(err error) bool {
	return b.bkt.IsObjNotFoundErr(err)
}

// IsAccessDeniedErr returns true if access to object is denied.
func (b *StatsBucket) IsAccessDeniedErr(err error) bool {
	return b.bkt.IsAccessDeniedErr(err)
}

// Attributes returns information about the specified object.
func (b *StatsBucket) Attributes(ctx context.Context, name string) (objstore.ObjectAttributes, error) {
	b.stats.Attributes.Inc()
	return b.bkt.Attributes(ctx, name)
}

// Upload uploads the contents of the reader as an object into the bucket.
func (b *StatsBucket) Upload(ctx context.Context, name string, r io.Reader) error {
	return b.bkt.Upload(ctx, name, r)
}

// Delete removes the object with the given name.
func (b *StatsBucket) Delete(ctx context.Context, name string) error {
	return b.bkt.Delete(ctx, name)
}

// Name returns the bucket name for the provider.
func (b *StatsBucket) Name() string {
	return b.bkt.Name()
}

var _ objstore.Bucket = (*StatsBucket)(nil)

type countingReader struct {
	io.ReadCloser
	n *atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n.Add(int64(n))
	return n, err
}
