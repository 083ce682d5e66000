package delta

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/thanos-io/objstore"
)

// objectReader reads an object of a bucket through ranged requests. It
// implements io.ReaderAt and io.Seeker as required by the parquet reader.
type objectReader struct {
	ctx    context.Context
	bucket objstore.BucketReader
	path   string
	size   int64
	offset int64
}

// openObject returns a reader for the object at path. A non-positive size is
// looked up from the object attributes.
func openObject(ctx context.Context, bucket objstore.BucketReader, path string, size int64) (*objectReader, error) {
	if size <= 0 {
		attrs, err := bucket.Attributes(ctx, path)
		if err != nil {
			if bucket.IsObjNotFoundErr(err) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("reading attributes of %s: %w", path, err)
		}
		size = attrs.Size
	}
	return &objectReader{ctx: ctx, bucket: bucket, path: path, size: size}, nil
}

func (r *objectReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= r.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if remain := r.size - off; want > remain {
		want = remain
	}

	rc, err := r.bucket.GetRange(r.ctx, r.path, off, want)
	if err != nil {
		if r.bucket.IsObjNotFoundErr(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, r.path)
		}
		return 0, err
	}
	defer rc.Close()

	n, err := io.ReadFull(rc, p[:want])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *objectReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

func (r *objectReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	r.offset = abs
	return abs, nil
}
