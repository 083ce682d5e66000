package delta

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/uuid"
	"github.com/thanos-io/objstore"

	"github.com/grafana/deltascan/pkg/scan"
)

const (
	// dvMagic prefixes a serialized portable RoaringBitmapArray.
	dvMagic uint32 = 1681511377

	dvFormatVersion byte = 1

	dvStorageInline   = "i"
	dvStorageRelative = "u"
	dvStorageAbsolute = "p"
)

// deletionVectorPath returns the path of the file of dv, relative to the
// table root.
func deletionVectorPath(dv *scan.DeletionVector, tableRoot string) (string, error) {
	switch dv.StorageType {
	case dvStorageRelative:
		s := dv.PathOrInlineDV
		if len(s) < 20 {
			return "", fmt.Errorf("%w: relative path %q is too short", ErrInvalidDeletionVector, s)
		}
		prefix, encoded := s[:len(s)-20], s[len(s)-20:]
		raw, err := decodeZ85(encoded)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDeletionVector, err)
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDeletionVector, err)
		}
		return path.Join(prefix, "deletion_vector_"+id.String()+".bin"), nil

	case dvStorageAbsolute:
		return relativeTo(dv.PathOrInlineDV, tableRoot)
	}
	return "", fmt.Errorf("%w: storage type %q has no file", ErrInvalidDeletionVector, dv.StorageType)
}

// relativeTo returns p relative to the table root. Deletion vector files
// outside the table cannot be read through the table bucket.
func relativeTo(p, tableRoot string) (string, error) {
	clean := func(s string) string {
		if u, err := url.Parse(s); err == nil && u.Scheme != "" {
			s = u.Host + u.Path
		}
		return strings.TrimSuffix(s, "/")
	}

	root, file := clean(tableRoot), clean(p)
	rel, ok := strings.CutPrefix(file, root+"/")
	if !ok || rel == "" {
		return "", fmt.Errorf("%w: deletion vector %s is outside the table root", ErrUnsupportedTable, p)
	}
	return rel, nil
}

// readDeletionVector loads the bitmap of deleted row indexes of dv.
func readDeletionVector(ctx context.Context, bucket objstore.BucketReader, dv *scan.DeletionVector, tableRoot string) (*roaring64.Bitmap, error) {
	if dv.SizeInBytes <= 0 {
		return nil, fmt.Errorf("%w: size %d is not positive", ErrInvalidDeletionVector, dv.SizeInBytes)
	}

	if dv.StorageType == dvStorageInline {
		raw, err := decodeZ85(dv.PathOrInlineDV)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDeletionVector, err)
		}
		if int(dv.SizeInBytes) > len(raw) {
			return nil, fmt.Errorf("%w: inline size %d exceeds data size %d", ErrInvalidDeletionVector, dv.SizeInBytes, len(raw))
		}
		return decodeBitmap(raw[:dv.SizeInBytes])
	}

	name, err := deletionVectorPath(dv, tableRoot)
	if err != nil {
		return nil, err
	}

	var offset int64
	if dv.Offset != nil {
		offset = int64(*dv.Offset)
	}
	// size prefix, payload and checksum
	length := 4 + int64(dv.SizeInBytes) + 4

	rc, err := bucket.GetRange(ctx, name, offset, length)
	if err != nil {
		if bucket.IsObjNotFoundErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("reading deletion vector %s: %w", name, err)
	}
	defer rc.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidDeletionVector, name, err)
	}

	size := binary.BigEndian.Uint32(buf[:4])
	if int32(size) != dv.SizeInBytes {
		return nil, fmt.Errorf("%w: %s: stored size %d, expected %d", ErrInvalidDeletionVector, name, size, dv.SizeInBytes)
	}
	payload := buf[4 : 4+size]
	if sum, want := crc32.ChecksumIEEE(payload), binary.BigEndian.Uint32(buf[4+size:]); sum != want {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrInvalidDeletionVector, name)
	}
	return decodeBitmap(payload)
}

func decodeBitmap(payload []byte) (*roaring64.Bitmap, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: payload too short", ErrInvalidDeletionVector)
	}
	if magic := binary.LittleEndian.Uint32(payload[:4]); magic != dvMagic {
		return nil, fmt.Errorf("%w: bad magic %d", ErrInvalidDeletionVector, magic)
	}

	bm := roaring64.New()
	if _, err := bm.ReadFrom(bytes.NewReader(payload[4:])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeletionVector, err)
	}
	return bm, nil
}

// selectionFromBitmap returns the mask selecting the rows not in deleted.
// numRecords is the row count of the file. Without it only an empty bitmap
// can be turned into a mask.
func selectionFromBitmap(deleted *roaring64.Bitmap, numRecords int64) ([]bool, error) {
	if deleted.IsEmpty() {
		if numRecords <= 0 {
			return []bool{}, nil
		}
		return allSelected(numRecords), nil
	}
	if numRecords <= 0 {
		return nil, fmt.Errorf("%w: row count of the data file is unknown", ErrInvalidDeletionVector)
	}

	if highest := deleted.Maximum(); highest >= uint64(numRecords) {
		return nil, fmt.Errorf("%w: deleted row %d beyond %d rows", ErrInvalidDeletionVector, highest, numRecords)
	}

	mask := allSelected(numRecords)
	it := deleted.Iterator()
	for it.HasNext() {
		mask[it.Next()] = false
	}
	return mask, nil
}

func allSelected(n int64) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

// SerializeDeletionVector returns the payload of a deletion vector deleting
// rows.
func SerializeDeletionVector(rows []uint64) ([]byte, error) {
	bm := roaring64.BitmapOf(rows...)
	bm.RunOptimize()

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, dvMagic); err != nil {
		return nil, err
	}
	if _, err := bm.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InlineDeletionVector returns the Z85 encoded form of a deletion vector
// deleting rows, and its size in bytes.
func InlineDeletionVector(rows []uint64) (string, int32, error) {
	payload, err := SerializeDeletionVector(rows)
	if err != nil {
		return "", 0, err
	}
	size := int32(len(payload))
	if pad := len(payload) % 4; pad != 0 {
		payload = append(payload, make([]byte, 4-pad)...)
	}
	encoded, err := encodeZ85(payload)
	return encoded, size, err
}

// DeletionVectorFile returns the content of a deletion vector file holding a
// single vector deleting rows, with the offset and size of the vector.
func DeletionVectorFile(rows []uint64) (data []byte, offset, size int32, err error) {
	payload, err := SerializeDeletionVector(rows)
	if err != nil {
		return nil, 0, 0, err
	}

	buf := make([]byte, 0, 1+4+len(payload)+4)
	buf = append(buf, dvFormatVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(payload))
	return buf, 1, int32(len(payload)), nil
}

// RelativeDeletionVectorPath returns the pathOrInlineDv value of a relative
// deletion vector with the given id under prefix, and the path of its file
// relative to the table root.
func RelativeDeletionVectorPath(prefix string, id uuid.UUID) (string, string, error) {
	encoded, err := encodeZ85(id[:])
	if err != nil {
		return "", "", err
	}
	return prefix + encoded, path.Join(prefix, "deletion_vector_"+id.String()+".bin"), nil
}
