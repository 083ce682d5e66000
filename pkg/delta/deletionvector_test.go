package delta

import (
	"bytes"
	"testing"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"

	"github.com/grafana/deltascan/pkg/scan"
)

func TestZ85(t *testing.T) {
	raw := []byte{0x86, 0x4F, 0xD2, 0x6F, 0xB5, 0x59, 0xF7, 0x5B}

	encoded, err := encodeZ85(raw)
	require.NoError(t, err)
	require.Equal(t, "HelloWorld", encoded)

	decoded, err := decodeZ85(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)

	_, err = decodeZ85("Hell")
	require.Error(t, err)
	_, err = decodeZ85("Hell~")
	require.Error(t, err)
	_, err = encodeZ85([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDeletionVectorPath(t *testing.T) {
	id := uuid.MustParse("d2c639aa-8816-431a-aaf6-d3fe2512ff61")

	pathOrInline, file, err := RelativeDeletionVectorPath("ab", id)
	require.NoError(t, err)
	require.Equal(t, "ab/deletion_vector_d2c639aa-8816-431a-aaf6-d3fe2512ff61.bin", file)

	got, err := deletionVectorPath(&scan.DeletionVector{StorageType: "u", PathOrInlineDV: pathOrInline}, "s3://bucket/table")
	require.NoError(t, err)
	require.Equal(t, file, got)

	got, err = deletionVectorPath(&scan.DeletionVector{StorageType: "p", PathOrInlineDV: "s3://bucket/table/dv/x.bin"}, "s3://bucket/table/")
	require.NoError(t, err)
	require.Equal(t, "dv/x.bin", got)

	_, err = deletionVectorPath(&scan.DeletionVector{StorageType: "p", PathOrInlineDV: "s3://other/x.bin"}, "s3://bucket/table")
	require.ErrorIs(t, err, ErrUnsupportedTable)

	_, err = deletionVectorPath(&scan.DeletionVector{StorageType: "u", PathOrInlineDV: "short"}, "s3://bucket/table")
	require.ErrorIs(t, err, ErrInvalidDeletionVector)
}

func TestReadDeletionVector(t *testing.T) {
	bkt := objstore.NewInMemBucket()

	t.Run("inline", func(t *testing.T) {
		encoded, size, err := InlineDeletionVector([]uint64{0, 5, 1 << 33})
		require.NoError(t, err)

		bm, err := readDeletionVector(t.Context(), bkt, &scan.DeletionVector{StorageType: "i", PathOrInlineDV: encoded, SizeInBytes: size}, "mem://t")
		require.NoError(t, err)
		require.Equal(t, []uint64{0, 5, 1 << 33}, bm.ToArray())
	})

	t.Run("file with checksum mismatch", func(t *testing.T) {
		data, offset, size, err := DeletionVectorFile([]uint64{3})
		require.NoError(t, err)
		data[len(data)-1] ^= 0xff
		require.NoError(t, bkt.Upload(t.Context(), "bad.bin", bytes.NewReader(data)))

		_, err = readDeletionVector(t.Context(), bkt, &scan.DeletionVector{StorageType: "p", PathOrInlineDV: "mem://t/bad.bin", Offset: &offset, SizeInBytes: size}, "mem://t")
		require.ErrorIs(t, err, ErrInvalidDeletionVector)
	})

	t.Run("size not positive", func(t *testing.T) {
		encoded, _, err := InlineDeletionVector([]uint64{1})
		require.NoError(t, err)
		offset := int32(1)

		for _, dv := range []*scan.DeletionVector{
			{StorageType: "i", PathOrInlineDV: encoded, SizeInBytes: -1},
			{StorageType: "i", PathOrInlineDV: encoded, SizeInBytes: 0},
			{StorageType: "p", PathOrInlineDV: "mem://t/bad.bin", Offset: &offset, SizeInBytes: -8},
		} {
			_, err := readDeletionVector(t.Context(), bkt, dv, "mem://t")
			require.ErrorIs(t, err, ErrInvalidDeletionVector)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		_, err := decodeBitmap([]byte{1, 2, 3, 4, 5})
		require.ErrorIs(t, err, ErrInvalidDeletionVector)
	})
}

func TestSelectionFromBitmap(t *testing.T) {
	mask, err := selectionFromBitmap(roaring64.New(), 0)
	require.NoError(t, err)
	require.Empty(t, mask)

	mask, err = selectionFromBitmap(roaring64.New(), 2)
	require.NoError(t, err)
	require.Equal(t, []bool{true, true}, mask)

	mask, err = selectionFromBitmap(roaring64.BitmapOf(0, 2), 4)
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, false, true}, mask)

	_, err = selectionFromBitmap(roaring64.BitmapOf(4), 4)
	require.ErrorIs(t, err, ErrInvalidDeletionVector)

	_, err = selectionFromBitmap(roaring64.BitmapOf(1), 0)
	require.ErrorIs(t, err, ErrInvalidDeletionVector, "unknown row count")
}
