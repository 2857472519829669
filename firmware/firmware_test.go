package firmware_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinkerator/psoc6prog/firmware"
	"github.com/tinkerator/psoc6prog/memmap"
	"github.com/tinkerator/psoc6prog/segment"
)

func TestClassifyDropsUnmapped(t *testing.T) {
	segs := []segment.Segment{
		segment.New(0x00000000, []byte{1, 2, 3}), // unmapped
		segment.New(0x10000000, []byte{4, 5, 6}), // ApplicationFlash
	}
	rec := firmware.Classify(memmap.PSoC6, segs)
	require.Equal(t, 1, rec.Dropped)
	require.Len(t, rec.ApplicationFlash, 1)
	require.Equal(t, []string{memmap.ApplicationFlash}, rec.Order)
}

func TestClassifyFoldsSFlash(t *testing.T) {
	segs := []segment.Segment{
		segment.New(memmap.PSoC6[2].Start, []byte{1}), // SFlashUserData
		segment.New(memmap.PSoC6[5].Start, []byte{2}), // SFlashTOC2
	}
	rec := firmware.Classify(memmap.PSoC6, segs)
	require.Len(t, rec.SFlash, 2)
	require.Equal(t, []string{memmap.SFlashName, memmap.SFlashName}, rec.Order)
}

// E2: two HEX blocks at 0x10000000 (len 512) and 0x10000400 (len 512) merge
// on PSoC6 into one 1536-byte segment with 0x00 fill between.
func TestMergeE2(t *testing.T) {
	a := segment.New(0x10000000, make([]byte, 512))
	for i := range a.Bytes {
		a.Bytes[i] = 0xAA
	}
	b := segment.New(0x10000400, make([]byte, 512))
	for i := range b.Bytes {
		b.Bytes[i] = 0xBB
	}
	rec := firmware.Classify(memmap.PSoC6, []segment.Segment{a, b})
	merged := firmware.Merge(rec, memmap.RowSize)
	require.Len(t, merged.ApplicationFlash, 1)
	s := merged.ApplicationFlash[0]
	require.Equal(t, uint32(0x10000000), s.First)
	require.Len(t, s.Bytes, 1536)
	require.Equal(t, a.Bytes, s.Bytes[:512])
	gap := s.Bytes[512:1024]
	for _, b := range gap {
		require.Equal(t, byte(0), b)
	}
	require.Equal(t, b.Bytes, s.Bytes[1024:])
}

func TestMergeBoundaryRowGapDoesNotMerge(t *testing.T) {
	const rowSize = memmap.RowSize
	// prev occupies row 0 [0,511]; curr starts after a gap of exactly
	// rowSize+1 bytes beyond prev.Last, landing in row 2 -> must not merge
	// (spec.md §8 property 4).
	prev := segment.New(0x10000000, make([]byte, rowSize))
	curr := segment.New(0x10000000+rowSize+ (rowSize+1), []byte{1, 2, 3})
	rec := firmware.Classify(memmap.PSoC6, []segment.Segment{prev, curr})
	merged := firmware.Merge(rec, rowSize)
	require.Len(t, merged.ApplicationFlash, 2)
}

func TestMergeAdjacentRowsDoMerge(t *testing.T) {
	const rowSize = memmap.RowSize
	prev := segment.New(0x10000000, make([]byte, rowSize))
	curr := segment.New(0x10000000+rowSize, []byte{1, 2, 3}) // next row, contiguous
	rec := firmware.Classify(memmap.PSoC6, []segment.Segment{prev, curr})
	merged := firmware.Merge(rec, rowSize)
	require.Len(t, merged.ApplicationFlash, 1)
}

func TestMergeIdempotent(t *testing.T) {
	a := segment.New(0x10000000, make([]byte, 512))
	b := segment.New(0x10000400, make([]byte, 512))
	c := segment.New(0x10001000, make([]byte, 16))
	rec := firmware.Classify(memmap.PSoC6, []segment.Segment{a, b, c})
	once := firmware.Merge(rec, memmap.RowSize)
	twice := firmware.Merge(once, memmap.RowSize)
	require.Equal(t, once.ApplicationFlash, twice.ApplicationFlash)
}

func TestMergePreservesOrderAcrossBuckets(t *testing.T) {
	// Interleave ApplicationFlash and a single-valued region so Order has to
	// carry through in original insertion order, with exactly one
	// ApplicationFlash tag dropped for the pair that merges.
	a := segment.New(0x10000000, make([]byte, 512))
	b := segment.New(0x10000400, make([]byte, 512)) // merges with a (gap==rowSize)
	ck := segment.New(memmap.PSoC6[8].Start, make([]byte, 4))
	c := segment.New(0x10001000, make([]byte, 16)) // too far from b to merge

	rec := firmware.Classify(memmap.PSoC6, []segment.Segment{a, ck, b, c})
	require.Equal(t, []string{
		memmap.ApplicationFlash, memmap.Checksum, memmap.ApplicationFlash, memmap.ApplicationFlash,
	}, rec.Order)

	merged := firmware.Merge(rec, memmap.RowSize)
	require.Len(t, merged.ApplicationFlash, 2)
	require.Equal(t, []string{
		memmap.ApplicationFlash, memmap.Checksum, memmap.ApplicationFlash,
	}, merged.Order)

	// Re-running Merge is deterministic (no map-iteration-order dependence).
	mergedAgain := firmware.Merge(rec, memmap.RowSize)
	require.Equal(t, merged.Order, mergedAgain.Order)
}

func TestVerifyChecksumRegion(t *testing.T) {
	app := segment.New(0x10000000, []byte{1, 2, 3, 4})
	rec := firmware.Classify(memmap.PSoC6, []segment.Segment{app})
	require.NoError(t, rec.VerifyChecksumRegion()) // no Checksum region present: nil

	ck := segment.New(memmap.PSoC6[8].Start, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	rec2 := firmware.Classify(memmap.PSoC6, []segment.Segment{app, ck})
	err := rec2.VerifyChecksumRegion()
	require.Error(t, err)
	var cm *firmware.ChecksumMismatchError
	require.ErrorAs(t, err, &cm)
}
