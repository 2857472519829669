package memmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinkerator/psoc6prog/memmap"
)

func TestRegionDispatch(t *testing.T) {
	for _, r := range memmap.PSoC6 {
		got, ok := memmap.RegionOf(memmap.PSoC6, r.Start)
		require.True(t, ok, "region %s start should resolve", r.Name)
		require.Equal(t, r.Name, got.Name)

		got, ok = memmap.RegionOf(memmap.PSoC6, r.End()-1)
		require.True(t, ok, "region %s last byte should resolve", r.Name)
		require.Equal(t, r.Name, got.Name)

		if r.Start > 0 {
			_, ok = memmap.RegionOf(memmap.PSoC6, r.Start-1)
			// the byte below a region's start may legitimately belong to an
			// adjacent region (e.g. the SFlash sub-regions are contiguous),
			// so only assert "not this region".
			if ok {
				got2, _ := memmap.RegionOf(memmap.PSoC6, r.Start-1)
				require.NotEqual(t, r.Name, got2.Name)
			}
		}

		_, ok = memmap.RegionOf(memmap.PSoC6, r.End())
		if ok {
			got2, _ := memmap.RegionOf(memmap.PSoC6, r.End())
			require.NotEqual(t, r.Name, got2.Name)
		}
	}
}

func TestUnmappedAddress(t *testing.T) {
	_, ok := memmap.RegionOf(memmap.PSoC6, 0x00000000)
	require.False(t, ok)
}

func TestLogicalFoldsSFlash(t *testing.T) {
	require.Equal(t, memmap.SFlashName, memmap.Logical(memmap.SFlashUserData))
	require.Equal(t, memmap.SFlashName, memmap.Logical(memmap.SFlashTOC2))
	require.Equal(t, memmap.ApplicationFlash, memmap.Logical(memmap.ApplicationFlash))
}

func TestAlign(t *testing.T) {
	require.Equal(t, uint32(0x10000000), memmap.AlignDown(0x10000005, memmap.RowSize))
	require.Equal(t, uint32(0x10000200), memmap.AlignUp(0x10000005, memmap.RowSize))
	require.Equal(t, uint32(0x10000000), memmap.AlignUp(0x10000000, memmap.RowSize))
}
