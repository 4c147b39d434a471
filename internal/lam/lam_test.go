package lam

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/isa/cpuinfo"
)

func TestForProfile_ReturnsFixedTable(t *testing.T) {
	m39, err := ForProfile(cpuinfo.VAWidth39)
	require.NoError(t, err)
	require.Equal(t, For39, m39)

	m48, err := ForProfile(cpuinfo.VAWidth48)
	require.NoError(t, err)
	require.Equal(t, For48, m48)

	m57, err := ForProfile(cpuinfo.VAWidth57)
	require.NoError(t, err)
	require.Equal(t, For57, m57)
}

func TestForProfile_RejectsUnknownWidth(t *testing.T) {
	_, err := ForProfile(cpuinfo.VAWidthProfile(64))
	require.Error(t, err)
}

func TestFor39_ExactBases(t *testing.T) {
	want := map[Region]Extent{
		NullPage:             {Base: 0x0, Length: 4096},
		Application:          {Base: 0x1000, Length: 512 * gib},
		KernelStackArena:     {Base: 0xffffff0000000000, Length: 4 * gib},
		KernelMmio:           {Base: 0xffffff0800000000, Length: 4 * gib},
		KernelAllocatorArena: {Base: 0xffffff1000000000, Length: 988 * gib},
		DirectMapping:        {Base: 0xffffff8000000000, Length: 512 * gib},
		KernelImage:          {Base: 0xffffffff80000000, Length: 2 * gib},
	}
	for r, e := range want {
		require.Equal(t, e, For39.Extent(r), "region %s", r)
	}
}

func TestFor48_ExactBases(t *testing.T) {
	want := map[Region]Extent{
		NullPage:             {Base: 0x0, Length: 4096},
		Application:          {Base: 0x1000, Length: 256 * tib},
		KernelStackArena:     {Base: 0xffff800000000000, Length: 2 * tib},
		KernelMmio:           {Base: 0xffff820000000000, Length: 2 * tib},
		KernelAllocatorArena: {Base: 0xffff840000000000, Length: 506 * tib},
		DirectMapping:        {Base: 0xffffff8000000000, Length: 256 * tib},
		KernelImage:          {Base: 0xffffffff80000000, Length: 2 * gib},
	}
	for r, e := range want {
		require.Equal(t, e, For48.Extent(r), "region %s", r)
	}
}

func TestFor57_ExactBases(t *testing.T) {
	want := map[Region]Extent{
		NullPage:             {Base: 0x0, Length: 4096},
		Application:          {Base: 0x1000, Length: 128 * pib},
		KernelStackArena:     {Base: 0xff80000000000000, Length: 1 * pib},
		KernelMmio:           {Base: 0xff88000000000000, Length: 1 * pib},
		KernelAllocatorArena: {Base: 0xff90000000000000, Length: 253 * pib},
		DirectMapping:        {Base: 0xffffff8000000000, Length: 128 * pib},
		KernelImage:          {Base: 0xffffffff80000000, Length: 2 * gib},
	}
	for r, e := range want {
		require.Equal(t, e, For57.Extent(r), "region %s", r)
	}
}

func TestMaps_AreDisjoint(t *testing.T) {
	require.True(t, For39.Disjoint())
	require.True(t, For48.Disjoint())
	require.True(t, For57.Disjoint())
}

// TestRegionType_TotalOverArenas exercises spec §4.F/§8's requirement
// that every address that actually belongs to a region resolves without
// error, including at the far end of the allocator arena and the kernel
// image, the two boundaries this package previously got wrong via
// integer overflow.
func TestRegionType_TotalOverArenas(t *testing.T) {
	for _, m := range []Map{For39, For48, For57} {
		for _, r := range []Region{
			NullPage, Application, KernelStackArena, KernelMmio,
			KernelAllocatorArena, DirectMapping, KernelImage,
		} {
			e := m.Extent(r)

			got, err := m.RegionType(e.Base)
			require.NoError(t, err)
			require.Equal(t, r, got, "first byte of %s", r)

			last := isa.VirtAddr(uintptr(e.Base) + e.Length - 1)
			got, err = m.RegionType(last)
			require.NoError(t, err, "last byte of %s", r)
			require.Equal(t, r, got, "last byte of %s", r)
		}
	}
}

func TestRegionType_OutsideAnyRegionErrors(t *testing.T) {
	gap := isa.VirtAddr(uintptr(For39.Extent(KernelMmio).Base) + For39.Extent(KernelMmio).Length)
	require.Less(t, uintptr(gap), uintptr(For39.Extent(KernelAllocatorArena).Base))
	_, err := For39.RegionType(gap)
	require.Error(t, err)
}

func TestExtentContains_TopRegionDoesNotWrapToEmpty(t *testing.T) {
	top := For39.Extent(KernelImage)
	require.True(t, top.Contains(isa.VirtAddr(^uintptr(0))))
	require.True(t, top.Contains(top.Base))
	require.False(t, top.Contains(isa.VirtAddr(uintptr(top.Base)-1)))
}
