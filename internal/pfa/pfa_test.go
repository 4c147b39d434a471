package pfa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
)

// newTestAllocator builds a PFA over [0x100000, 0x200000) usable memory,
// the S1/S2 scenario fixture from spec §8.
func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	highest := isa.PhysAddr(0x200000 - isa.PageSize)
	numFrames := uintptr(0x200000) / isa.PageSize
	storage := make([]byte, bitmapBytesFor(numFrames))
	usable := []MemRegion{{Base: 0x100000, Length: 0x100000, Kind: Usable}}
	a, err := New(highest, storage, usable, nil)
	require.NoError(t, err)
	return a
}

func TestS1_PFABasic(t *testing.T) {
	a := newTestAllocator(t)

	want := isa.PhysAddr(0x100000)
	for i := 0; i < 256; i++ {
		got, err := a.AllocateFrame()
		require.NoError(t, err)
		require.Equal(t, want, got, "iteration %d", i)
		want += isa.PageSize
	}

	_, err := a.AllocateFrame()
	require.ErrorIs(t, err, ErrOutOfFrames)
}

func TestS2_ContiguousWithAlignment(t *testing.T) {
	a := newTestAllocator(t)

	got, err := a.AllocateContiguous(4, 0x4000)
	require.NoError(t, err)
	require.EqualValues(t, 0x100000, got)

	got2, err := a.AllocateContiguous(4, 0x4000)
	require.NoError(t, err)
	require.EqualValues(t, 0x104000, got2)
}

func TestAllocateContiguous_RejectsNonPageMultipleAlignment(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.AllocateContiguous(1, 1024)
	require.ErrorIs(t, err, ErrInvalidPhysAlignment)
}

func TestDeallocate_MisalignedFails(t *testing.T) {
	a := newTestAllocator(t)
	err := a.DeallocateFrame(0x100001)
	require.ErrorIs(t, err, ErrMisalignedPhysicalAddress)
}

func TestDeallocate_UnallocatedFails(t *testing.T) {
	a := newTestAllocator(t)
	err := a.DeallocateFrame(0x180000)
	require.ErrorIs(t, err, ErrCannotDeallocateUnallocatedFrame)
}

func TestFrameZeroReserved(t *testing.T) {
	a := newTestAllocator(t)
	err := a.DeallocateFrame(0)
	require.ErrorIs(t, err, ErrCannotDeallocateUnallocatedFrame)
}

func TestMarkFrameUnavailable_ForbidsDoubleMark(t *testing.T) {
	a := newTestAllocator(t)
	require.NoError(t, a.MarkFrameUnavailable(0x180000))
	err := a.MarkFrameUnavailable(0x180000)
	require.ErrorIs(t, err, ErrFrameAlreadyInUse)
}

// TestBijection exercises invariant 1 from spec §8: after any sequence of
// allocate/deallocate, outstanding PAs equal the set bits, and
// deallocate(allocate()) is a no-op on the free count.
func TestBijection_AllocateThenDeallocateRestoresFreeCount(t *testing.T) {
	a := newTestAllocator(t)
	before := a.FreeFrameCount()

	pa, err := a.AllocateFrame()
	require.NoError(t, err)
	require.NoError(t, a.DeallocateFrame(pa))

	require.Equal(t, before, a.FreeFrameCount())
}

func TestBijection_OutstandingMatchesSetBits(t *testing.T) {
	a := newTestAllocator(t)
	before := a.FreeFrameCount()

	outstanding := map[isa.PhysAddr]bool{}
	for i := 0; i < 10; i++ {
		pa, err := a.AllocateFrame()
		require.NoError(t, err)
		outstanding[pa] = true
	}
	// give a few back
	i := 0
	for pa := range outstanding {
		if i >= 3 {
			break
		}
		require.NoError(t, a.DeallocateFrame(pa))
		delete(outstanding, pa)
		i++
	}

	free := a.FreeFrameCount()
	require.Equal(t, before-uintptr(len(outstanding)), free)
}
