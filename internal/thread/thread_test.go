package thread

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/isa/cpuinfo"
	"github.com/charlotte-os/catten/internal/kheap"
	"github.com/charlotte-os/catten/internal/lam"
	"github.com/charlotte-os/catten/internal/pfa"
	"github.com/charlotte-os/catten/internal/vmm"
	"github.com/charlotte-os/catten/internal/vmm/vmmsim"
)

type fakeFrameWriter struct{}

func (fakeFrameWriter) WriteEntryFrame(top isa.VirtAddr, _ EntryFrame) isa.VirtAddr {
	return top - 64 // pretend the frame occupies 64 bytes
}

func newTestStacks(t *testing.T) *kheap.StackAllocator {
	t.Helper()
	mem := vmmsim.New()
	highest := isa.PhysAddr(0x4000000 - isa.PageSize)
	numFrames := uintptr(0x4000000) / isa.PageSize
	storage := make([]byte, (numFrames+7)/8)
	usable := []pfa.MemRegion{{Base: 0x100000, Length: 0x4000000 - 0x100000, Kind: pfa.Usable}}
	frames, err := pfa.New(highest, storage, usable, nil)
	require.NoError(t, err)

	m, err := lam.ForProfile(cpuinfo.VAWidth39)
	require.NoError(t, err)
	as, err := vmm.NewKernelAddressSpace(mem, frames, cpuinfo.VAWidth39, m)
	require.NoError(t, err)

	return kheap.NewStackAllocator(as, frames, m.Extent(lam.KernelStackArena))
}

func TestNew_KernelThread_NoUserStack(t *testing.T) {
	stacks := newTestStacks(t)
	th, err := New(1, false, isa.ASID(0), stacks, fakeFrameWriter{}, isa.VirtAddr(0x1000), isa.PhysAddr(0x2000), 0x08, 0x10, 0x202)
	require.NoError(t, err)

	require.Equal(t, NeedsLpAssignment, th.State)
	require.NotZero(t, th.Context.SavedKernelSP)
	require.Zero(t, th.Context.SavedUserSP)
	_, isUser := th.UserStackTop()
	require.False(t, isUser)
}

func TestNew_UserThread_AllocatesSecondStack(t *testing.T) {
	stacks := newTestStacks(t)
	th, err := New(2, true, isa.ASID(1), stacks, fakeFrameWriter{}, isa.VirtAddr(0x1000), isa.PhysAddr(0x2000), 0x1b, 0x23, 0x202)
	require.NoError(t, err)

	top, isUser := th.UserStackTop()
	require.True(t, isUser)
	require.NotZero(t, top)
}

func TestBlocker_TransitionsState(t *testing.T) {
	th := &Thread{State: Running}
	c := NewCompletion()
	th.AddBlocker(c)
	require.Equal(t, Blocked, th.State)
	require.Len(t, th.Blockers(), 1)

	th.ClearBlockers()
	require.Equal(t, Running, th.State)
	require.Empty(t, th.Blockers())
}

func TestTable_Reap_TerminateRunsCleanupHook(t *testing.T) {
	stacks := newTestStacks(t)
	th, err := New(3, false, isa.ASID(0), stacks, fakeFrameWriter{}, 0x1000, 0x2000, 0x08, 0x10, 0x202)
	require.NoError(t, err)

	ran := false
	tb := NewTable(stacks, func(*Thread) { ran = true })
	tb.Add(th)

	require.NoError(t, tb.Reap(3, ReapTerminate))
	require.True(t, ran)
	require.Equal(t, Terminated, th.State)

	_, ok := tb.Get(3)
	require.False(t, ok)
}

func TestTable_Reap_AbortSkipsCleanupHook(t *testing.T) {
	stacks := newTestStacks(t)
	th, err := New(4, false, isa.ASID(0), stacks, fakeFrameWriter{}, 0x1000, 0x2000, 0x08, 0x10, 0x202)
	require.NoError(t, err)

	ran := false
	tb := NewTable(stacks, func(*Thread) { ran = true })
	tb.Add(th)

	require.NoError(t, tb.Reap(4, ReapAbort))
	require.False(t, ran)
}

func TestTable_Reap_UnknownThreadFails(t *testing.T) {
	tb := NewTable(newTestStacks(t), nil)
	err := tb.Reap(999, ReapTerminate)
	require.ErrorIs(t, err, ErrUnknownThread)
}
