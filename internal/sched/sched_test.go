package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/thread"
)

func TestRoundRobin_FirstPickIsIndexZero(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	s.AddThread(thread.ID(1), isa.ASID(0))
	s.AddThread(thread.ID(2), isa.ASID(0))

	tid, ok := s.NextThread()
	require.True(t, ok)
	require.Equal(t, thread.ID(1), tid, "first pick must not skip the first thread")
}

// TestS6_RoundRobinFairness mirrors spec §8: every thread in a single
// ASID's run queue is visited once per full cycle, with no thread
// skipped or repeated early.
func TestS6_RoundRobinFairness(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	want := []thread.ID{1, 2, 3, 4}
	for _, tid := range want {
		s.AddThread(tid, isa.ASID(0))
	}

	seen := map[thread.ID]int{}
	for i := 0; i < len(want)*3; i++ {
		tid, ok := s.NextThread()
		require.True(t, ok)
		seen[tid]++
	}

	for _, tid := range want {
		require.Equal(t, 3, seen[tid], "thread %d should be picked exactly 3 times over 3 cycles", tid)
	}
}

func TestRoundRobin_AdvancesAcrossASIDs(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	s.AddThread(thread.ID(1), isa.ASID(0))
	s.AddThread(thread.ID(2), isa.ASID(1))

	first, _ := s.NextThread()
	second, _ := s.NextThread()
	third, _ := s.NextThread()

	require.Equal(t, thread.ID(1), first)
	require.Equal(t, thread.ID(2), second)
	require.Equal(t, thread.ID(1), third, "cycle should wrap back to the first ASID")
}

func TestNextThread_EmptyQueueReturnsFalse(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	_, ok := s.NextThread()
	require.False(t, ok)
}

func TestRemoveThreads_DropsFromQueue(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	s.AddThread(thread.ID(1), isa.ASID(0))
	s.AddThread(thread.ID(2), isa.ASID(0))

	s.RemoveThreads([]thread.ID{1})
	require.Equal(t, 1, s.Load())

	tid, ok := s.NextThread()
	require.True(t, ok)
	require.Equal(t, thread.ID(2), tid)
}

func TestRemoveAS_AdvancesStrategyWhenCurrent(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	s.AddThread(thread.ID(1), isa.ASID(0))
	s.AddThread(thread.ID(2), isa.ASID(1))
	s.AddThread(thread.ID(3), isa.ASID(0))

	_, _ = s.NextThread() // picks 1; ASID 0 stays current with 3 still queued

	s.RemoveAS(isa.ASID(0))
	require.True(t, s.IsIdle() == false)

	tid, ok := s.NextThread()
	require.True(t, ok)
	require.Equal(t, thread.ID(2), tid)
}

func TestIsIdle(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	require.True(t, s.IsIdle())
	s.AddThread(thread.ID(1), isa.ASID(0))
	require.False(t, s.IsIdle())
}

func TestASIDToHwASID(t *testing.T) {
	s := NewLocalScheduler(&RoundRobin{})
	_, ok := s.ASIDToHwASID(isa.ASID(0))
	require.False(t, ok)

	s.BindHwASID(isa.ASID(0), isa.HwASID(7))
	hw, ok := s.ASIDToHwASID(isa.ASID(0))
	require.True(t, ok)
	require.Equal(t, isa.HwASID(7), hw)
}
