package syssched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/sched"
	"github.com/charlotte-os/catten/internal/thread"
)

type recordingWaker struct {
	woken []isa.LpID
}

func (w *recordingWaker) WakeLP(lp isa.LpID) error {
	w.woken = append(w.woken, lp)
	return nil
}

func newTestSystem() (*System, map[isa.LpID]*sched.LocalScheduler, *recordingWaker) {
	locals := map[isa.LpID]*sched.LocalScheduler{
		0: sched.NewLocalScheduler(&sched.RoundRobin{}),
		1: sched.NewLocalScheduler(&sched.RoundRobin{}),
	}
	waker := &recordingWaker{}
	table := thread.NewTable(nil, nil)
	s := New(locals, table, nil, waker)
	return s, locals, waker
}

func TestSubmitReadyThread_PicksLightestLoad(t *testing.T) {
	s, locals, waker := newTestSystem()
	locals[0].AddThread(thread.ID(100), isa.ASID(0))

	lp, err := s.SubmitReadyThread(thread.ID(1), isa.ASID(0))
	require.NoError(t, err)
	require.Equal(t, isa.LpID(1), lp, "LP 1 has fewer runnable threads")
	require.Contains(t, waker.woken, isa.LpID(1))
}

func TestSubmitReadyThread_DoesNotWakeNonIdleLP(t *testing.T) {
	locals := map[isa.LpID]*sched.LocalScheduler{
		0: sched.NewLocalScheduler(&sched.RoundRobin{}),
	}
	waker := &recordingWaker{}
	table := thread.NewTable(nil, nil)
	s := New(locals, table, nil, waker)

	locals[0].AddThread(thread.ID(1), isa.ASID(0))
	_, err := s.SubmitReadyThread(thread.ID(2), isa.ASID(0))
	require.NoError(t, err)
	require.Empty(t, waker.woken)
}

func TestGetLocalScheduler_UnknownLP(t *testing.T) {
	s, _, _ := newTestSystem()
	_, err := s.GetLocalScheduler(isa.LpID(99))
	require.ErrorIs(t, err, ErrUnknownLP)
}

func TestAbortAsThreads_RemovesFromEveryLP(t *testing.T) {
	s, locals, _ := newTestSystem()
	locals[0].AddThread(thread.ID(1), isa.ASID(5))
	locals[1].AddThread(thread.ID(2), isa.ASID(5))
	locals[1].AddThread(thread.ID(3), isa.ASID(6))

	require.NoError(t, s.AbortAsThreads(isa.ASID(5)))

	require.True(t, locals[0].IsIdle())
	require.Equal(t, 1, locals[1].Load())
}
