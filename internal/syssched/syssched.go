// Package syssched implements the System Scheduler (spec §4.M): a
// process-wide singleton owning every LP's LocalScheduler, responsible
// for placement, blocking, and broadcasting the thread-lifecycle
// IpiRpc operations.
package syssched

import (
	"errors"
	"sort"
	"sync"

	"github.com/charlotte-os/catten/internal/ipirpc"
	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/sched"
	"github.com/charlotte-os/catten/internal/thread"
)

var ErrUnknownLP = errors.New("syssched: unknown LP")

// Waker lets the system scheduler wake an idle LP (spec §4.M
// "wakes that LP via a unicast Wake IPI if it is idle"). No type outside
// the tests implements it; with a nil Waker no LP is woken.
type Waker interface {
	WakeLP(lp isa.LpID) error
}

// System is the process-wide scheduler singleton.
type System struct {
	mu        sync.Mutex
	locals    map[isa.LpID]*sched.LocalScheduler
	threadLP  map[thread.ID]isa.LpID
	table     *thread.Table
	rpc       *ipirpc.System
	waker     Waker
}

// New builds a System over the given LPs' local schedulers.
func New(locals map[isa.LpID]*sched.LocalScheduler, table *thread.Table, rpc *ipirpc.System, waker Waker) *System {
	return &System{locals: locals, threadLP: make(map[thread.ID]isa.LpID), table: table, rpc: rpc, waker: waker}
}

// GetLocalScheduler returns lp's LocalScheduler.
func (s *System) GetLocalScheduler(lp isa.LpID) (*sched.LocalScheduler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	local, ok := s.locals[lp]
	if !ok {
		return nil, ErrUnknownLP
	}
	return local, nil
}

// SubmitReadyThread assigns tid to the LP with the lightest run-queue
// load, adds it there, and wakes that LP if it was idle (spec §4.M).
func (s *System) SubmitReadyThread(tid thread.ID, asid isa.ASID) (isa.LpID, error) {
	s.mu.Lock()
	if len(s.locals) == 0 {
		s.mu.Unlock()
		return 0, errors.New("syssched: no LPs registered")
	}

	lps := make([]isa.LpID, 0, len(s.locals))
	for lp := range s.locals {
		lps = append(lps, lp)
	}
	sort.Slice(lps, func(i, j int) bool { return lps[i] < lps[j] })

	var target isa.LpID
	best := -1
	for _, lp := range lps {
		load := s.locals[lp].Load()
		if best == -1 || load < best {
			best = load
			target = lp
		}
	}
	wasIdle := s.locals[target].IsIdle()
	s.locals[target].AddThread(tid, asid)
	s.threadLP[tid] = target
	s.mu.Unlock()

	if wasIdle && s.waker != nil {
		if err := s.waker.WakeLP(target); err != nil {
			return target, err
		}
	}
	return target, nil
}

// BlockTid appends the caller's completion to t's blocker list and
// transitions t to Blocked (spec §4.M). If SubmitReadyThread has placed t
// on an LP and an ipirpc System is set, it then broadcasts an
// EvictThread IpiRpc; whether t is running at that moment is not checked.
func (s *System) BlockTid(t *thread.Thread, completion *thread.Completion) error {
	t.AddBlocker(completion)

	s.mu.Lock()
	lp, running := s.threadLP[t.ID]
	s.mu.Unlock()
	if !running || s.rpc == nil {
		return nil
	}

	_, err := s.rpc.SendBroadcast(ipirpc.IpiRpc{Kind: ipirpc.KindEvictThread, Tids: []uint64{uint64(t.ID)}})
	_ = lp
	return err
}

// TerminateThreads removes the listed tids from every LP's run queue and
// reaps them from the thread table with ReapTerminate (which marks them
// Terminated), all on the calling LP, then broadcasts a TerminateThreads
// IpiRpc when an ipirpc System is set (spec §4.M). Reap errors are not
// returned.
func (s *System) TerminateThreads(tids []thread.ID) error {
	return s.broadcastReap(tids, ipirpc.KindTerminateThreads)
}

// AbortThreads is TerminateThreads's non-cleanup-running counterpart.
func (s *System) AbortThreads(tids []thread.ID) error {
	return s.broadcastReap(tids, ipirpc.KindAbortThreads)
}

// AbortAsThreads removes every thread belonging to asid from every LP's
// run queue and broadcasts an AbortAsThreads IpiRpc when an ipirpc System
// is set. It does not reap those threads from the thread table or mark
// them Terminated.
func (s *System) AbortAsThreads(asid isa.ASID) error {
	s.mu.Lock()
	for lp := range s.locals {
		s.locals[lp].RemoveAS(asid)
	}
	s.mu.Unlock()

	if s.rpc == nil {
		return nil
	}
	_, err := s.rpc.SendBroadcast(ipirpc.IpiRpc{Kind: ipirpc.KindAbortAsThreads, ASID: asid})
	return err
}

func (s *System) broadcastReap(tids []thread.ID, kind ipirpc.Kind) error {
	u64 := make([]uint64, len(tids))
	for i, tid := range tids {
		u64[i] = uint64(tid)
	}

	s.mu.Lock()
	for lp := range s.locals {
		s.locals[lp].RemoveThreads(tids)
	}
	s.mu.Unlock()

	reapKind := thread.ReapTerminate
	if kind == ipirpc.KindAbortThreads {
		reapKind = thread.ReapAbort
	}
	s.table.ReapMany(tids, reapKind)

	if s.rpc == nil {
		return nil
	}
	_, err := s.rpc.SendBroadcast(ipirpc.IpiRpc{Kind: kind, Tids: u64})
	return err
}

// YieldLP picks the next thread from lp's LocalScheduler and passes it
// to resume (spec §4.M). It returns nil once resume returns, or an error
// if lp is unknown, its run queue is empty, or the picked thread is not
// in the table. internal/boot does not call it.
func (s *System) YieldLP(lp isa.LpID, resume func(*thread.Thread)) error {
	local, err := s.GetLocalScheduler(lp)
	if err != nil {
		return err
	}
	tid, ok := local.NextThread()
	if !ok {
		return errors.New("syssched: no runnable thread for yield_lp")
	}
	t, ok := s.table.Get(tid)
	if !ok {
		return thread.ErrUnknownThread
	}
	resume(t)
	return nil
}
