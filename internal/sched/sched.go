// Package sched implements the per-LP LocalScheduler (spec §4.L): a run
// queue grouped by ASID with a pluggable Strategy selecting the next
// thread to run.
package sched

import (
	"sort"
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/thread"
)

// Strategy selects the next thread/ASID to run from a RunQueue. The
// kernel only ever needs a small, closed set of strategies (round-robin
// today, more later); a single dynamic-dispatch interface covers that
// without over-generalising into a plugin system.
type Strategy interface {
	NextThread(rq *RunQueue) (thread.ID, bool)
	NextAS(rq *RunQueue) (isa.ASID, bool)
	GetCurrAS() isa.ASID
}

// RunQueue groups runnable thread ids by the ASID they belong to.
type RunQueue struct {
	byASID map[isa.ASID][]thread.ID
	tidASID map[thread.ID]isa.ASID
}

func newRunQueue() *RunQueue {
	return &RunQueue{byASID: make(map[isa.ASID][]thread.ID), tidASID: make(map[thread.ID]isa.ASID)}
}

func (rq *RunQueue) sortedASIDs() []isa.ASID {
	asids := make([]isa.ASID, 0, len(rq.byASID))
	for a := range rq.byASID {
		asids = append(asids, a)
	}
	sort.Slice(asids, func(i, j int) bool { return asids[i] < asids[j] })
	return asids
}

// RoundRobin is the default Strategy (spec §4.L): it advances the
// thread index within the current ASID's list, and on wrap advances to
// the next ASID key (cyclically over the map's ordered key set),
// resetting the thread index to 0.
//
// Resolution of the ambiguity spec's Open Questions flags (the
// round-robin source's off-by-one pre-increment, which would skip the
// first thread on every list): NextThread returns the thread at the
// current index and only then advances, so a freshly filled queue's
// first pick is index 0, not index 1.
type RoundRobin struct {
	currASID  isa.ASID
	threadIdx int
	haveASID  bool
}

var _ Strategy = (*RoundRobin)(nil)

func (r *RoundRobin) GetCurrAS() isa.ASID { return r.currASID }

func (r *RoundRobin) NextAS(rq *RunQueue) (isa.ASID, bool) {
	asids := rq.sortedASIDs()
	if len(asids) == 0 {
		r.haveASID = false
		return 0, false
	}
	if !r.haveASID {
		r.currASID = asids[0]
		r.haveASID = true
		r.threadIdx = 0
		return r.currASID, true
	}
	for i, a := range asids {
		if a == r.currASID {
			next := asids[(i+1)%len(asids)]
			r.currASID = next
			r.threadIdx = 0
			return next, true
		}
	}
	// currASID no longer exists (removed); restart at the first key.
	r.currASID = asids[0]
	r.threadIdx = 0
	return r.currASID, true
}

func (r *RoundRobin) NextThread(rq *RunQueue) (thread.ID, bool) {
	if len(rq.byASID) == 0 {
		return 0, false
	}
	if !r.haveASID {
		if _, ok := r.NextAS(rq); !ok {
			return 0, false
		}
	}

	tids, ok := rq.byASID[r.currASID]
	if !ok || len(tids) == 0 {
		if _, ok := r.NextAS(rq); !ok {
			return 0, false
		}
		tids = rq.byASID[r.currASID]
		if len(tids) == 0 {
			return 0, false
		}
	}

	if r.threadIdx >= len(tids) {
		if _, ok := r.NextAS(rq); !ok {
			return 0, false
		}
		tids = rq.byASID[r.currASID]
		if len(tids) == 0 {
			return 0, false
		}
	}

	tid := tids[r.threadIdx]
	r.threadIdx++
	if r.threadIdx >= len(tids) {
		r.NextAS(rq)
	}
	return tid, true
}

// LocalScheduler owns one LP's RunQueue and Strategy.
type LocalScheduler struct {
	mu       sync.Mutex
	rq       *RunQueue
	strategy Strategy
	hwasids  map[isa.ASID]isa.HwASID
}

// NewLocalScheduler builds a scheduler with the given Strategy
// (typically &RoundRobin{}).
func NewLocalScheduler(strategy Strategy) *LocalScheduler {
	return &LocalScheduler{rq: newRunQueue(), strategy: strategy, hwasids: make(map[isa.ASID]isa.HwASID)}
}

// AddThread inserts tid under asid's run queue list.
func (s *LocalScheduler) AddThread(tid thread.ID, asid isa.ASID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rq.byASID[asid] = append(s.rq.byASID[asid], tid)
	s.rq.tidASID[tid] = asid
}

// RemoveThreads deletes every listed tid from whatever ASID list holds
// it (spec §4.L).
func (s *LocalScheduler) RemoveThreads(tids []thread.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tid := range tids {
		asid, ok := s.rq.tidASID[tid]
		if !ok {
			continue
		}
		delete(s.rq.tidASID, tid)
		list := s.rq.byASID[asid]
		for i, t := range list {
			if t == tid {
				s.rq.byASID[asid] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(s.rq.byASID[asid]) == 0 {
			delete(s.rq.byASID, asid)
		}
	}
}

// RemoveAS drops every thread belonging to asid; if it is the
// strategy's current ASID, the strategy is advanced first (spec §4.L).
func (s *LocalScheduler) RemoveAS(asid isa.ASID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strategy.GetCurrAS() == asid {
		s.strategy.NextAS(s.rq)
	}
	for _, tid := range s.rq.byASID[asid] {
		delete(s.rq.tidASID, tid)
	}
	delete(s.rq.byASID, asid)
	delete(s.hwasids, asid)
}

// NextThread picks the next runnable thread via the scheduler's
// Strategy; returns ok=false (caller halts) if the run queue is empty.
func (s *LocalScheduler) NextThread() (thread.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy.NextThread(s.rq)
}

// IsIdle reports whether the run queue has no runnable threads at all.
func (s *LocalScheduler) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rq.byASID) == 0
}

// Load reports the number of runnable threads, the metric
// internal/syssched uses for lightest-load thread placement.
func (s *LocalScheduler) Load() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tids := range s.rq.byASID {
		n += len(tids)
	}
	return n
}

// BindHwASID records the per-LP HwAsid bound to asid.
func (s *LocalScheduler) BindHwASID(asid isa.ASID, hw isa.HwASID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hwasids[asid] = hw
}

// ASIDToHwASID returns the per-LP HwAsid binding if any (spec §4.L).
func (s *LocalScheduler) ASIDToHwASID(asid isa.ASID) (isa.HwASID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hw, ok := s.hwasids[asid]
	return hw, ok
}
