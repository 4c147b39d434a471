// Package ipirpc implements the IPI-RPC protocol (spec §4.J): cross-LP
// work delivered via interrupt with explicit completion, used for TLB
// shootdowns and thread lifecycle operations that must run on the LP
// currently owning the affected state.
package ipirpc

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charlotte-os/catten/internal/isa"
)

// ErrMailboxBusy is returned when a CAS into a target mailbox slot loses
// to a concurrent sender (spec §4.J).
var ErrMailboxBusy = errors.New("ipirpc: mailbox busy")

// Vector is the fixed interrupt vector assigned to one IPI-RPC purpose
// (spec §4.I): stable across rebuilds since it is baked into the
// context-switch assembly's dispatch table.
type Vector uint8

const (
	VectorContextSwitch Vector = 32
	VectorWakeLP        Vector = 33
	VectorUnicastIPI    Vector = 34
	VectorMulticastIPI  Vector = 35
	VectorBroadcastIPI  Vector = 36
	VectorSpurious      Vector = 255
)

// Kind tags the operation carried by an IpiRpc.
type Kind uint8

const (
	KindVMemInval Kind = iota
	KindAsidInval
	KindTerminateThreads
	KindAbortThreads
	KindAbortAsThreads
	KindWake
	KindEvictThread
)

// Completion is the barrier a sender waits on until every recipient has
// finished local work (spec §4.J "signalled only after local work
// finishes").
type Completion struct {
	wg sync.WaitGroup
}

func newCompletion(n int) *Completion {
	c := &Completion{}
	c.wg.Add(n)
	return c
}

// Signal marks one recipient's local work done.
func (c *Completion) Signal() { c.wg.Done() }

// Wait blocks until every recipient has signalled.
func (c *Completion) Wait() { c.wg.Wait() }

// IpiRpc is the tagged command delivered to one or more LPs.
type IpiRpc struct {
	Kind    Kind
	VAddr   isa.VirtAddr
	Pages   uintptr
	ASID    isa.ASID
	HwASID  isa.HwASID
	Tids    []uint64
	Event   uint64
}

// IpiRpcReq wraps one IpiRpc with the completion every recipient must
// signal before the slot is cleared.
type IpiRpcReq struct {
	Op         IpiRpc
	Completion *Completion

	// acksRemaining counts down from the number of recipients sharing
	// this slot (only ever >1 for a broadcast). Only the recipient that
	// decrements it to zero clears the slot, so a fast recipient can
	// never erase the request out from under a slower one still reading
	// it.
	acksRemaining atomic.Int32
}

// Mailbox holds one LP's pending unicast and multicast request slots,
// as atomic pointers so Send can CAS NULL -> &req without taking a lock
// (spec §4.J). The shared broadcast slot lives on System, not here.
type Mailbox struct {
	unicast   atomic.Pointer[IpiRpcReq]
	multicast atomic.Pointer[IpiRpcReq]
}

// System holds every LP's Mailbox plus the one shared broadcast slot.
type System struct {
	mu        sync.RWMutex
	mailboxes map[isa.LpID]*Mailbox
	broadcast atomic.Pointer[IpiRpcReq]

	// Sender is the per-LP IPI transmission seam (wraps isa.Ops.GetLicID
	// + an LIC's send_unicast_ipi); kept narrow so tests can substitute a
	// recorder instead of a real LIC.
	Sender Sender
}

// Sender is implemented by internal/lic's controller and by test
// doubles; it fires vector at the hardware destination for lp.
type Sender interface {
	SendIPI(lp isa.LpID, vector Vector) error
}

// NewSystem builds an ipirpc System with one Mailbox per known LP.
func NewSystem(lps []isa.LpID, sender Sender) *System {
	s := &System{mailboxes: make(map[isa.LpID]*Mailbox, len(lps)), Sender: sender}
	for _, lp := range lps {
		s.mailboxes[lp] = &Mailbox{}
	}
	return s
}

func (s *System) mailbox(lp isa.LpID) (*Mailbox, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.mailboxes[lp]
	return mb, ok
}

// SendUnicast CASes req into target's unicast slot and, on success,
// fires the unicast-IPI vector.
func (s *System) SendUnicast(target isa.LpID, op IpiRpc) (*Completion, error) {
	mb, ok := s.mailbox(target)
	if !ok {
		return nil, errors.New("ipirpc: unknown target LP")
	}
	completion := newCompletion(1)
	req := &IpiRpcReq{Op: op, Completion: completion}
	if !mb.unicast.CompareAndSwap(nil, req) {
		return nil, ErrMailboxBusy
	}
	if err := s.Sender.SendIPI(target, VectorUnicastIPI); err != nil {
		mb.unicast.CompareAndSwap(req, nil)
		return nil, err
	}
	return completion, nil
}

// SendMulticast sorts targets ascending, CASes every slot in that
// order, reverting any already-written slot on the first failure, and
// only on full success fires the multicast vector to each target in the
// same ascending order (spec §4.J: this ordering is what prevents
// deadlock between senders targeting overlapping LP sets).
func (s *System) SendMulticast(targets []isa.LpID, op IpiRpc) (*Completion, error) {
	sorted := append([]isa.LpID(nil), targets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	completion := newCompletion(len(sorted))
	req := &IpiRpcReq{Op: op, Completion: completion}

	written := make([]*Mailbox, 0, len(sorted))
	for _, lp := range sorted {
		mb, ok := s.mailbox(lp)
		if !ok {
			revert(written, req)
			return nil, errors.New("ipirpc: unknown target LP")
		}
		if !mb.multicast.CompareAndSwap(nil, req) {
			revert(written, req)
			return nil, ErrMailboxBusy
		}
		written = append(written, mb)
	}

	for _, lp := range sorted {
		if err := s.Sender.SendIPI(lp, VectorMulticastIPI); err != nil {
			return nil, err
		}
	}
	return completion, nil
}

func revert(written []*Mailbox, req *IpiRpcReq) {
	for _, mb := range written {
		mb.multicast.CompareAndSwap(req, nil)
	}
}

// SendBroadcast CASes the shared broadcast slot once and fires the
// broadcast vector at every known LP.
func (s *System) SendBroadcast(op IpiRpc) (*Completion, error) {
	s.mu.RLock()
	lps := make([]isa.LpID, 0, len(s.mailboxes))
	for lp := range s.mailboxes {
		lps = append(lps, lp)
	}
	s.mu.RUnlock()
	sort.Slice(lps, func(i, j int) bool { return lps[i] < lps[j] })

	completion := newCompletion(len(lps))
	req := &IpiRpcReq{Op: op, Completion: completion}
	req.acksRemaining.Store(int32(len(lps)))
	if !s.broadcast.CompareAndSwap(nil, req) {
		return nil, ErrMailboxBusy
	}
	for _, lp := range lps {
		if err := s.Sender.SendIPI(lp, VectorBroadcastIPI); err != nil {
			return nil, err
		}
	}
	return completion, nil
}

// Handler performs the local effect of one IpiRpc. No package in this
// repository implements it outside the tests.
type Handler interface {
	Handle(op IpiRpc)
}

// ReceiveUnicast is called from the unicast-IPI vector's handler on the
// recipient LP: reads its own slot, dispatches via h, signals the
// completion, and clears the slot.
func (s *System) ReceiveUnicast(self isa.LpID, h Handler) {
	mb, ok := s.mailbox(self)
	if !ok {
		return
	}
	req := mb.unicast.Load()
	if req == nil {
		return
	}
	h.Handle(req.Op)
	req.Completion.Signal()
	mb.unicast.CompareAndSwap(req, nil)
}

// ReceiveMulticast is the multicast-IPI vector's handler counterpart.
func (s *System) ReceiveMulticast(self isa.LpID, h Handler) {
	mb, ok := s.mailbox(self)
	if !ok {
		return
	}
	req := mb.multicast.Load()
	if req == nil {
		return
	}
	h.Handle(req.Op)
	req.Completion.Signal()
	mb.multicast.CompareAndSwap(req, nil)
}

// ReceiveBroadcast is the broadcast-IPI vector's handler counterpart.
// Every LP observes the same slot, so whichever recipient happens to run
// first must not clear it out from under the others still reading it:
// only the recipient whose acksRemaining decrement reaches zero — the
// last one in — clears the slot.
func (s *System) ReceiveBroadcast(h Handler) {
	req := s.broadcast.Load()
	if req == nil {
		return
	}
	h.Handle(req.Op)
	req.Completion.Signal()
	if req.acksRemaining.Add(-1) == 0 {
		s.broadcast.CompareAndSwap(req, nil)
	}
}
