// Package isasim is a pure-Go, heap-allocating implementation of
// internal/isa.Ops used only by tests. Real architecture backends
// (ops_amd64.go, ops_arm64.go, ops_riscv64.go) are //go:nosplit and must
// not allocate; isasim intentionally may, since it never runs on bare
// metal.
package isasim

import (
	"sync"
	"sync/atomic"

	"github.com/charlotte-os/catten/internal/isa"
)

// LP simulates one logical processor's private register file: the bits
// internal/isa.Ops reads and writes (LP id, LIC id, per-LP store base,
// thread context pointer, interrupt mask) plus a halt/wake condition so
// tests can observe idle-vs-running transitions.
type LP struct {
	mu sync.Mutex

	id            isa.LpID
	licID         uint32
	lpLocalBase   isa.VirtAddr
	threadCtx     isa.VirtAddr
	pageTableBase isa.PhysAddr
	masked        atomic.Bool

	halted   bool
	wakeCh   chan struct{}
	haltedCh chan struct{} // not created or used by any method
}

// NewLP builds a simulated LP with the given hardware ids.
func NewLP(id isa.LpID, licID uint32) *LP {
	return &LP{id: id, licID: licID, wakeCh: make(chan struct{}, 1)}
}

var _ isa.Ops = (*LP)(nil)

// Halt blocks until Wake is called, simulating "suspend until interrupt".
func (l *LP) Halt() {
	l.mu.Lock()
	l.halted = true
	l.mu.Unlock()
	<-l.wakeCh
	l.mu.Lock()
	l.halted = false
	l.mu.Unlock()
}

// Wake releases a Halt() call. It is a test/IPI-handler convenience, not
// part of the isa.Ops contract (real ISA backends wake via an interrupt,
// which is exactly what this simulates at the scheduler layer).
func (l *LP) Wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// IsHalted reports whether the simulated LP is currently parked in Halt.
func (l *LP) IsHalted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

func (l *LP) MaskInterrupts()   { l.masked.Store(true) }
func (l *LP) UnmaskInterrupts() { l.masked.Store(false) }
func (l *LP) InterruptsMasked() bool { return l.masked.Load() }

func (l *LP) StoreLpID(id isa.LpID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = id
}

func (l *LP) GetLpID() isa.LpID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id
}

func (l *LP) GetLicID() uint32 { return l.licID }

func (l *LP) GetLpLocalBase() isa.VirtAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lpLocalBase
}

func (l *LP) SetLpLocalBase(va isa.VirtAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lpLocalBase = va
}

func (l *LP) GetThreadContextPtr() isa.VirtAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.threadCtx
}

func (l *LP) SetThreadContextPtr(va isa.VirtAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threadCtx = va
}

func (l *LP) GetPageTableBase() isa.PhysAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pageTableBase
}

func (l *LP) SetPageTableBase(pa isa.PhysAddr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pageTableBase = pa
}
