// Package vmmsim provides a host-testable internal/vmm.PhysMem backed by
// a Go map instead of a real direct-mapped physical address range, the
// same role internal/isa/isasim plays for internal/isa.Ops.
package vmmsim

import (
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
)

// Mem simulates physical memory as a set of independently-allocated
// frames; reads/writes are addressed as (frame base, word index).
type Mem struct {
	mu     sync.Mutex
	frames map[isa.PhysAddr][isa.PageSize]byte
}

// New returns a ready-to-use simulated physical memory.
func New() *Mem {
	return &Mem{frames: make(map[isa.PhysAddr][isa.PageSize]byte)}
}

func pageBase(pa isa.PhysAddr) isa.PhysAddr {
	return pa - isa.PhysAddr(uintptr(pa)%isa.PageSize)
}

func (m *Mem) ReadUint64(pa isa.PhysAddr, index uintptr) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame := m.frames[pageBase(pa)]
	off := index * 8
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(frame[off+uintptr(i)]) << (8 * i)
	}
	return v
}

func (m *Mem) WriteUint64(pa isa.PhysAddr, index uintptr, v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame := m.frames[pageBase(pa)]
	off := index * 8
	for i := 0; i < 8; i++ {
		frame[off+uintptr(i)] = byte(v >> (8 * i))
	}
	m.frames[pageBase(pa)] = frame
}

func (m *Mem) ZeroFrame(pa isa.PhysAddr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[pageBase(pa)] = [isa.PageSize]byte{}
}
