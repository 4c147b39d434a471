package kheap

import (
	"errors"
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/lam"
	"github.com/charlotte-os/catten/internal/pfa"
	"github.com/charlotte-os/catten/internal/vmm"
)

// ErrInvalidStack is returned by DeallocateStack when top is not a
// known guard boundary (spec §4.G).
var ErrInvalidStack = errors.New("kheap: top is not a known stack boundary")

// StackAllocator hands out guard-paged kernel stacks from
// KernelStackArena: n usable pages framed by one unmapped guard page on
// each side (spec §4.G, §9 step 1).
type StackAllocator struct {
	mu     sync.Mutex
	as     *vmm.AddressSpace
	frames *pfa.Allocator
	arena  lam.Extent

	// tops maps a returned top address to the page count it was built
	// with, recovering n for DeallocateStack without re-walking guards.
	tops map[isa.VirtAddr]uintptr
}

// NewStackAllocator builds a stack allocator over KernelStackArena.
func NewStackAllocator(as *vmm.AddressSpace, frames *pfa.Allocator, arena lam.Extent) *StackAllocator {
	return &StackAllocator{as: as, frames: frames, arena: arena, tops: make(map[isa.VirtAddr]uintptr)}
}

// AllocateStack locates n+2 consecutive unmapped pages, maps the middle
// n KernelData, and returns base + (n+1)*PageSize: the address
// immediately above the usable region, suitable as an initial stack
// pointer (stacks grow downward on every supported ISA).
func (s *StackAllocator) AllocateStack(n uintptr) (isa.VirtAddr, error) {
	if n == 0 {
		return 0, errors.New("kheap: AllocateStack requires n > 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.as.FindFreeRegion(n+2, s.arena.Base, s.arena.Base+isa.VirtAddr(s.arena.Length))
	if err != nil {
		return 0, err
	}

	for i := uintptr(0); i < n; i++ {
		pa, err := s.frames.AllocateFrame()
		if err != nil {
			return 0, ErrOutOfMemory
		}
		va := base + isa.VirtAddr((i+1)*isa.PageSize)
		if err := s.as.MapPage(va, pa, isa.KernelData); err != nil {
			return 0, err
		}
	}

	top := base + isa.VirtAddr((n+1)*isa.PageSize)
	s.tops[top] = n
	return top, nil
}

// DeallocateStack unmaps and frees the n pages belonging to the stack
// that returned top, leaving the whole n+2-page span unmapped again.
func (s *StackAllocator) DeallocateStack(top isa.VirtAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.tops[top]
	if !ok {
		return ErrInvalidStack
	}
	delete(s.tops, top)

	base := top - isa.VirtAddr((n+1)*isa.PageSize)
	for i := uintptr(0); i < n; i++ {
		va := base + isa.VirtAddr((i+1)*isa.PageSize)
		pa, err := s.as.TranslateAddress(va)
		if err != nil {
			return err
		}
		if err := s.as.UnmapPage(va); err != nil {
			return err
		}
		if err := s.frames.DeallocateFrame(pa); err != nil {
			return err
		}
	}
	return nil
}
