// Package kheap implements the dynamic kernel heap (spec §4.G): a
// single process-wide, best-fit allocator over KernelAllocatorArena that
// starts at a 2 MiB live span and doubles on out-of-memory, capped by
// the arena region's total length.
package kheap

import (
	"errors"
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/lam"
	"github.com/charlotte-os/catten/internal/pfa"
	"github.com/charlotte-os/catten/internal/vmm"
)

var (
	ErrOutOfMemory   = errors.New("kheap: out of memory")
	ErrInvalidFree   = errors.New("kheap: free of address not owned by an allocation")
	ErrArenaExceeded = errors.New("kheap: arena region exhausted")
)

const initialSpan = 2 * 1024 * 1024 // 2 MiB, spec §4.G

// freeBlock is one run of free bytes within the live span, offsets
// relative to the arena base.
type freeBlock struct {
	off, size uintptr
}

// headerSize is the per-allocation bookkeeping slot size; uintptr is
// always 8 bytes on every supported 64-bit target.
const headerSize = 8

// OOMHandler is invoked when a best-fit search fails to find a block;
// it is a named, independently-swappable hook rather than inline retry
// logic in Allocate, so the doubling policy can be replaced or unit
// tested on its own.
type OOMHandler interface {
	// HandleOOM is given the heap's current live span and the arena's
	// total length and returns the new span to extend to, or ok=false
	// to give up (the caller then reports ErrOutOfMemory).
	HandleOOM(liveSpan, arenaLength uintptr) (newSpan uintptr, ok bool)
}

// DoublingOOMHandler is the default policy spec §4.G describes: double
// the live span, capped by the arena region's length.
type DoublingOOMHandler struct{}

func (DoublingOOMHandler) HandleOOM(liveSpan, arenaLength uintptr) (uintptr, bool) {
	if liveSpan >= arenaLength {
		return 0, false
	}
	next := liveSpan * 2
	if next > arenaLength {
		next = arenaLength
	}
	return next, true
}

// Heap is the process-wide allocator owning KernelAllocatorArena.
type Heap struct {
	mu sync.Mutex // spec's "single spinlock serialises metadata changes"

	as     *vmm.AddressSpace
	frames *pfa.Allocator
	arena  lam.Extent
	oom    OOMHandler

	liveSpan uintptr // bytes currently mapped and under free-list management
	free     []freeBlock
	hdrs     headers // live allocation offset -> size
}

// New maps the initial 2 MiB span of the arena and readies the free
// list as one block covering it, using DoublingOOMHandler as the
// default extend-on-OOM policy.
func New(as *vmm.AddressSpace, frames *pfa.Allocator, arena lam.Extent) (*Heap, error) {
	return NewWithOOMHandler(as, frames, arena, DoublingOOMHandler{})
}

// NewWithOOMHandler is New with an injectable OOM policy, for tests that
// exercise the handler's decision in isolation from the allocate path.
func NewWithOOMHandler(as *vmm.AddressSpace, frames *pfa.Allocator, arena lam.Extent, oom OOMHandler) (*Heap, error) {
	return NewWithInitialSpan(as, frames, arena, initialSpan, oom)
}

// NewWithInitialSpan is New with both the initial live span and the OOM
// policy overridable, for tests that need a small arena to exercise the
// extend path deterministically without mapping gigabytes of pages.
func NewWithInitialSpan(as *vmm.AddressSpace, frames *pfa.Allocator, arena lam.Extent, initial uintptr, oom OOMHandler) (*Heap, error) {
	h := &Heap{as: as, frames: frames, arena: arena, oom: oom}
	if err := h.extend(initial); err != nil {
		return nil, err
	}
	return h, nil
}

// extend grows the live span to newSpan (asserted larger than the
// current span), mapping exactly the new pages KernelData and folding
// them into the free list as one new trailing block.
func (h *Heap) extend(newSpan uintptr) error {
	if newSpan > h.arena.Length {
		newSpan = h.arena.Length
	}
	if newSpan <= h.liveSpan {
		return ErrArenaExceeded
	}
	added := newSpan - h.liveSpan
	pages := (added + isa.PageSize - 1) / isa.PageSize
	base := h.arena.Base + isa.VirtAddr(h.liveSpan)

	mapped := uintptr(0)
	for mapped < pages*isa.PageSize {
		pa, err := h.frames.AllocateFrame()
		if err != nil {
			return ErrOutOfMemory
		}
		va := base + isa.VirtAddr(mapped)
		if err := h.as.MapPage(va, pa, isa.KernelData); err != nil {
			return err
		}
		mapped += isa.PageSize
	}

	h.free = append(h.free, freeBlock{off: h.liveSpan, size: pages * isa.PageSize})
	h.liveSpan += pages * isa.PageSize
	return nil
}

func align(v, a uintptr) uintptr {
	return (v + a - 1) &^ (a - 1)
}

// Allocate returns a pointer-sized-aligned (or caller-specified align)
// address of at least size bytes, or ErrOutOfMemory if even after
// extending the arena no block fits.
func (h *Heap) Allocate(size, alignment uintptr) (isa.VirtAddr, error) {
	if alignment == 0 {
		alignment = 8
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	total := headerSize + size
	if va, ok := h.bestFit(total, alignment); ok {
		return va, nil
	}

	// OOM handler decides the new span; a single retry follows.
	newSpan, ok := h.oom.HandleOOM(h.liveSpan, h.arena.Length)
	if !ok {
		return 0, ErrOutOfMemory
	}
	if err := h.extend(newSpan); err != nil {
		return 0, ErrOutOfMemory
	}
	if va, ok := h.bestFit(total, alignment); ok {
		return va, nil
	}
	return 0, ErrOutOfMemory
}

// bestFit scans the free list for the smallest block that satisfies
// size+alignment, splitting off any remainder.
func (h *Heap) bestFit(total, alignment uintptr) (isa.VirtAddr, bool) {
	best := -1
	var bestWaste uintptr
	for i, b := range h.free {
		alignedOff := align(b.off+headerSize, alignment) - headerSize
		pad := alignedOff - b.off
		need := pad + total
		if need > b.size {
			continue
		}
		waste := b.size - need
		if best == -1 || waste < bestWaste {
			best = i
			bestWaste = waste
		}
	}
	if best == -1 {
		return 0, false
	}

	b := h.free[best]
	alignedOff := align(b.off+headerSize, alignment) - headerSize
	pad := alignedOff - b.off
	used := pad + total

	// Remove the chosen block, re-inserting any leading pad and trailing
	// remainder as their own free blocks.
	h.free = append(h.free[:best], h.free[best+1:]...)
	if pad > 0 {
		h.free = append(h.free, freeBlock{off: b.off, size: pad})
	}
	if rem := b.size - used; rem > 0 {
		h.free = append(h.free, freeBlock{off: alignedOff + total, size: rem})
	}

	h.writeHeader(alignedOff, total-headerSize)
	return h.arena.Base + isa.VirtAddr(alignedOff+headerSize), true
}

// Free returns an allocation to the free list, merging with any
// adjacent free blocks (spec §4.G: "deallocation merges with adjacent
// free blocks").
func (h *Heap) Free(va isa.VirtAddr) error {
	if va < h.arena.Base {
		return ErrInvalidFree
	}
	off := uintptr(va) - uintptr(h.arena.Base) - headerSize

	h.mu.Lock()
	defer h.mu.Unlock()

	size, ok := h.readHeader(off)
	if !ok {
		return ErrInvalidFree
	}
	block := freeBlock{off: off, size: headerSize + size}
	h.free = append(h.free, block)
	h.coalesce()
	return nil
}

func (h *Heap) coalesce() {
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(h.free); i++ {
			for j := i + 1; j < len(h.free); j++ {
				a, b := h.free[i], h.free[j]
				if a.off+a.size == b.off {
					h.free[i].size += b.size
					h.free = append(h.free[:j], h.free[j+1:]...)
					merged = true
					break
				}
				if b.off+b.size == a.off {
					h.free[i] = freeBlock{off: b.off, size: b.size + a.size}
					h.free = append(h.free[:j], h.free[j+1:]...)
					merged = true
					break
				}
			}
			if merged {
				break
			}
		}
	}
}

// headers tracks the (size) of every live allocation's header by
// arena-relative offset; a real in-band header would live in the mapped
// bytes themselves, but the portable engine has no byte-level memory
// accessor of its own (PhysMem only serves the page-table walker), so
// the header is kept in this side table instead, indexed identically.
type headers = map[uintptr]uintptr

func (h *Heap) writeHeader(off, size uintptr) {
	if h.hdrs == nil {
		h.hdrs = make(headers)
	}
	h.hdrs[off] = size
}

func (h *Heap) readHeader(off uintptr) (uintptr, bool) {
	size, ok := h.hdrs[off]
	if ok {
		delete(h.hdrs, off)
	}
	return size, ok
}
