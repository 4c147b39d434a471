// Package pfa implements the physical frame allocator (spec §4.C): a
// single bitmap, one bit per 4 KiB frame, built from the firmware memory
// map and serialized by one process-wide mutex.
package pfa

import (
	"errors"
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
)

// RegionKind classifies one firmware memory-map entry.
type RegionKind uint8

const (
	Usable RegionKind = iota
	Reserved
)

// MemRegion is one entry of the firmware-supplied memory map (the
// Limine/ACPI collaborator's output, narrowed to what the PFA needs).
type MemRegion struct {
	Base isa.PhysAddr
	Length uintptr
	Kind RegionKind
}

var (
	ErrMisalignedPhysicalAddress       = errors.New("pfa: misaligned physical address")
	ErrRequestLargerThanTotalMemory    = errors.New("pfa: request larger than total memory")
	ErrOutOfFrames                     = errors.New("pfa: out of frames")
	ErrInvalidPhysAlignment            = errors.New("pfa: invalid physical alignment")
	ErrCannotDeallocateUnallocatedFrame = errors.New("pfa: cannot deallocate unallocated frame")
	ErrFrameAlreadyInUse               = errors.New("pfa: frame already in use")
)

// Allocator is the bitmap-based frame allocator. The zero value is not
// ready for use; construct with New.
type Allocator struct {
	mu        sync.Mutex
	bitmap    []byte // 1 bit per frame, 0 = free, 1 = in-use
	numFrames uintptr
	baseFrame uintptr // frame index of physical address 0 (always 0; kept explicit for clarity)
}

// frameOf / addrOf convert between a frame index and its physical
// address.
func frameOf(pa isa.PhysAddr) uintptr { return uintptr(pa) / isa.PageSize }
func addrOf(frame uintptr) isa.PhysAddr { return isa.PhysAddr(frame * isa.PageSize) }

// bitmapBytesFor returns the number of bytes a bitmap covering numFrames
// frames needs.
func bitmapBytesFor(numFrames uintptr) uintptr {
	return (numFrames + 7) / 8
}

// New constructs an Allocator from a firmware memory map. bitmapStorage
// must be a byte slice of at least bitmapBytesFor(totalFrames) length,
// already backed by the frames the caller chose with best-fit placement
// in the smallest USABLE region >= the bitmap size (spec §4.C); New does
// not perform that placement itself, since it has no allocator yet to
// place into — the boot sequence (internal/boot) does the best-fit
// region search and hands the resulting slice in.
func New(highestAddr isa.PhysAddr, bitmapStorage []byte, usable []MemRegion, reservedFrames []isa.PhysAddr) (*Allocator, error) {
	numFrames := frameOf(highestAddr) + 1
	need := bitmapBytesFor(numFrames)
	if uintptr(len(bitmapStorage)) < need {
		return nil, errors.New("pfa: bitmap storage too small")
	}
	a := &Allocator{
		bitmap:    bitmapStorage[:need],
		numFrames: numFrames,
	}

	// All frames start in-use.
	for i := range a.bitmap {
		a.bitmap[i] = 0xff
	}

	// USABLE entries clear their bits.
	for _, r := range usable {
		if r.Kind != Usable {
			continue
		}
		startFrame := frameOf(r.Base)
		frameCount := r.Length / isa.PageSize
		for f := startFrame; f < startFrame+frameCount && f < numFrames; f++ {
			a.clearBit(f)
		}
	}

	// Frame 0 is reserved (spec §3: "PA zero is reserved").
	a.setBit(0)

	// Caller-identified reserved frames (the bitmap's own frames, the
	// kernel image, etc.) are re-marked in-use.
	for _, pa := range reservedFrames {
		a.setBit(frameOf(pa))
	}

	return a, nil
}

func (a *Allocator) bitIsSet(frame uintptr) bool {
	return a.bitmap[frame/8]&(1<<(frame%8)) != 0
}

func (a *Allocator) setBit(frame uintptr)   { a.bitmap[frame/8] |= 1 << (frame % 8) }
func (a *Allocator) clearBit(frame uintptr) { a.bitmap[frame/8] &^= 1 << (frame % 8) }

// AllocateFrame returns the lowest free frame (first-fit linear scan) and
// marks it in-use.
func (a *Allocator) AllocateFrame() (isa.PhysAddr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for f := uintptr(0); f < a.numFrames; f++ {
		if !a.bitIsSet(f) {
			a.setBit(f)
			return addrOf(f), nil
		}
	}
	return 0, ErrOutOfFrames
}

// AllocateContiguous scans at the requested alignment and returns the
// first n consecutive free frames, setting all n bits within the same
// critical section.
func (a *Allocator) AllocateContiguous(n uintptr, align uintptr) (isa.PhysAddr, error) {
	if align == 0 || align%isa.PageSize != 0 {
		return 0, ErrInvalidPhysAlignment
	}
	if n == 0 {
		return 0, errors.New("pfa: AllocateContiguous requires n > 0")
	}
	alignFrames := align / isa.PageSize

	a.mu.Lock()
	defer a.mu.Unlock()

	for start := uintptr(0); start+n <= a.numFrames; start += alignFrames {
		if start%alignFrames != 0 {
			continue
		}
		ok := true
		for f := start; f < start+n; f++ {
			if a.bitIsSet(f) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for f := start; f < start+n; f++ {
			a.setBit(f)
		}
		return addrOf(start), nil
	}
	return 0, ErrOutOfFrames
}

// DeallocateFrame clears pa's bit. Frame 0 stays reserved and cannot be
// deallocated.
func (a *Allocator) DeallocateFrame(pa isa.PhysAddr) error {
	if uintptr(pa)%isa.PageSize != 0 {
		return ErrMisalignedPhysicalAddress
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f := frameOf(pa)
	if f == 0 || f >= a.numFrames || !a.bitIsSet(f) {
		return ErrCannotDeallocateUnallocatedFrame
	}
	a.clearBit(f)
	return nil
}

// MarkFrameUnavailable marks pa in-use without it ever having been
// allocated through AllocateFrame/AllocateContiguous; idempotent calls
// are forbidden (spec §4.C).
func (a *Allocator) MarkFrameUnavailable(pa isa.PhysAddr) error {
	if uintptr(pa)%isa.PageSize != 0 {
		return ErrMisalignedPhysicalAddress
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f := frameOf(pa)
	if f >= a.numFrames {
		return ErrRequestLargerThanTotalMemory
	}
	if a.bitIsSet(f) {
		return ErrFrameAlreadyInUse
	}
	a.setBit(f)
	return nil
}

// FreeFrameCount reports the number of currently-clear bits. Only the
// tests call it; internal/syssched balances by run-queue length.
func (a *Allocator) FreeFrameCount() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	var free uintptr
	for f := uintptr(0); f < a.numFrames; f++ {
		if !a.bitIsSet(f) {
			free++
		}
	}
	return free
}
