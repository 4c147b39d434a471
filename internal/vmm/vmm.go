// Package vmm implements the virtual memory engine (spec §4.D): a
// generic radix-tree page table walker operating over the abstract
// (target-PA, flags) entry model, parameterized by the active VA-width
// profile rather than hardcoded to any one ISA's table format.
package vmm

import (
	"errors"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/isa/cpuinfo"
	"github.com/charlotte-os/catten/internal/lam"
	"github.com/charlotte-os/catten/internal/pfa"
)

var (
	ErrAlreadyMapped               = errors.New("vmm: address already mapped")
	ErrNullVAddrNotAllowed         = errors.New("vmm: null virtual address not allowed")
	ErrVAddrNotPageAligned         = errors.New("vmm: virtual address not page aligned")
	ErrUnmapped                    = errors.New("vmm: address not mapped")
	ErrNoRequestedVAddrRegionAvail = errors.New("vmm: no free region of the requested size is available")
)

const entriesPerTable = 512 // 9 bits/level, 512 entries of 8 bytes = one PageSize table

// levelsFor returns how many radix levels a VA-width profile's tree has:
// 39-bit -> 3 levels (Sv39-shaped), 48-bit -> 4, 57-bit -> 5, mirroring
// the teacher's per-arch page table depth without committing to any one
// ISA's literal level-naming (PML4/PDPT/... vs PGD/PUD/PMD/PTE).
func levelsFor(profile cpuinfo.VAWidthProfile) int {
	switch profile {
	case cpuinfo.VAWidth39:
		return 3
	case cpuinfo.VAWidth48:
		return 4
	case cpuinfo.VAWidth57:
		return 5
	default:
		return 4
	}
}

// indexAt extracts the 9-bit index for `level` (0 = top) out of va, given
// the tree has `levels` total.
func indexAt(va isa.VirtAddr, level, levels int) uintptr {
	shift := uint(12 + 9*(levels-1-level))
	return (uintptr(va) >> shift) & (entriesPerTable - 1)
}

// AddressSpace is one page table tree plus the allocator and physical
// memory access it needs to grow and read itself (spec §4.D).
type AddressSpace struct {
	ASID    isa.ASID
	root    isa.PhysAddr
	mem     PhysMem
	frames  *pfa.Allocator
	profile cpuinfo.VAWidthProfile
	levels  int
	lamMap  lam.Map
}

// NewKernelAddressSpace builds ASID 0, the address space every other
// space shares its top-level kernel-half entries with.
func NewKernelAddressSpace(mem PhysMem, frames *pfa.Allocator, profile cpuinfo.VAWidthProfile, m lam.Map) (*AddressSpace, error) {
	root, err := frames.AllocateFrame()
	if err != nil {
		return nil, err
	}
	mem.ZeroFrame(root)
	return &AddressSpace{
		ASID:    0,
		root:    root,
		mem:     mem,
		frames:  frames,
		profile: profile,
		levels:  levelsFor(profile),
		lamMap:  m,
	}, nil
}

// NewUserAddressSpace builds a fresh tree whose top-level table entries
// covering the kernel half are copied from kernel's tree, so every
// address space maps the kernel identically without replicating its
// sub-trees (spec §4.D kernel-half-sharing invariant).
func NewUserAddressSpace(kernel *AddressSpace, asid isa.ASID) (*AddressSpace, error) {
	root, err := kernel.frames.AllocateFrame()
	if err != nil {
		return nil, err
	}
	kernel.mem.ZeroFrame(root)

	as := &AddressSpace{
		ASID:    asid,
		root:    root,
		mem:     kernel.mem,
		frames:  kernel.frames,
		profile: kernel.profile,
		levels:  kernel.levels,
		lamMap:  kernel.lamMap,
	}

	// Copy every top-level slot whose index belongs to a kernel-half
	// region extent; application-half slots are left zero (unmapped).
	kernelRegions := []lam.Region{lam.KernelStackArena, lam.KernelMmio, lam.KernelAllocatorArena, lam.DirectMapping, lam.KernelImage}
	seen := map[uintptr]bool{}
	for _, r := range kernelRegions {
		ext := kernel.lamMap.Extent(r)
		if ext.Length == 0 {
			continue
		}
		idx := indexAt(ext.Base, 0, kernel.levels)
		if seen[idx] {
			continue
		}
		seen[idx] = true
		raw := kernel.mem.ReadUint64(kernel.root, idx)
		as.mem.WriteUint64(as.root, idx, raw)
	}

	return as, nil
}

// walk descends the tree for va, allocating intermediate tables as it
// goes when alloc is true; it returns the final-level table's physical
// address and the index into it where va's leaf entry lives.
func (as *AddressSpace) walk(va isa.VirtAddr, alloc bool) (isa.PhysAddr, uintptr, error) {
	table := as.root
	for level := 0; level < as.levels-1; level++ {
		idx := indexAt(va, level, as.levels)
		raw := as.mem.ReadUint64(table, idx)
		pa, flags := decodeEntry(raw)
		if !flags.Valid {
			if !alloc {
				return 0, 0, ErrUnmapped
			}
			next, err := as.frames.AllocateFrame()
			if err != nil {
				return 0, 0, err
			}
			as.mem.ZeroFrame(next)
			// Intermediate tables are always fully permissive; leaf
			// entries (set by Map) carry the real restriction.
			entry := encodeEntry(next, isa.PTEFlags{Valid: true, Writable: true, ExecPermitted: true, UserAccessible: true})
			as.mem.WriteUint64(table, idx, entry)
			table = next
		} else {
			table = pa
		}
	}
	leafIdx := indexAt(va, as.levels-1, as.levels)
	return table, leafIdx, nil
}

func checkVA(va isa.VirtAddr) error {
	if va == 0 {
		return ErrNullVAddrNotAllowed
	}
	if uintptr(va)%isa.PageSize != 0 {
		return ErrVAddrNotPageAligned
	}
	return nil
}

// MapPage installs a (va -> pa) leaf mapping with the permissions
// PageType implies (spec §4.D). Re-mapping an already-mapped va fails
// with ErrAlreadyMapped; the caller must UnmapPage first.
func (as *AddressSpace) MapPage(va isa.VirtAddr, pa isa.PhysAddr, pageType isa.PageType) error {
	if err := checkVA(va); err != nil {
		return err
	}
	if uintptr(pa)%isa.PageSize != 0 {
		return ErrVAddrNotPageAligned
	}

	table, idx, err := as.walk(va, true)
	if err != nil {
		return err
	}
	_, flags := decodeEntry(as.mem.ReadUint64(table, idx))
	if flags.Valid {
		return ErrAlreadyMapped
	}
	as.mem.WriteUint64(table, idx, encodeEntry(pa, isa.FlagsFor(pageType)))
	return nil
}

// UnmapPage clears va's leaf entry. Intermediate tables that become
// entirely empty are left allocated; reclaiming them is left to a
// future compaction pass, not required by spec §4.D's invariant set.
func (as *AddressSpace) UnmapPage(va isa.VirtAddr) error {
	if err := checkVA(va); err != nil {
		return err
	}
	table, idx, err := as.walk(va, false)
	if err != nil {
		return err
	}
	_, flags := decodeEntry(as.mem.ReadUint64(table, idx))
	if !flags.Valid {
		return ErrUnmapped
	}
	as.mem.WriteUint64(table, idx, 0)
	return nil
}

// IsMapped reports whether va currently resolves to a valid leaf.
func (as *AddressSpace) IsMapped(va isa.VirtAddr) bool {
	if checkVA(va) != nil {
		return false
	}
	table, idx, err := as.walk(va, false)
	if err != nil {
		return false
	}
	_, flags := decodeEntry(as.mem.ReadUint64(table, idx))
	return flags.Valid
}

// TranslateAddress resolves va to its mapped physical address.
func (as *AddressSpace) TranslateAddress(va isa.VirtAddr) (isa.PhysAddr, error) {
	if err := checkVA(va); err != nil {
		return 0, err
	}
	table, idx, err := as.walk(va, false)
	if err != nil {
		return 0, err
	}
	pa, flags := decodeEntry(as.mem.ReadUint64(table, idx))
	if !flags.Valid {
		return 0, ErrUnmapped
	}
	return pa, nil
}

// FindFreeRegion scans [lo, hi) in page-sized steps for `count`
// consecutive unmapped pages and returns the region's base, spec §4.D /
// §8 invariant 3. A linear scan is adequate here: callers only invoke
// this for coarse-grained allocations (stacks, heap extension), never on
// a hot per-page path.
func (as *AddressSpace) FindFreeRegion(count uintptr, lo, hi isa.VirtAddr) (isa.VirtAddr, error) {
	if count == 0 {
		return 0, errors.New("vmm: FindFreeRegion requires count > 0")
	}
	run := uintptr(0)
	var runStart isa.VirtAddr
	for va := lo; va < hi; va += isa.PageSize {
		if as.IsMapped(va) {
			run = 0
			continue
		}
		if run == 0 {
			runStart = va
		}
		run++
		if run == count {
			return runStart, nil
		}
	}
	return 0, ErrNoRequestedVAddrRegionAvail
}

// Root returns the physical address of the top-level table, the value
// loaded into the architectural page-table-base register (CR3/TTBR0_EL1/
// satp) when this address space is made current.
func (as *AddressSpace) Root() isa.PhysAddr { return as.root }

// Load installs this address space as current on the calling LP by
// writing its root into the architectural page-table-base register.
func (as *AddressSpace) Load(ops isa.Ops) {
	ops.SetPageTableBase(as.root)
}

// IsCurrent reports whether this address space is the one currently
// loaded on the calling LP.
func (as *AddressSpace) IsCurrent(ops isa.Ops) bool {
	return ops.GetPageTableBase() == as.root
}
