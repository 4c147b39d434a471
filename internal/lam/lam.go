// Package lam implements the fixed higher-half linear-address map (spec
// §3 LinearAddressMap, §4.F): one immutable layout per VA-width profile,
// selected once at boot from the cached cpuinfo.Info and never changed
// at runtime.
package lam

import (
	"fmt"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/isa/cpuinfo"
)

// Region names the seven fixed regions of spec §3/§4.F.
type Region uint8

const (
	NullPage Region = iota
	Application
	KernelStackArena
	KernelMmio
	KernelAllocatorArena
	DirectMapping
	KernelImage
	numRegions
)

func (r Region) String() string {
	switch r {
	case NullPage:
		return "NullPage"
	case Application:
		return "Application"
	case KernelStackArena:
		return "KernelStackArena"
	case KernelMmio:
		return "KernelMmio"
	case KernelAllocatorArena:
		return "KernelAllocatorArena"
	case DirectMapping:
		return "DirectMapping"
	case KernelImage:
		return "KernelImage"
	default:
		return "Region(?)"
	}
}

// Extent is a region's [Base, Base+Length) half-open address range.
type Extent struct {
	Base   isa.VirtAddr
	Length uintptr
}

// Contains reports whether va falls within the extent. KernelImage sits
// at the very top of the address space, so Base+Length overflows a
// uintptr by exactly one; that wraps to 0, which would make every va
// fail "< 0" rather than being bounded by the real ceiling, so the
// overflow case is treated as an open-ended upper bound instead.
func (e Extent) Contains(va isa.VirtAddr) bool {
	if va < e.Base {
		return false
	}
	hi := uintptr(e.Base) + e.Length
	if hi < uintptr(e.Base) {
		return true
	}
	return uintptr(va) < hi
}

// Map is one profile's complete, disjoint set of region extents.
type Map struct {
	profile cpuinfo.VAWidthProfile
	extents [numRegions]Extent
}

const (
	gib = 1 << 30
	tib = 1 << 40
	pib = 1 << 50
)

// The three tables below are taken verbatim (base and length) from
// original_source's address_map.rs, not derived by stacking a cursor:
// the regions are not laid out by one rule (the 39- and 57-bit profiles
// leave gaps between the stack arena, the MMIO window, and the
// allocator arena, while the 48-bit profile places them back to back)
// and DirectMapping does not sit adjacent to them, so any
// single running-cursor construction drifts from the real table. Each
// base is hand-copied per profile instead.

// For39 is the 39-bit VA-width profile's fixed table.
var For39 = Map{
	profile: cpuinfo.VAWidth39,
	extents: [numRegions]Extent{
		NullPage:             {Base: 0, Length: isa.PageSize},
		Application:          {Base: isa.VirtAddr(isa.PageSize), Length: 512 * gib},
		KernelStackArena:     {Base: 0xffffff0000000000, Length: 4 * gib},
		KernelMmio:           {Base: 0xffffff0800000000, Length: 4 * gib},
		KernelAllocatorArena: {Base: 0xffffff1000000000, Length: 988 * gib},
		DirectMapping:        {Base: 0xffffff8000000000, Length: 512 * gib},
		KernelImage:          {Base: 0xffffffff80000000, Length: 2 * gib},
	},
}

// For48 is the 48-bit VA-width profile's fixed table.
var For48 = Map{
	profile: cpuinfo.VAWidth48,
	extents: [numRegions]Extent{
		NullPage:             {Base: 0, Length: isa.PageSize},
		Application:          {Base: isa.VirtAddr(isa.PageSize), Length: 256 * tib},
		KernelStackArena:     {Base: 0xffff800000000000, Length: 2 * tib},
		KernelMmio:           {Base: 0xffff820000000000, Length: 2 * tib},
		KernelAllocatorArena: {Base: 0xffff840000000000, Length: 506 * tib},
		DirectMapping:        {Base: 0xffffff8000000000, Length: 256 * tib},
		KernelImage:          {Base: 0xffffffff80000000, Length: 2 * gib},
	},
}

// For57 is the 57-bit VA-width profile's fixed table.
var For57 = Map{
	profile: cpuinfo.VAWidth57,
	extents: [numRegions]Extent{
		NullPage:             {Base: 0, Length: isa.PageSize},
		Application:          {Base: isa.VirtAddr(isa.PageSize), Length: 128 * pib},
		KernelStackArena:     {Base: 0xff80000000000000, Length: 1 * pib},
		KernelMmio:           {Base: 0xff88000000000000, Length: 1 * pib},
		KernelAllocatorArena: {Base: 0xff90000000000000, Length: 253 * pib},
		DirectMapping:        {Base: 0xffffff8000000000, Length: 128 * pib},
		KernelImage:          {Base: 0xffffffff80000000, Length: 2 * gib},
	},
}

// ForProfile returns the fixed Map for a VA-width profile.
func ForProfile(profile cpuinfo.VAWidthProfile) (Map, error) {
	switch profile {
	case cpuinfo.VAWidth39:
		return For39, nil
	case cpuinfo.VAWidth48:
		return For48, nil
	case cpuinfo.VAWidth57:
		return For57, nil
	default:
		return Map{}, fmt.Errorf("lam: unsupported VA width profile %d", profile)
	}
}

// Extent returns the fixed extent for a region.
func (m Map) Extent(r Region) Extent { return m.extents[r] }

// RegionType is the total function spec §4.F requires: every VA falls
// into exactly one region, or an error if it falls into none (never true
// for the three fixed tables above, but the check is kept explicit
// rather than assumed).
func (m Map) RegionType(va isa.VirtAddr) (Region, error) {
	for r := Region(0); r < numRegions; r++ {
		if m.extents[r].Contains(va) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("lam: %#x is not in any region", uintptr(va))
}

// Disjoint verifies the structural invariant that regions do not
// overlap; used by tests and by boot-time self-checks, not by the hot
// mapping path.
func (m Map) Disjoint() bool {
	type span struct{ lo, hi uintptr }
	var spans []span
	for r := Region(0); r < numRegions; r++ {
		e := m.extents[r]
		if e.Length == 0 {
			continue
		}
		hi := uintptr(e.Base) + e.Length
		if hi < uintptr(e.Base) {
			hi = ^uintptr(0)
		}
		spans = append(spans, span{uintptr(e.Base), hi})
	}
	for i := range spans {
		for j := range spans {
			if i == j {
				continue
			}
			if spans[i].lo < spans[j].hi && spans[j].lo < spans[i].hi {
				return false
			}
		}
	}
	return true
}
