// Package tlb implements the local TLB-invalidation primitives spec
// §4.E lists as three named operations dispatched through the
// Invalidator interface. Nothing outside this package calls them: ipirpc
// defines the VMemInval and AsidInval kinds but has no handler for them.
package tlb

import "github.com/charlotte-os/catten/internal/isa"

// Invalidator is the per-LP invalidation seam. tlbsim.Recorder is its
// only implementation; there is no per-ISA implementation issuing
// INVLPG/INVPCID, TLBI or SFENCE.VMA.
type Invalidator interface {
	InvalidateRangeKernel(lo isa.VirtAddr, pages uintptr)
	InvalidateRangeUser(lo isa.VirtAddr, pages uintptr, asid isa.HwASID)
	InvalidateASID(asid isa.HwASID)
}

// InvalidateRangeKernel flushes [lo, lo+pages*PageSize) for every
// address space (global/kernel mappings carry the Global bit, spec
// §4.D, so a single kernel-half invalidation suffices locally).
func InvalidateRangeKernel(inv Invalidator, lo isa.VirtAddr, pages uintptr) {
	inv.InvalidateRangeKernel(lo, pages)
}

// InvalidateRangeUser flushes [lo, lo+pages*PageSize) for one ASID's
// mappings only.
func InvalidateRangeUser(inv Invalidator, lo isa.VirtAddr, pages uintptr, asid isa.HwASID) {
	inv.InvalidateRangeUser(lo, pages, asid)
}

// InvalidateASID drops every TLB entry tagged with asid.
func InvalidateASID(inv Invalidator, asid isa.HwASID) {
	inv.InvalidateASID(asid)
}
