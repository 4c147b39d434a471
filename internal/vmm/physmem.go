package vmm

import "github.com/charlotte-os/catten/internal/isa"

// PhysMem is the narrow seam the paging engine uses to read and write the
// bytes of a physical frame holding page-table contents. The real
// backend reaches frames through the DirectMapping region (every frame
// of RAM is always linearly mapped there, spec §3 LinearAddressMap), so
// once the direct map is installed PhysMem is just pointer arithmetic;
// vmm/vmmsim backs it with a plain Go map for host tests, since test
// frames have no real physical memory behind them.
type PhysMem interface {
	// ReadUint64 / WriteUint64 access one page-table entry's worth of
	// storage at (pa + index*8).
	ReadUint64(pa isa.PhysAddr, index uintptr) uint64
	WriteUint64(pa isa.PhysAddr, index uintptr, v uint64)
	// ZeroFrame clears an entire freshly-allocated table frame before
	// it is linked into the tree.
	ZeroFrame(pa isa.PhysAddr)
}

// DirectMapPhysMem implements PhysMem over the kernel's direct map: frame
// pa is reachable at VA (offset + pa). Its methods are //go:nosplit pure
// pointer arithmetic with no allocation, going through unsafePointer in
// unsafe.go. Nothing in this repository constructs one; the host tests
// use vmmsim.Mem.
type DirectMapPhysMem struct {
	Offset isa.VirtAddr
}

func (d DirectMapPhysMem) vaFor(pa isa.PhysAddr, index uintptr) uintptr {
	return uintptr(d.Offset) + uintptr(pa) + index*8
}

//go:nosplit
func (d DirectMapPhysMem) ReadUint64(pa isa.PhysAddr, index uintptr) uint64 {
	return *(*uint64)(unsafePointer(d.vaFor(pa, index)))
}

//go:nosplit
func (d DirectMapPhysMem) WriteUint64(pa isa.PhysAddr, index uintptr, v uint64) {
	*(*uint64)(unsafePointer(d.vaFor(pa, index))) = v
}

//go:nosplit
func (d DirectMapPhysMem) ZeroFrame(pa isa.PhysAddr) {
	base := uintptr(d.Offset) + uintptr(pa)
	for i := uintptr(0); i < isa.PageSize/8; i++ {
		*(*uint64)(unsafePointer(base + i*8)) = 0
	}
}
