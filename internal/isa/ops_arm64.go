//go:build arm64

package isa

import _ "unsafe" // for go:linkname

// arm64Ops implements Ops on aarch64. The per-LP store lives in
// TPIDR_EL0, the LP-id cache in TPIDR_EL1, and the thread context pointer
// shares TPIDR_EL0's neighbour register bank the way mazboot's
// exceptions.go threads its own per-core state through system registers.
type arm64Ops struct{}

var Default Ops = arm64Ops{}

//go:linkname asmWfi catten_asm_wfi
//go:nosplit
func asmWfi()

//go:linkname asmMaskDAIF catten_asm_msr_daifset
//go:nosplit
func asmMaskDAIF()

//go:linkname asmUnmaskDAIF catten_asm_msr_daifclr
//go:nosplit
func asmUnmaskDAIF()

//go:linkname asmWriteTpidrEl1 catten_asm_msr_tpidr_el1
//go:nosplit
func asmWriteTpidrEl1(v uintptr)

//go:linkname asmReadTpidrEl1 catten_asm_mrs_tpidr_el1
//go:nosplit
func asmReadTpidrEl1() uintptr

//go:linkname asmReadMpidrEl1 catten_asm_mrs_mpidr_el1
//go:nosplit
func asmReadMpidrEl1() uint64

//go:linkname asmWriteTpidrEl0 catten_asm_msr_tpidr_el0
//go:nosplit
func asmWriteTpidrEl0(v uintptr)

//go:linkname asmReadTpidrEl0 catten_asm_mrs_tpidr_el0
//go:nosplit
func asmReadTpidrEl0() uintptr

//go:linkname asmWriteTpidrroEl0 catten_asm_msr_tpidrro_el0
//go:nosplit
func asmWriteTpidrroEl0(v uintptr)

//go:linkname asmReadTpidrroEl0 catten_asm_mrs_tpidrro_el0
//go:nosplit
func asmReadTpidrroEl0() uintptr

//go:nosplit
func (arm64Ops) Halt() { asmWfi() }

//go:nosplit
func (arm64Ops) MaskInterrupts() { asmMaskDAIF() }

//go:nosplit
func (arm64Ops) UnmaskInterrupts() { asmUnmaskDAIF() }

//go:nosplit
func (arm64Ops) StoreLpID(id LpID) { asmWriteTpidrEl1(uintptr(id)) }

//go:nosplit
func (arm64Ops) GetLpID() LpID { return LpID(asmReadTpidrEl1()) }

//go:nosplit
func (arm64Ops) GetLicID() uint32 {
	// Affinity0 field of MPIDR_EL1 is the GICR redistributor id on a
	// GICv3/v4 system.
	return uint32(asmReadMpidrEl1() & 0xff)
}

//go:nosplit
func (arm64Ops) GetLpLocalBase() VirtAddr { return VirtAddr(asmReadTpidrEl0()) }

//go:nosplit
func (arm64Ops) SetLpLocalBase(va VirtAddr) { asmWriteTpidrEl0(uintptr(va)) }

//go:nosplit
func (arm64Ops) GetThreadContextPtr() VirtAddr { return VirtAddr(asmReadTpidrroEl0()) }

//go:nosplit
func (arm64Ops) SetThreadContextPtr(va VirtAddr) { asmWriteTpidrroEl0(uintptr(va)) }

//go:linkname asmWriteTtbr0El1 catten_asm_msr_ttbr0_el1
//go:nosplit
func asmWriteTtbr0El1(v uintptr)

//go:linkname asmReadTtbr0El1 catten_asm_mrs_ttbr0_el1
//go:nosplit
func asmReadTtbr0El1() uintptr

//go:nosplit
func (arm64Ops) SetPageTableBase(pa PhysAddr) { asmWriteTtbr0El1(uintptr(pa)) }

//go:nosplit
func (arm64Ops) GetPageTableBase() PhysAddr { return PhysAddr(asmReadTtbr0El1()) }
