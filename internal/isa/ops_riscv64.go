//go:build riscv64

package isa

import _ "unsafe" // for go:linkname

// riscv64Ops implements Ops on riscv64. There is no dedicated LP-local
// register the way x86-64 has GS or aarch64 has TPIDR_EL0, so the LP
// store pointer and the LP-id cache both live in the sscratch CSR and a
// software-maintained hart-id table indexed by mhartid, matching the
// original_source's riscv64 backend (cpu/isa/riscv64/lp/mod.rs), which
// keeps this same split.
type riscv64Ops struct{}

var Default Ops = riscv64Ops{}

//go:linkname asmWfi catten_asm_wfi_riscv
//go:nosplit
func asmWfi()

//go:linkname asmMaskSIE catten_asm_csrc_sie
//go:nosplit
func asmMaskSIE()

//go:linkname asmUnmaskSIE catten_asm_csrs_sie
//go:nosplit
func asmUnmaskSIE()

//go:linkname asmReadHartID catten_asm_read_hartid
//go:nosplit
func asmReadHartID() uint32

//go:linkname asmWriteSscratch catten_asm_csrw_sscratch
//go:nosplit
func asmWriteSscratch(v uintptr)

//go:linkname asmReadSscratch catten_asm_csrr_sscratch
//go:nosplit
func asmReadSscratch() uintptr

//go:linkname asmWriteLpID catten_asm_write_lpid_slot
//go:nosplit
func asmWriteLpID(id uint32)

//go:linkname asmReadLpID catten_asm_read_lpid_slot
//go:nosplit
func asmReadLpID() uint32

//go:linkname asmWriteThreadCtx catten_asm_write_threadctx_slot
//go:nosplit
func asmWriteThreadCtx(v uintptr)

//go:linkname asmReadThreadCtx catten_asm_read_threadctx_slot
//go:nosplit
func asmReadThreadCtx() uintptr

//go:nosplit
func (riscv64Ops) Halt() { asmWfi() }

//go:nosplit
func (riscv64Ops) MaskInterrupts() { asmMaskSIE() }

//go:nosplit
func (riscv64Ops) UnmaskInterrupts() { asmUnmaskSIE() }

//go:nosplit
func (riscv64Ops) StoreLpID(id LpID) { asmWriteLpID(uint32(id)) }

//go:nosplit
func (riscv64Ops) GetLpID() LpID { return LpID(asmReadLpID()) }

//go:nosplit
func (riscv64Ops) GetLicID() uint32 { return asmReadHartID() }

//go:nosplit
func (riscv64Ops) GetLpLocalBase() VirtAddr { return VirtAddr(asmReadSscratch()) }

//go:nosplit
func (riscv64Ops) SetLpLocalBase(va VirtAddr) { asmWriteSscratch(uintptr(va)) }

//go:nosplit
func (riscv64Ops) GetThreadContextPtr() VirtAddr { return VirtAddr(asmReadThreadCtx()) }

//go:nosplit
func (riscv64Ops) SetThreadContextPtr(va VirtAddr) { asmWriteThreadCtx(uintptr(va)) }

//go:linkname asmWriteSatp catten_asm_csrw_satp
//go:nosplit
func asmWriteSatp(v uintptr)

//go:linkname asmReadSatp catten_asm_csrr_satp
//go:nosplit
func asmReadSatp() uintptr

// satpModeSv39 is the MODE field (bits 63:60) selecting Sv39 paging; the
// 39-bit VA width is this kernel's minimum supported profile (spec §4.F),
// so it is the mode every boot path enables before building the first
// address space. A 48/57-bit profile reprograms this at the same boot
// step that selects the wider lam.Map, not per page-table switch.
const satpModeSv39 = uintptr(8) << 60

//go:nosplit
func (riscv64Ops) SetPageTableBase(pa PhysAddr) {
	asmWriteSatp(satpModeSv39 | (uintptr(pa) >> 12))
}

//go:nosplit
func (riscv64Ops) GetPageTableBase() PhysAddr {
	return PhysAddr((asmReadSatp() &^ (uintptr(0xf) << 60)) << 12)
}
