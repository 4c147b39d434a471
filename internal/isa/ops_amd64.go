//go:build amd64

package isa

import _ "unsafe" // for go:linkname

// amd64Ops implements Ops on x86-64 by reaching the handful of
// //go:linkname'd assembly primitives declared below. Every method here
// is 1-3 instructions, matching spec §4.A, and must not allocate.
type amd64Ops struct{}

// Default is the singleton Ops for the running architecture; boot code
// and every portable component take an Ops at construction time rather
// than referencing this directly, so tests can substitute isasim.LP.
var Default Ops = amd64Ops{}

//go:linkname asmHalt catten_asm_halt
//go:nosplit
func asmHalt()

//go:linkname asmMaskInterrupts catten_asm_cli
//go:nosplit
func asmMaskInterrupts()

//go:linkname asmUnmaskInterrupts catten_asm_sti
//go:nosplit
func asmUnmaskInterrupts()

//go:linkname asmWriteTscAux catten_asm_wrmsr_tsc_aux
//go:nosplit
func asmWriteTscAux(v uint32)

//go:linkname asmReadTscAux catten_asm_rdtscp_aux
//go:nosplit
func asmReadTscAux() uint32

//go:linkname asmReadLapicID catten_asm_read_lapic_id
//go:nosplit
func asmReadLapicID() uint32

//go:linkname asmWriteGsBase catten_asm_wrgsbase
//go:nosplit
func asmWriteGsBase(v uintptr)

//go:linkname asmReadGsBase catten_asm_rdgsbase
//go:nosplit
func asmReadGsBase() uintptr

//go:linkname asmWriteFsBase catten_asm_wrfsbase
//go:nosplit
func asmWriteFsBase(v uintptr)

//go:linkname asmReadFsBase catten_asm_rdfsbase
//go:nosplit
func asmReadFsBase() uintptr

//go:nosplit
func (amd64Ops) Halt() { asmHalt() }

//go:nosplit
func (amd64Ops) MaskInterrupts() { asmMaskInterrupts() }

//go:nosplit
func (amd64Ops) UnmaskInterrupts() { asmUnmaskInterrupts() }

//go:nosplit
func (amd64Ops) StoreLpID(id LpID) { asmWriteTscAux(uint32(id)) }

//go:nosplit
func (amd64Ops) GetLpID() LpID { return LpID(asmReadTscAux()) }

//go:nosplit
func (amd64Ops) GetLicID() uint32 { return asmReadLapicID() }

//go:nosplit
func (amd64Ops) GetLpLocalBase() VirtAddr { return VirtAddr(asmReadGsBase()) }

//go:nosplit
func (amd64Ops) SetLpLocalBase(va VirtAddr) { asmWriteGsBase(uintptr(va)) }

//go:nosplit
func (amd64Ops) GetThreadContextPtr() VirtAddr { return VirtAddr(asmReadFsBase()) }

//go:nosplit
func (amd64Ops) SetThreadContextPtr(va VirtAddr) { asmWriteFsBase(uintptr(va)) }

//go:linkname asmWriteCr3 catten_asm_write_cr3
//go:nosplit
func asmWriteCr3(v uintptr)

//go:linkname asmReadCr3 catten_asm_read_cr3
//go:nosplit
func asmReadCr3() uintptr

//go:nosplit
func (amd64Ops) SetPageTableBase(pa PhysAddr) { asmWriteCr3(uintptr(pa)) }

//go:nosplit
func (amd64Ops) GetPageTableBase() PhysAddr { return PhysAddr(asmReadCr3()) }
