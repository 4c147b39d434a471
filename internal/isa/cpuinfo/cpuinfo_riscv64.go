//go:build riscv64

package cpuinfo

import _ "unsafe"

// RISCV64 reads marchid for the model string and reports a fixed
// "RISC-V" vendor; mvendorid is not read, and no extension in the
// allowlist is reported as supported (misa is read but not decoded).
// PA/VA widths on riscv64 are a function of the
// active satp MODE (Sv39/Sv48/Sv57), configured by the VMM backend; this
// type reports whichever mode the VMM backend has most recently selected
// via SetActiveSatpMode, since unlike x86-64/aarch64 there is no CSR that
// reports "implemented VA bits" independent of the chosen paging mode.
type RISCV64 struct{}

var _ Prober = RISCV64{}

//go:linkname readMisa catten_asm_csrr_misa
//go:nosplit
func readMisa() uint64

//go:linkname readMarchid catten_asm_csrr_marchid
//go:nosplit
func readMarchid() uint64

var activeSatpVABits uint = 39

// SetActiveSatpMode records which Sv mode the VMM backend programmed into
// satp, so VAddrSigBits can report it.
func SetActiveSatpMode(vaBits uint) { activeSatpVABits = vaBits }

func (RISCV64) Vendor() string { return "RISC-V" }

func (RISCV64) Model() string {
	return hexPair(uint32(readMarchid() & 0xff))
}

func hexPair(v uint32) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[(v>>4)&0xf], digits[v&0xf]})
}

func (RISCV64) PAddrSigBits() uint {
	// Sv39/48/57 all address a 56-bit physical space per the privileged
	// spec; riscv64 does not narrow this further at the ISA level.
	return 56
}

func (RISCV64) VAddrSigBits() uint { return activeSatpVABits }

func (RISCV64) IsExtensionSupported(ext Extension) bool {
	misa := readMisa()
	switch ext {
	case ExtRiscvSstc:
		// Sstc has no misa bit; presence is discovered via firmware/DT
		// and is out of scope for this probe (boot collaborator's job).
		return false
	case ExtRiscvSvpbmt:
		return false
	default:
		_ = misa
		return false
	}
}
