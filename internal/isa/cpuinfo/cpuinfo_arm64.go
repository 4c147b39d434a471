//go:build arm64

package cpuinfo

import _ "unsafe"

// ARM64 reads MIDR_EL1 for vendor/model and ID_AA64MMFR0_EL1/ID_AA64ISAR*
// for PA/VA width and extension presence, following the field layout the
// original_source's cpu/isa/aarch64/system_info/isa_extensions.rs decodes.
type ARM64 struct{}

var _ Prober = ARM64{}

//go:linkname readMidrEl1 catten_asm_mrs_midr_el1
//go:nosplit
func readMidrEl1() uint64

//go:linkname readIdAa64Mmfr0El1 catten_asm_mrs_id_aa64mmfr0_el1
//go:nosplit
func readIdAa64Mmfr0El1() uint64

//go:linkname readIdAa64Isar0El1 catten_asm_mrs_id_aa64isar0_el1
//go:nosplit
func readIdAa64Isar0El1() uint64

//go:linkname readIdAa64Mmfr1El1 catten_asm_mrs_id_aa64mmfr1_el1
//go:nosplit
func readIdAa64Mmfr1El1() uint64

//go:linkname readIdAa64Pfr0El1 catten_asm_mrs_id_aa64pfr0_el1
//go:nosplit
func readIdAa64Pfr0El1() uint64

func (ARM64) Vendor() string {
	midr := readMidrEl1()
	implementer := (midr >> 24) & 0xff
	switch implementer {
	case 0x41:
		return "ARM"
	case 0x42:
		return "Broadcom"
	case 0x51:
		return "Qualcomm"
	default:
		return "Unknown(" + hexPair(uint32(implementer)) + ")"
	}
}

func (ARM64) Model() string {
	midr := readMidrEl1()
	partNum := (midr >> 4) & 0xfff
	variant := (midr >> 20) & 0xf
	return hexPair(uint32(variant)) + ":" + hexPair(uint32(partNum&0xff))
}

// paRangeBits maps the ID_AA64MMFR0_EL1.PARange encoding onto the actual
// bit count (ARM ARM D19.2.64).
var paRangeBits = [...]uint{32, 36, 40, 42, 44, 48, 52, 56}

func (ARM64) PAddrSigBits() uint {
	enc := readIdAa64Mmfr0El1() & 0xf
	if int(enc) < len(paRangeBits) {
		return paRangeBits[enc]
	}
	return 48
}

func (ARM64) VAddrSigBits() uint {
	// VARange field of ID_AA64MMFR2_EL1 distinguishes 48 vs 52-bit VA;
	// this kernel only supports the spec's 39/48/57 profiles, so treat
	// anything not explicitly 57-bit-capable as 48, and TCR_EL1.T0SZ
	// configuration (set by the VMM backend) as the actual source of
	// truth for which of 39/48 is active.
	mmfr2 := readIdAa64Mmfr1El1()
	if mmfr2&(0xf<<36) != 0 {
		return 57
	}
	return 48
}

func hexPair(v uint32) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[(v>>4)&0xf], digits[v&0xf]})
}

func (ARM64) IsExtensionSupported(ext Extension) bool {
	switch ext {
	case ExtArmVHE:
		mmfr1 := readIdAa64Mmfr1El1()
		return (mmfr1>>8)&0xf != 0 // VH field
	case ExtArmPAN:
		mmfr1 := readIdAa64Mmfr1El1()
		return (mmfr1>>20)&0xf != 0 // PAN field
	case ExtArmLSE:
		isar0 := readIdAa64Isar0El1()
		return (isar0>>20)&0xf != 0
	case ExtArmSVE:
		pfr0 := readIdAa64Pfr0El1()
		return (pfr0>>32)&0xf != 0
	default:
		return false
	}
}
