// Package cpuinfo exposes vendor/model identification and feature
// probing (spec §4.B). The PA/VA significant bit counts are read exactly
// once during early init and cached; internal/lam's region selector
// consults the cached VA width.
package cpuinfo

// Extension names this kernel ever queries. The set is closed per ISA;
// unrecognised names always report unsupported rather than panicking, so
// callers can probe speculatively.
type Extension string

const (
	ExtX86PCID    Extension = "pcid"
	ExtX86Invpcid Extension = "invpcid"
	ExtX86X2APIC  Extension = "x2apic"
	ExtX86TscDeadline Extension = "tsc_deadline"
	ExtX86InvariantTSC Extension = "invariant_tsc"

	ExtArmVHE   Extension = "vhe"
	ExtArmPAN   Extension = "pan"
	ExtArmLSE   Extension = "lse"
	ExtArmSVE   Extension = "sve"

	ExtRiscvSstc Extension = "sstc"
	ExtRiscvSvpbmt Extension = "svpbmt"
)

// Info is the immutable snapshot taken once at early init (spec §4.B:
// "consulted exactly once during early init and cached").
type Info struct {
	Vendor         string
	Model          string
	PAddrSigBits   uint
	VAddrSigBits   uint
	extensions     map[Extension]bool
}

// Prober is implemented per-ISA (cpuinfo_amd64.go, cpuinfo_arm64.go,
// cpuinfo_riscv64.go) and by Sim (cpuinfo_sim.go) for tests.
type Prober interface {
	Vendor() string
	Model() string
	PAddrSigBits() uint
	VAddrSigBits() uint
	IsExtensionSupported(ext Extension) bool
}

// Probe snapshots a Prober into an Info, the form the rest of the kernel
// consumes (no further hardware reads after this point).
func Probe(p Prober, exts []Extension) Info {
	info := Info{
		Vendor:       p.Vendor(),
		Model:        p.Model(),
		PAddrSigBits: p.PAddrSigBits(),
		VAddrSigBits: p.VAddrSigBits(),
		extensions:   make(map[Extension]bool, len(exts)),
	}
	for _, e := range exts {
		info.extensions[e] = p.IsExtensionSupported(e)
	}
	return info
}

// IsExtensionSupported reports the cached presence bit for ext. Querying
// an extension that was not included in the Probe() call's list returns
// false, matching spec §4.B's narrow, explicit-allowlist probing model.
func (i Info) IsExtensionSupported(ext Extension) bool {
	return i.extensions[ext]
}

// VAWidthProfile is the canonical VA width bucket the linear-address map
// is keyed by (spec §4.F: 39/48/57-bit profiles). Any other VAddrSigBits
// value is unsupported hardware and is fatal per spec §7.
type VAWidthProfile uint

const (
	VAWidth39 VAWidthProfile = 39
	VAWidth48 VAWidthProfile = 48
	VAWidth57 VAWidthProfile = 57
)

// ErrUnsupportedVAWidth is returned by Profile when VAddrSigBits does not
// match one of the three supported profiles; the boot sequence treats
// this as fatal (spec §7: "panic during init").
type ErrUnsupportedVAWidth struct {
	Bits uint
}

func (e ErrUnsupportedVAWidth) Error() string {
	return "cpuinfo: unsupported virtual address width"
}

// Profile maps the cached VAddrSigBits onto a VAWidthProfile.
func (i Info) Profile() (VAWidthProfile, error) {
	switch i.VAddrSigBits {
	case 39:
		return VAWidth39, nil
	case 48:
		return VAWidth48, nil
	case 57:
		return VAWidth57, nil
	default:
		return 0, ErrUnsupportedVAWidth{Bits: i.VAddrSigBits}
	}
}
