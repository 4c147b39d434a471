package cpuinfo

// Sim is a test-only Prober with fixed, caller-supplied values. Real
// backends read CPUID (amd64), ID_AA64MMFR0_EL1/MIDR_EL1 (arm64), or the
// misa/marchid CSRs (riscv64); this stands in for them in host tests.
type Sim struct {
	VendorStr string
	ModelStr  string
	PABits    uint
	VABits    uint
	Exts      map[Extension]bool
}

var _ Prober = Sim{}

func (s Sim) Vendor() string       { return s.VendorStr }
func (s Sim) Model() string        { return s.ModelStr }
func (s Sim) PAddrSigBits() uint   { return s.PABits }
func (s Sim) VAddrSigBits() uint   { return s.VABits }

func (s Sim) IsExtensionSupported(ext Extension) bool {
	return s.Exts[ext]
}
