// Package isa defines the portable contract every supported architecture
// (amd64, arm64, riscv64) must implement: logical-processor control,
// memory translation, interrupt delivery, and timing. The portable kernel
// never reaches past this interface to touch hardware directly.
//
// Concrete implementations live in per-GOARCH files (ops_amd64.go,
// ops_arm64.go, ops_riscv64.go) guarded by build tags, the way the teacher
// kernel gates its board-specific files with //go:build qemuvirt && aarch64.
// internal/isa/isasim provides a pure-Go implementation used only by tests.
package isa

// LpID identifies a logical processor, kernel-assigned at bring-up.
type LpID uint32

// PhysAddr is a physical address, bit-width constrained to whatever the
// running processor implements (discovered via CPUInfo at early init).
type PhysAddr uintptr

// VirtAddr is a virtual address in canonical form for the active VA width.
type VirtAddr uintptr

// PageSize is the frame granule this kernel manages. Large/huge pages are
// out of scope; every frame and every mapping is exactly one PageSize.
const PageSize = 4096

// ASID identifies an AddressSpace. ASID 0 is always the kernel.
type ASID uintptr

// HwASID is the ISA-visible tag (PCID on x86-64, VMID/ASID-tag on
// aarch64/riscv64) bound per-LP to an ASID.
type HwASID uint16

// PageType selects the permission set a mapping is created with (spec
// §4.D). The ISA backend derives concrete PTE flags from it.
type PageType uint8

const (
	KernelCode PageType = iota
	KernelData
	KernelRoData
	UserCode
	UserData
	UserRoData
	Mmio
)

func (t PageType) String() string {
	switch t {
	case KernelCode:
		return "KernelCode"
	case KernelData:
		return "KernelData"
	case KernelRoData:
		return "KernelRoData"
	case UserCode:
		return "UserCode"
	case UserData:
		return "UserData"
	case UserRoData:
		return "UserRoData"
	case Mmio:
		return "Mmio"
	default:
		return "PageType(?)"
	}
}

// PTEFlags is the abstract (target-PA, flags) view of a page table entry
// that the engine treats opaquely (spec §3). Concrete backends pack/unpack
// this into their own wire format.
type PTEFlags struct {
	Valid          bool
	Writable       bool
	UserAccessible bool
	ExecPermitted  bool
	CacheAttr      CacheAttr
	AccessFlag     bool // aarch64-only; ignored elsewhere
	Dirty          bool
	Global         bool
}

// CacheAttr is a small, ISA-independent cacheability classification; each
// backend maps it onto its own MAIR/PAT/PMA encoding.
type CacheAttr uint8

const (
	CacheWriteBack CacheAttr = iota
	CacheWriteThrough
	CacheUncacheable
	CacheDevice
)

// FlagsFor derives the PTEFlags a PageType implies. This is the one place
// the permission policy from spec §4.D ("permissions derived from
// page_type") lives; every ISA backend calls it rather than re-deriving
// policy itself.
func FlagsFor(t PageType) PTEFlags {
	f := PTEFlags{Valid: true, AccessFlag: true}
	switch t {
	case KernelCode:
		f.Writable = false
		f.ExecPermitted = true
		f.Global = true
		f.CacheAttr = CacheWriteBack
	case KernelData:
		f.Writable = true
		f.ExecPermitted = false
		f.Global = true
		f.CacheAttr = CacheWriteBack
	case KernelRoData:
		f.Writable = false
		f.ExecPermitted = false
		f.Global = true
		f.CacheAttr = CacheWriteBack
	case UserCode:
		f.Writable = false
		f.ExecPermitted = true
		f.UserAccessible = true
		f.CacheAttr = CacheWriteBack
	case UserData:
		f.Writable = true
		f.ExecPermitted = false
		f.UserAccessible = true
		f.CacheAttr = CacheWriteBack
	case UserRoData:
		f.Writable = false
		f.ExecPermitted = false
		f.UserAccessible = true
		f.CacheAttr = CacheWriteBack
	case Mmio:
		f.Writable = true
		f.ExecPermitted = false
		f.Global = true
		f.CacheAttr = CacheDevice
	}
	return f
}

// Ops is the one-instruction primitive set every ISA backend exposes
// (spec §4.A). Implementations must not allocate and must be 1-3
// instructions; the sim backend (tests only) is the sole exception.
type Ops interface {
	// Halt suspends the calling LP until the next interrupt.
	Halt()

	// MaskInterrupts / UnmaskInterrupts gate local interrupt delivery.
	MaskInterrupts()
	UnmaskInterrupts()

	// StoreLpID records this LP's kernel-assigned id in the ISA-specific
	// cache register (TSC_AUX on x86-64, TPIDR_EL1 on aarch64).
	StoreLpID(id LpID)
	// GetLpID reads it back.
	GetLpID() LpID

	// GetLicID returns the hardware local-interrupt-controller id (APIC
	// id / GICR affinity / IMSIC hart id) of the calling LP.
	GetLicID() uint32

	// GetLpLocalBase / SetLpLocalBase access the per-LP store pointer
	// held in a machine register (GS base on x86-64, TPIDR_EL0 on
	// aarch64).
	GetLpLocalBase() VirtAddr
	SetLpLocalBase(va VirtAddr)

	// GetThreadContextPtr / SetThreadContextPtr access the per-thread
	// context pointer register (FS base on x86-64).
	GetThreadContextPtr() VirtAddr
	SetThreadContextPtr(va VirtAddr)

	// SetPageTableBase / GetPageTableBase access the architectural
	// page-table-root register (CR3 on x86-64, TTBR0_EL1 on aarch64,
	// satp on riscv64), used when an AddressSpace is made current on
	// the calling LP.
	SetPageTableBase(pa PhysAddr)
	GetPageTableBase() PhysAddr
}

// ExtDuration is a picosecond-precision duration, used for timer
// resolution and calibration math where time.Duration's nanosecond floor
// would silently truncate results (spec §4.I calibration; see
// SPEC_FULL.md §D for why this is its own type rather than time.Duration).
type ExtDuration int64

const (
	Picosecond  ExtDuration = 1
	Nanosecond              = 1000 * Picosecond
	Microsecond             = 1000 * Nanosecond
	Millisecond             = 1000 * Microsecond
	Second                  = 1000 * Millisecond
)

// Add saturates instead of overflowing, since calibration arithmetic must
// never wrap into a negative, garbage tick period.
func (d ExtDuration) Add(o ExtDuration) ExtDuration {
	sum := d + o
	if (o > 0 && sum < d) || (o < 0 && sum > d) {
		if o > 0 {
			return 1<<63 - 1
		}
		return -(1 << 63)
	}
	return sum
}

// Div divides, rounding to nearest, for the averaging step in timer
// calibration.
func (d ExtDuration) Div(n int64) ExtDuration {
	if n == 0 {
		return 0
	}
	return ExtDuration((int64(d) + n/2) / n)
}
