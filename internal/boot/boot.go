// Package boot implements the BSP/AP bring-up sequence (spec §4.N): the
// one-time dance that turns a freshly loaded kernel image into a
// running scheduler on every logical processor, collaborating with the
// boot protocol (Limine) and the ACPI interpreter (uACPI) only through
// narrow interfaces the portable core can satisfy with host-testable
// doubles.
package boot

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/charlotte-os/catten/internal/bootcfg"
	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/isa/cpuinfo"
	"github.com/charlotte-os/catten/internal/kheap"
	"github.com/charlotte-os/catten/internal/klog"
	"github.com/charlotte-os/catten/internal/lam"
	"github.com/charlotte-os/catten/internal/lic"
	"github.com/charlotte-os/catten/internal/lplocal"
	"github.com/charlotte-os/catten/internal/pfa"
	"github.com/charlotte-os/catten/internal/sched"
	"github.com/charlotte-os/catten/internal/syssched"
	"github.com/charlotte-os/catten/internal/thread"
	"github.com/charlotte-os/catten/internal/vmm"
)

// BootTimerPeriod is the scheduler tick period programmed on every LP's
// timer at bring-up. Ten seconds is deliberately coarse for early
// bring-up diagnostics; a real build tightens this once preemption
// policy is tuned. It is derived from bootcfg.Default() rather than
// hand-duplicated so the one value cmd/cattenctl validates against a
// site descriptor is the same value bring-up actually arms.
var BootTimerPeriod = bootcfg.Default().SchedulerTick()

// KernelStackPages is the fixed kernel-stack size requested from the
// boot protocol (spec §4.N/§6): 4 pages, matching every thread's
// guard-paged kernel stack allocation elsewhere in the kernel.
var KernelStackPages = bootcfg.Default().DefaultStackPages

var (
	// ErrNoBootProtocolResponse is the panic-worthy condition spec §7
	// assigns to any boot-protocol request the bootloader did not answer
	// (memory map, HHDM offset, MP response, etc). Callers should pass
	// this to klog.Logger.Panicf rather than returning it up the stack,
	// since boot cannot proceed without it.
	ErrNoBootProtocolResponse = errors.New("boot: required boot-protocol response missing")
	// ErrUnsupportedHardware is raised when a mandatory ISA extension
	// (x2APIC on x86-64, cpuinfo's VA-width probe landing outside
	// 39/48/57) is absent; spec §7 treats this as fatal during init.
	ErrUnsupportedHardware = errors.New("boot: mandatory hardware feature missing")
)

// MemMapEntry is one Limine memory-map entry, narrowed to what the PFA
// and kernel address space construction need.
type MemMapEntry struct {
	Base   isa.PhysAddr
	Length uintptr
	Usable bool
}

// PreMapping is one bootloader-established mapping the kernel address
// space must carry forward (the kernel image itself, the HHDM, the
// framebuffer) rather than lose when the kernel takes over paging.
type PreMapping struct {
	VA       isa.VirtAddr
	PA       isa.PhysAddr
	PageType isa.PageType
}

// BootProtocol is the narrow collaborator interface over the Limine
// boot protocol (spec §6): memory map, direct-map offset, executable
// load base, framebuffer, RSDP, and multiprocessor bring-up. Every
// method's absence of a response is a boot-time panic, never a
// recoverable error (spec §7), so implementations return
// ErrNoBootProtocolResponse rather than invent a fallback value.
type BootProtocol interface {
	MemoryMap() ([]MemMapEntry, error)
	HHDMOffset() (uintptr, error)
	ExecutableBase() (isa.PhysAddr, isa.VirtAddr, error)
	RSDP() (isa.PhysAddr, error)
	KernelPreMappings() ([]PreMapping, error)

	// StartAP requests the bootloader bring up lp's processor at
	// entry, per the Limine MP-request protocol. x2APIC is mandatory on
	// x86-64 (spec §6); implementations for other ISAs ignore that
	// requirement.
	StartAP(lp isa.LpID, entry func()) error
}

// ACPIHost is the narrow uACPI kernel-hook collaborator interface (spec
// §6): the handful of callbacks uACPI's table/method interpreter needs
// from the kernel, expressed here so the portable core can be exercised
// without linking the real interpreter.
type ACPIHost interface {
	GetRSDP() (isa.PhysAddr, error)
	// Map rounds pa down to a page boundary and length up, finds a free
	// VA run in lam.KernelAllocatorArena, maps each page KernelData
	// (uACPI tables are read-only data but uACPI itself may write
	// scratch fields into mapped firmware tables, so Data rather than
	// RoData), and returns the VA with the original intra-page offset
	// preserved.
	Map(pa isa.PhysAddr, length uintptr) (isa.VirtAddr, error)
	Unmap(va isa.VirtAddr, length uintptr) error
	Log(level klog.Level, msg string)
}

// acpiHost is the portable ACPIHost implementation: everything but the
// RSDP lookup and the log sink is mechanical VA-space bookkeeping over
// the kernel AddressSpace and PFA, so it lives here rather than behind
// another interface layer.
type acpiHost struct {
	as     *vmm.AddressSpace
	frames *pfa.Allocator
	region lam.Extent
	rsdp   isa.PhysAddr
	logger *klog.Logger
}

// NewACPIHost builds the portable ACPIHost over the kernel address
// space's KernelAllocatorArena.
func NewACPIHost(as *vmm.AddressSpace, frames *pfa.Allocator, region lam.Extent, rsdp isa.PhysAddr, logger *klog.Logger) ACPIHost {
	return &acpiHost{as: as, frames: frames, region: region, rsdp: rsdp, logger: logger}
}

func (h *acpiHost) GetRSDP() (isa.PhysAddr, error) { return h.rsdp, nil }

func (h *acpiHost) Map(pa isa.PhysAddr, length uintptr) (isa.VirtAddr, error) {
	pageBase := isa.PhysAddr(uintptr(pa) &^ (isa.PageSize - 1))
	offset := uintptr(pa) - uintptr(pageBase)
	pages := (offset + length + isa.PageSize - 1) / isa.PageSize

	va, err := h.as.FindFreeRegion(pages, h.region.Base, isa.VirtAddr(uintptr(h.region.Base)+h.region.Length))
	if err != nil {
		return 0, err
	}
	for i := uintptr(0); i < pages; i++ {
		mapVA := isa.VirtAddr(uintptr(va) + i*isa.PageSize)
		mapPA := isa.PhysAddr(uintptr(pageBase) + i*isa.PageSize)
		if err := h.as.MapPage(mapVA, mapPA, isa.KernelData); err != nil {
			return 0, err
		}
	}
	return isa.VirtAddr(uintptr(va) + offset), nil
}

func (h *acpiHost) Unmap(va isa.VirtAddr, length uintptr) error {
	pageBase := isa.VirtAddr(uintptr(va) &^ (isa.PageSize - 1))
	offset := uintptr(va) - uintptr(pageBase)
	pages := (offset + length + isa.PageSize - 1) / isa.PageSize
	for i := uintptr(0); i < pages; i++ {
		if err := h.as.UnmapPage(isa.VirtAddr(uintptr(pageBase) + i*isa.PageSize)); err != nil {
			return err
		}
	}
	return nil
}

func (h *acpiHost) Log(level klog.Level, msg string) {
	switch level {
	case klog.LevelError, klog.LevelPanic, klog.LevelFatal:
		h.logger.Errorf("%s", msg)
	case klog.LevelWarn:
		h.logger.Warnf("%s", msg)
	default:
		h.logger.Infof("%s", msg)
	}
}

// KernelState is everything bring-up constructs once on the BSP and
// every LP thereafter shares: the PFA, kernel address space, kernel
// heap, kernel stack allocator, thread table, system scheduler, and
// logger.
// internal/boot does not own the cmd-line entry point; it only builds
// this state and starts each LP's scheduler loop.
type KernelState struct {
	Frames   *pfa.Allocator
	KernelAS *vmm.AddressSpace
	Heap     *kheap.Heap
	Stacks   *kheap.StackAllocator
	Threads  *thread.Table
	Sys      *syssched.System
	Logger   *klog.Logger

	nextLpID atomic.Uint32
}

// bitmapFrameCount returns how many whole pages the PFA bitmap needs to
// hold one bit per frame up to and including highestAddr's frame; the
// result sizes the best-fit search for the bitmap's own placement (spec
// §4.C).
func bitmapFrameCount(highestAddr isa.PhysAddr) uintptr {
	numFrames := uintptr(highestAddr)/isa.PageSize + 1
	bytes := (numFrames + 7) / 8
	return (bytes + isa.PageSize - 1) / isa.PageSize
}

// bestFitBitmapRegion picks the smallest usable region that can hold
// bitmapPages contiguous pages, the best-fit placement rule spec §4.C
// assigns to the PFA's own backing storage (it cannot ask the allocator
// it is building to allocate its own bitmap).
func bestFitBitmapRegion(regions []MemMapEntry, bitmapPages uintptr) (isa.PhysAddr, error) {
	need := bitmapPages * isa.PageSize
	var best *MemMapEntry
	for i := range regions {
		r := &regions[i]
		if !r.Usable || r.Length < need {
			continue
		}
		if best == nil || r.Length < best.Length {
			best = r
		}
	}
	if best == nil {
		return 0, errors.New("boot: no usable region large enough for the PFA bitmap")
	}
	return best.Base, nil
}

// StartBSP runs the bootstrap-processor bring-up sequence (spec §4.N):
// atomic LpId=0 assignment, CPU feature probing, PFA construction from
// the firmware memory map, kernel address space construction
// (snapshotting the bootloader's own mappings so the handoff loses
// nothing), heap init, per-LP local store install, LIC init and timer
// arm, and construction of the system scheduler. It performs no
// ISA-specific exception/interrupt-table init, does not request
// secondary LPs (see BringUpSecondaries), does not wait at a barrier,
// and does not yield to the scheduler: it returns the built state.
//
// physMem backs the kernel address space's page-table-frame writes;
// logger must already be usable before any hardware that could fail is
// touched, since every fatal condition here is reported through it.
func StartBSP(ops isa.Ops, proto BootProtocol, physMem vmm.PhysMem, prober cpuinfo.Prober, logger *klog.Logger, licFactory func(isa.LpID) lic.Controller) (*KernelState, error) {
	ks := &KernelState{Logger: logger}

	lp := isa.LpID(ks.nextLpID.Add(1) - 1)
	ops.StoreLpID(lp)

	info := cpuinfo.Probe(prober, []cpuinfo.Extension{
		cpuinfo.ExtX86X2APIC, cpuinfo.ExtX86PCID, cpuinfo.ExtX86InvariantTSC,
		cpuinfo.ExtArmVHE, cpuinfo.ExtRiscvSstc,
	})
	if runtime.GOARCH == "amd64" && !info.IsExtensionSupported(cpuinfo.ExtX86X2APIC) {
		logger.Panicf("x2APIC not supported: %v", ErrUnsupportedHardware)
	}
	profile, err := vaProfileFor(info.VAddrSigBits)
	if err != nil {
		logger.Panicf("unsupported VA width %d bits: %v", info.VAddrSigBits, err)
	}

	m, err := lam.ForProfile(profile)
	if err != nil {
		logger.Panicf("no linear address map for profile %v: %v", profile, err)
	}

	mm, err := proto.MemoryMap()
	if err != nil {
		logger.Panicf("boot protocol memory map: %v", ErrNoBootProtocolResponse)
	}

	var highest isa.PhysAddr
	pfaRegions := make([]pfa.MemRegion, 0, len(mm))
	for _, e := range mm {
		top := isa.PhysAddr(uintptr(e.Base) + e.Length)
		if top > highest {
			highest = top
		}
		kind := pfa.Reserved
		if e.Usable {
			kind = pfa.Usable
		}
		pfaRegions = append(pfaRegions, pfa.MemRegion{Base: e.Base, Length: e.Length, Kind: kind})
	}

	bitmapPages := bitmapFrameCount(highest)
	bitmapBase, err := bestFitBitmapRegion(mm, bitmapPages)
	if err != nil {
		return nil, err
	}
	// The bitmap's own bytes are plain kernel-image storage backed by
	// the region bestFitBitmapRegion chose; the allocator that owns that
	// region does not exist yet, so its backing store is requested as a
	// Go slice here rather than addressed through PhysMem (PhysMem only
	// speaks page-table-entry words, never an arbitrary byte range).
	bitmapBytes := make([]byte, bitmapPages*isa.PageSize)

	reserved := make([]isa.PhysAddr, 0, bitmapPages)
	for i := uintptr(0); i < bitmapPages; i++ {
		reserved = append(reserved, isa.PhysAddr(uintptr(bitmapBase)+i*isa.PageSize))
	}

	frames, err := pfa.New(highest, bitmapBytes, pfaRegions, reserved)
	if err != nil {
		return nil, err
	}
	ks.Frames = frames

	kernelAS, err := vmm.NewKernelAddressSpace(physMem, frames, profile, m)
	if err != nil {
		return nil, err
	}
	preMaps, err := proto.KernelPreMappings()
	if err != nil {
		logger.Panicf("boot protocol kernel pre-mappings: %v", ErrNoBootProtocolResponse)
	}
	for _, pm := range preMaps {
		if err := kernelAS.MapPage(pm.VA, pm.PA, pm.PageType); err != nil {
			return nil, err
		}
	}
	ks.KernelAS = kernelAS

	heap, err := kheap.New(kernelAS, frames, m.Extent(lam.KernelAllocatorArena))
	if err != nil {
		return nil, err
	}
	ks.Heap = heap
	ks.Stacks = kheap.NewStackAllocator(kernelAS, frames, m.Extent(lam.KernelStackArena))
	ks.Threads = thread.NewTable(ks.Stacks, nil)

	lplocal.Install(ops, lp, 0)

	controller := licFactory(lp)
	controller.Init()
	timer := lic.NewSoftTimer(BootTimerPeriod)
	timer.SetDuration(BootTimerPeriod)
	if err := timer.Start(); err != nil {
		return nil, err
	}

	locals := map[isa.LpID]*sched.LocalScheduler{lp: sched.NewLocalScheduler(&sched.RoundRobin{})}
	ks.Sys = syssched.New(locals, ks.Threads, nil, nil)

	return ks, nil
}

// vaProfileFor maps a probed significant-VA-bit count onto the fixed
// 39/48/57 profile set; any other value is unsupported hardware (spec
// §7: fatal during init).
func vaProfileFor(bits uint) (cpuinfo.VAWidthProfile, error) {
	switch bits {
	case 39:
		return cpuinfo.VAWidth39, nil
	case 48:
		return cpuinfo.VAWidth48, nil
	case 57:
		return cpuinfo.VAWidth57, nil
	default:
		return 0, ErrUnsupportedHardware
	}
}

// StartAP runs the application-processor bring-up sequence (spec §4.N):
// atomic LpId assignment, per-LP store install, LIC init, timer arm,
// and barrier wait, then returns the assigned LpId. It performs no
// ISA-specific init and does not yield to the scheduler. It shares ks's PFA/kernel
// address-space/heap rather than rebuilding them, since those are
// process-wide singletons constructed once on the BSP.
func StartAP(ks *KernelState, ops isa.Ops, licFactory func(isa.LpID) lic.Controller, barrier *sync.WaitGroup) isa.LpID {
	lp := isa.LpID(ks.nextLpID.Add(1) - 1)
	ops.StoreLpID(lp)

	lplocal.Install(ops, lp, 0)

	controller := licFactory(lp)
	controller.Init()
	timer := lic.NewSoftTimer(BootTimerPeriod)
	timer.SetDuration(BootTimerPeriod)
	_ = timer.Start()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return lp
}

// BringUpSecondaries requests proto start every LP id in lps, each
// entering apEntry, and returns a barrier sized to len(lps) without
// waiting on it. Each AP marks it done in StartAP; a caller that wants
// every AP to have reported in waits on the returned barrier itself.
func BringUpSecondaries(proto BootProtocol, lps []isa.LpID, apEntry func()) (*sync.WaitGroup, error) {
	barrier := &sync.WaitGroup{}
	barrier.Add(len(lps))
	for _, lp := range lps {
		if err := proto.StartAP(lp, apEntry); err != nil {
			return nil, ErrNoBootProtocolResponse
		}
	}
	return barrier, nil
}
