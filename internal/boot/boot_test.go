package boot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/isa/cpuinfo"
	"github.com/charlotte-os/catten/internal/isa/isasim"
	"github.com/charlotte-os/catten/internal/klog"
	"github.com/charlotte-os/catten/internal/lam"
	"github.com/charlotte-os/catten/internal/lic"
	"github.com/charlotte-os/catten/internal/lic/licsim"
	"github.com/charlotte-os/catten/internal/pfa"
	"github.com/charlotte-os/catten/internal/vmm"
	"github.com/charlotte-os/catten/internal/vmm/vmmsim"
)

type fakeBootProtocol struct {
	mm       []MemMapEntry
	preMaps  []PreMapping
	startErr error
	started  []isa.LpID
}

func (f *fakeBootProtocol) MemoryMap() ([]MemMapEntry, error) { return f.mm, nil }
func (f *fakeBootProtocol) HHDMOffset() (uintptr, error)      { return 0, nil }
func (f *fakeBootProtocol) ExecutableBase() (isa.PhysAddr, isa.VirtAddr, error) {
	return 0, 0, nil
}
func (f *fakeBootProtocol) RSDP() (isa.PhysAddr, error)             { return 0, nil }
func (f *fakeBootProtocol) KernelPreMappings() ([]PreMapping, error) { return f.preMaps, nil }
func (f *fakeBootProtocol) StartAP(lp isa.LpID, entry func()) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, lp)
	return nil
}

type recordingSink struct{ lines []string }

func (s *recordingSink) Write(level klog.Level, lp uint32, msg string) {
	s.lines = append(s.lines, msg)
}

func newTestLogger() *klog.Logger { return klog.New(0, &recordingSink{}) }

func TestStartBSP_BuildsKernelState(t *testing.T) {
	ops := isasim.NewLP(0, 0)
	proto := &fakeBootProtocol{
		mm: []MemMapEntry{{Base: 0, Length: 64 * 1024 * 1024, Usable: true}},
	}
	mem := vmmsim.New()
	prober := cpuinfo.Sim{VABits: 48, PABits: 48, Exts: map[cpuinfo.Extension]bool{cpuinfo.ExtX86X2APIC: true}}
	logger := newTestLogger()

	ks, err := StartBSP(ops, proto, mem, prober, logger, func(isa.LpID) lic.Controller { return licsim.New() })
	require.NoError(t, err)
	require.NotNil(t, ks.Frames)
	require.NotNil(t, ks.KernelAS)
	require.NotNil(t, ks.Heap)
	require.NotNil(t, ks.Sys)
	require.Equal(t, isa.LpID(0), ops.GetLpID())
}

func TestVaProfileFor_RejectsUnsupportedWidth(t *testing.T) {
	_, err := vaProfileFor(40)
	require.ErrorIs(t, err, ErrUnsupportedHardware)
}

func TestBestFitBitmapRegion_PicksSmallestSufficientRegion(t *testing.T) {
	regions := []MemMapEntry{
		{Base: 0, Length: 16 * isa.PageSize, Usable: true},
		{Base: 1 << 20, Length: 4 * isa.PageSize, Usable: true},
		{Base: 1 << 30, Length: 100 * isa.PageSize, Usable: false},
	}
	base, err := bestFitBitmapRegion(regions, 2)
	require.NoError(t, err)
	require.Equal(t, isa.PhysAddr(1<<20), base, "should pick the smallest usable region that still fits")
}

func TestBestFitBitmapRegion_NoneLargeEnough(t *testing.T) {
	regions := []MemMapEntry{{Base: 0, Length: isa.PageSize, Usable: true}}
	_, err := bestFitBitmapRegion(regions, 10)
	require.Error(t, err)
}

func TestACPIHost_MapUnmapRoundTrip(t *testing.T) {
	mem := vmmsim.New()
	profile := cpuinfo.VAWidth39
	highBytes := uintptr(16 * 1024 * 1024)
	highest := isa.PhysAddr(highBytes - isa.PageSize)
	storage := make([]byte, (highBytes/isa.PageSize+7)/8)
	usable := []pfa.MemRegion{{Base: 0x100000, Length: highBytes - 0x100000, Kind: pfa.Usable}}
	frames, err := pfa.New(highest, storage, usable, nil)
	require.NoError(t, err)

	m, err := lam.ForProfile(profile)
	require.NoError(t, err)
	as, err := vmm.NewKernelAddressSpace(mem, frames, profile, m)
	require.NoError(t, err)

	logger := newTestLogger()
	host := NewACPIHost(as, frames, m.Extent(lam.KernelAllocatorArena), isa.PhysAddr(0x1000), logger)

	pa, err := frames.AllocateFrame()
	require.NoError(t, err)
	va, err := host.Map(isa.PhysAddr(uintptr(pa)+16), 32)
	require.NoError(t, err)
	require.Equal(t, uintptr(16), uintptr(va)%isa.PageSize, "intra-page offset must be preserved")

	require.NoError(t, host.Unmap(va, 32))
}

func TestBringUpSecondaries_RequestsEveryLP(t *testing.T) {
	proto := &fakeBootProtocol{}
	lps := []isa.LpID{1, 2, 3}
	barrier, err := BringUpSecondaries(proto, lps, func() {})
	require.NoError(t, err)
	require.NotNil(t, barrier)
	require.ElementsMatch(t, lps, proto.started)
}

func TestBringUpSecondaries_PropagatesBootProtocolFailure(t *testing.T) {
	proto := &fakeBootProtocol{startErr: ErrNoBootProtocolResponse}
	_, err := BringUpSecondaries(proto, []isa.LpID{1}, func() {})
	require.ErrorIs(t, err, ErrNoBootProtocolResponse)
}
