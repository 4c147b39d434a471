// Package lplocal implements the per-LP local store (spec §4.H): a
// heap-allocated LpLocal installed via isa.Ops.SetLpLocalBase during LP
// init, reachable only through Get/GetMut, and never moved afterward.
package lplocal

import (
	"sync"

	"github.com/charlotte-os/catten/internal/ipirpc"
	"github.com/charlotte-os/catten/internal/isa"
)

// IsaData owns the ISA-specific per-LP hardware state: the IDT/GDT on
// x86-64, the LIC instance, and the LP timer (spec §4.H). It is kept as
// an opaque handle here since its concrete shape is entirely
// architecture-dependent; callers type-assert to the backend they know
// they are running on.
type IsaData any

// LpLocal is the per-LP structure addressed through the LP-local base
// register. Its address is fixed at install time; code must never copy
// it by value once installed.
type LpLocal struct {
	IsaData IsaData
	CErrno  int32
	IPIReqs *ipirpc.RingQueue
}

const ipiQueueCapacity = 64

// store retains every installed LpLocal keyed by the owning LP id, the
// same role a real per-LP base register plays for direct addressing;
// the portable core additionally keeps this index so host tests can
// look an LP's store up without simulating the base register.
var (
	mu    sync.RWMutex
	store = map[isa.LpID]*LpLocal{}
)

// Install allocates a fresh LpLocal for lp, records it, and programs
// ops.SetLpLocalBase with its address (spec §4.H). va is the value the
// real backend would compute from the allocated store's virtual
// address; the simulated/test path does not need a real VA, so callers
// running under isasim may pass any stable, unique value.
func Install(ops isa.Ops, lp isa.LpID, va isa.VirtAddr) *LpLocal {
	local := &LpLocal{IPIReqs: ipirpc.NewRingQueue(ipiQueueCapacity)}

	mu.Lock()
	store[lp] = local
	mu.Unlock()

	ops.SetLpLocalBase(va)
	return local
}

// Get returns the LpLocal installed for lp (it looks lp up in the
// store index rather than reading the base register), the only sanctioned accessor
// besides GetMut (spec §4.H); Get and GetMut are identical in Go, since
// Go has no separate shared/exclusive reference distinction at this
// level — both return the same pointer.
func Get(lp isa.LpID) (*LpLocal, bool) {
	mu.RLock()
	defer mu.RUnlock()
	local, ok := store[lp]
	return local, ok
}

// GetMut is Get; kept as a distinct name to mirror the two-accessor
// contract spec §4.H names explicitly.
func GetMut(lp isa.LpID) (*LpLocal, bool) { return Get(lp) }
