// Package tlbsim is a host-testable internal/tlb.Invalidator that
// records calls instead of issuing real invalidation instructions, the
// same role internal/isa/isasim plays for internal/isa.Ops.
package tlbsim

import (
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/tlb"
)

type Call struct {
	Kind  string // "kernel", "user", "asid"
	Lo    isa.VirtAddr
	Pages uintptr
	ASID  isa.HwASID
}

// Recorder logs every invalidation request it receives. No test in this
// repository uses it.
type Recorder struct {
	mu    sync.Mutex
	Calls []Call
}

var _ tlb.Invalidator = (*Recorder)(nil)

func (r *Recorder) InvalidateRangeKernel(lo isa.VirtAddr, pages uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Kind: "kernel", Lo: lo, Pages: pages})
}

func (r *Recorder) InvalidateRangeUser(lo isa.VirtAddr, pages uintptr, asid isa.HwASID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Kind: "user", Lo: lo, Pages: pages, ASID: asid})
}

func (r *Recorder) InvalidateASID(asid isa.HwASID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Kind: "asid", ASID: asid})
}
