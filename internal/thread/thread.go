// Package thread implements the Thread and ThreadContext types and the
// runnable-thread construction sequence of spec §4.K.
package thread

import (
	"errors"
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/kheap"
)

// State is one point in a thread's life cycle (spec §3):
// NeedsLpAssignment -> RunnableQueued(lp) -> Running(lp) -> Blocked ->
// Running -> Terminated.
type State uint8

const (
	NeedsLpAssignment State = iota
	RunnableQueued
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case NeedsLpAssignment:
		return "NeedsLpAssignment"
	case RunnableQueued:
		return "RunnableQueued"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Terminated:
		return "Terminated"
	default:
		return "State(?)"
	}
}

// ID identifies a thread.
type ID uint64

// Completion is a blocking point a thread waits on (spec §3's
// "Blocked({Completion})"). internal/syssched's BlockTid takes one from
// its caller and adds it to the thread's blockers; nothing in syssched
// calls Fulfil.
type Completion struct {
	mu   sync.Mutex
	done bool
	ch   chan struct{}
}

// NewCompletion returns an unfulfilled Completion.
func NewCompletion() *Completion { return &Completion{ch: make(chan struct{})} }

// Fulfil marks the completion done, waking any waiter; idempotent.
func (c *Completion) Fulfil() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	close(c.ch)
}

// Wait blocks until Fulfil is called.
func (c *Completion) Wait() { <-c.ch }

// ThreadContext is the architected state sufficient to resume a thread
// via a single interrupt-return instruction (spec §3): the saved
// kernel-stack pointer (pointing at the written interrupt-return frame)
// and the address-space root to load if it differs from current.
type ThreadContext struct {
	SavedKernelSP isa.VirtAddr
	SavedUserSP   isa.VirtAddr // only meaningful for user threads
	AddressRoot   isa.PhysAddr
}

// Thread is { id, is_user, asid, context, state, stack-buffer ownership }
// (spec §3).
type Thread struct {
	ID      ID
	IsUser  bool
	ASID    isa.ASID
	Context ThreadContext
	State   State

	kernelStackTop isa.VirtAddr
	userStackTop   isa.VirtAddr // zero if !IsUser

	blockers []*Completion
}

// EntryFrame is the portable description of the interrupt-return frame
// spec §4.K step 3 writes at the top of a new thread's kernel stack:
// general registers zeroed, the entry point, the code selector, flags
// with interrupts enabled, the return stack pointer, and the stack
// selector. Selector/flags layout is ISA-specific; FrameWriter concrete
// implementations translate this into the real on-stack byte layout.
type EntryFrame struct {
	EntryIP      isa.VirtAddr
	CodeSelector uint16
	Flags        uint64
	ReturnSP     isa.VirtAddr
	StackSelector uint16
}

// FrameWriter writes an EntryFrame onto a stack and returns the
// resulting kernel stack pointer value to record in ThreadContext.
// Implementations must respect the ISA's stack-alignment requirement
// (16 bytes on x86-64).
type FrameWriter interface {
	WriteEntryFrame(kernelStackTop isa.VirtAddr, frame EntryFrame) isa.VirtAddr
}

// ErrNoStackAllocator is returned by New when stacks could not be
// allocated.
var ErrNoStackAllocator = errors.New("thread: stack allocator required")

// New constructs a runnable thread following spec §4.K's sequence:
// allocate a guard-paged kernel stack (and, for user threads, a second
// CPL=3 stack), write the interrupt-return frame, and record the
// resulting ThreadContext.
func New(id ID, isUser bool, asid isa.ASID, stacks *kheap.StackAllocator, fw FrameWriter, entryIP isa.VirtAddr, addressRoot isa.PhysAddr, codeSelector, stackSelector uint16, flags uint64) (*Thread, error) {
	if stacks == nil {
		return nil, ErrNoStackAllocator
	}

	kernelTop, err := stacks.AllocateStack(4)
	if err != nil {
		return nil, err
	}

	var userTop isa.VirtAddr
	if isUser {
		userTop, err = stacks.AllocateStack(4)
		if err != nil {
			return nil, err
		}
	}

	returnSP := kernelTop
	if isUser {
		returnSP = userTop
	}
	frame := EntryFrame{
		EntryIP:       entryIP,
		CodeSelector:  codeSelector,
		Flags:         flags,
		ReturnSP:      returnSP,
		StackSelector: stackSelector,
	}
	savedSP := fw.WriteEntryFrame(kernelTop, frame)

	return &Thread{
		ID:     id,
		IsUser: isUser,
		ASID:   asid,
		State:  NeedsLpAssignment,
		Context: ThreadContext{
			SavedKernelSP: savedSP,
			SavedUserSP:   userTop,
			AddressRoot:   addressRoot,
		},
		kernelStackTop: kernelTop,
		userStackTop:   userTop,
	}, nil
}

// AddBlocker registers c as something this thread is waiting on and
// transitions it to Blocked.
func (t *Thread) AddBlocker(c *Completion) {
	t.blockers = append(t.blockers, c)
	t.State = Blocked
}

// Blockers returns the completions this thread is currently waiting on.
func (t *Thread) Blockers() []*Completion { return t.blockers }

// ClearBlockers transitions the thread back to Running and drops its
// blocker list, called once the awaited event has fired.
func (t *Thread) ClearBlockers() {
	t.blockers = nil
	t.State = Running
}

// KernelStackTop / UserStackTop expose the stack handles Reap needs to
// release them.
func (t *Thread) KernelStackTop() isa.VirtAddr { return t.kernelStackTop }
func (t *Thread) UserStackTop() (isa.VirtAddr, bool) {
	return t.userStackTop, t.IsUser
}
