package thread

import (
	"errors"
	"sync"

	"github.com/charlotte-os/catten/internal/kheap"
)

// ErrUnknownThread is returned by table operations given an ID with no
// live entry.
var ErrUnknownThread = errors.New("thread: unknown thread id")

// CleanupHook runs thread-local teardown before a terminated (not
// aborted) thread's resources are released. What it captures is
// ISA/subsystem-specific (closing file descriptors, notifying a parent,
// etc.); the portable table only ever calls it conditionally, per
// ReapKind.
type CleanupHook func(*Thread)

// ReapKind distinguishes the two ways a thread table entry is reclaimed
// (spec §3/§4.M): Terminate runs any registered cleanup hook first;
// Abort drops the thread's stacks immediately without running it, for
// callers that need a thread gone now regardless of its internal state
// (e.g. a fatal fault in a sibling thread of the same process).
type ReapKind uint8

const (
	ReapTerminate ReapKind = iota
	ReapAbort
)

// Table owns every live Thread, keyed by ID.
type Table struct {
	mu      sync.Mutex
	threads map[ID]*Thread
	stacks  *kheap.StackAllocator
	cleanup CleanupHook
}

// NewTable builds an empty table. cleanup may be nil if no thread-local
// teardown is needed.
func NewTable(stacks *kheap.StackAllocator, cleanup CleanupHook) *Table {
	return &Table{threads: make(map[ID]*Thread), stacks: stacks, cleanup: cleanup}
}

// Add records a newly constructed thread.
func (tb *Table) Add(t *Thread) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.threads[t.ID] = t
}

// Get returns the thread for id, if still live.
func (tb *Table) Get(id ID) (*Thread, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.threads[id]
	return t, ok
}

// Reap marks id Terminated and releases its stacks, running the
// registered CleanupHook first when kind is ReapTerminate but never for
// ReapAbort (spec §3/§4.M's Abort-vs-Terminate distinction).
func (tb *Table) Reap(id ID, kind ReapKind) error {
	tb.mu.Lock()
	t, ok := tb.threads[id]
	if !ok {
		tb.mu.Unlock()
		return ErrUnknownThread
	}
	delete(tb.threads, id)
	tb.mu.Unlock()

	if kind == ReapTerminate && tb.cleanup != nil {
		tb.cleanup(t)
	}

	t.State = Terminated

	if err := tb.stacks.DeallocateStack(t.KernelStackTop()); err != nil {
		return err
	}
	if top, isUser := t.UserStackTop(); isUser {
		if err := tb.stacks.DeallocateStack(top); err != nil {
			return err
		}
	}
	return nil
}

// ReapMany reaps every listed id with the same ReapKind, collecting
// (not stopping on) the first error per id so a batch terminate/abort
// call still reaps everything it can.
func (tb *Table) ReapMany(ids []ID, kind ReapKind) []error {
	var errs []error
	for _, id := range ids {
		if err := tb.Reap(id, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
