package ipirpc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
)

// recordingSender fires IPIs synchronously into the System's own
// Receive path, the way a real LIC fires an interrupt that the
// recipient's handler loop observes.
type recordingSender struct {
	mu   sync.Mutex
	sent []struct {
		lp  isa.LpID
		vec Vector
	}
	sys *System
}

func (r *recordingSender) SendIPI(lp isa.LpID, vec Vector) error {
	r.mu.Lock()
	r.sent = append(r.sent, struct {
		lp  isa.LpID
		vec Vector
	}{lp, vec})
	r.mu.Unlock()

	switch vec {
	case VectorUnicastIPI:
		go r.sys.ReceiveUnicast(lp, noopHandler{})
	case VectorMulticastIPI:
		go r.sys.ReceiveMulticast(lp, noopHandler{})
	case VectorBroadcastIPI:
		go r.sys.ReceiveBroadcast(noopHandler{})
	}
	return nil
}

type noopHandler struct{}

func (noopHandler) Handle(IpiRpc) {}

func TestSendUnicast_CompletesAfterReceive(t *testing.T) {
	sys := NewSystem([]isa.LpID{0, 1}, nil)
	sender := &recordingSender{sys: sys}
	sys.Sender = sender

	completion, err := sys.SendUnicast(1, IpiRpc{Kind: KindVMemInval})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() { completion.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion never signalled")
	}
}

func TestSendUnicast_MailboxBusyUntilCleared(t *testing.T) {
	sys := NewSystem([]isa.LpID{0}, &blockingSender{})

	_, err := sys.SendUnicast(0, IpiRpc{Kind: KindWake})
	require.NoError(t, err)

	_, err = sys.SendUnicast(0, IpiRpc{Kind: KindWake})
	require.ErrorIs(t, err, ErrMailboxBusy)

	sys.ReceiveUnicast(0, noopHandler{})

	_, err = sys.SendUnicast(0, IpiRpc{Kind: KindWake})
	require.NoError(t, err)
}

type blockingSender struct{}

func (blockingSender) SendIPI(isa.LpID, Vector) error { return nil }

func TestSendMulticast_AllOrNothing_RevertsOnBusy(t *testing.T) {
	sys := NewSystem([]isa.LpID{0, 1, 2}, &blockingSender{})

	// Occupy LP 2's multicast slot directly to force a mid-way failure.
	mb := sys.mailboxes[2]
	occupying := &IpiRpcReq{Op: IpiRpc{Kind: KindWake}, Completion: newCompletion(1)}
	require.True(t, mb.multicast.CompareAndSwap(nil, occupying))

	_, err := sys.SendMulticast([]isa.LpID{0, 1, 2}, IpiRpc{Kind: KindAsidInval})
	require.ErrorIs(t, err, ErrMailboxBusy)

	// LP 0 and 1's slots must have been reverted to nil.
	require.Nil(t, sys.mailboxes[0].multicast.Load())
	require.Nil(t, sys.mailboxes[1].multicast.Load())
}

// TestMulticast_OverlappingSendersDoNotDeadlock exercises the ascending-
// order CAS/send discipline: two senders targeting overlapping LP sets
// in different orders must not deadlock, since both normalize to the
// same ascending order before acting.
func TestMulticast_OverlappingSendersDoNotDeadlock(t *testing.T) {
	sys := NewSystem([]isa.LpID{0, 1, 2, 3}, nil)
	sender := &recordingSender{sys: sys}
	sys.Sender = sender

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := sys.SendMulticast([]isa.LpID{3, 1, 0}, IpiRpc{Kind: KindVMemInval})
		results[0] = err
	}()
	go func() {
		defer wg.Done()
		_, err := sys.SendMulticast([]isa.LpID{0, 2, 1}, IpiRpc{Kind: KindVMemInval})
		results[1] = err
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overlapping multicast senders deadlocked")
	}
}

func TestSendBroadcast_FiresEveryLP(t *testing.T) {
	sys := NewSystem([]isa.LpID{0, 1, 2}, nil)
	sender := &recordingSender{sys: sys}
	sys.Sender = sender

	completion, err := sys.SendBroadcast(IpiRpc{Kind: KindTerminateThreads})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() { completion.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast completion never signalled")
	}

	sender.mu.Lock()
	require.Len(t, sender.sent, 3)
	sender.mu.Unlock()
}

func TestRingQueue_FixedCapacity(t *testing.T) {
	q := NewRingQueue(2)
	require.NoError(t, q.Push(&IpiRpcReq{}))
	require.NoError(t, q.Push(&IpiRpcReq{}))
	require.ErrorIs(t, q.Push(&IpiRpcReq{}), ErrRingQueueFull)

	_, err := q.Pop()
	require.NoError(t, err)
	require.NoError(t, q.Push(&IpiRpcReq{}))

	require.Equal(t, 2, q.Len())
	require.Equal(t, 2, q.Cap())
}

func TestRingQueue_PopEmptyFails(t *testing.T) {
	q := NewRingQueue(1)
	_, err := q.Pop()
	require.ErrorIs(t, err, ErrRingQueueEmpty)
}
