package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bidEvent(userID string) Event {
	return Event{Type: EventTypeBid, Bid: &bidIntent{userID: userID}}
}

func TestQueueFIFO(t *testing.T) {
	q := newEventQueue()

	require.True(t, q.Enqueue(bidEvent("a")))
	require.True(t, q.Enqueue(bidEvent("b")))
	require.Equal(t, 2, q.Len())

	e, ok := q.TryDequeue()
	require.True(t, ok)
	require.Equal(t, "a", e.Bid.userID)
	e, ok = q.TryDequeue()
	require.True(t, ok)
	require.Equal(t, "b", e.Bid.userID)

	_, ok = q.TryDequeue()
	require.False(t, ok)
	require.Zero(t, q.Len())
}

func TestQueueWaitSignals(t *testing.T) {
	q := newEventQueue()

	select {
	case <-q.Wait():
		t.Fatal("signal on empty queue")
	default:
	}

	q.Enqueue(bidEvent("a"))
	select {
	case <-q.Wait():
	default:
		t.Fatal("no signal after enqueue")
	}
}

func TestQueueCloseRejectsEnqueue(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(bidEvent("a"))
	q.Close()

	require.False(t, q.Enqueue(bidEvent("b")))

	// Already-queued events stay drainable after close.
	e, ok := q.TryDequeue()
	require.True(t, ok)
	require.Equal(t, "a", e.Bid.userID)
	_, ok = q.TryDequeue()
	require.False(t, ok)
}

func TestQueueStaleSignalIsNotAClose(t *testing.T) {
	q := newEventQueue()

	// The consumer takes the event directly; the coalesced wake-up
	// signal stays behind.
	require.True(t, q.Enqueue(bidEvent("a")))
	_, ok := q.TryDequeue()
	require.True(t, ok)

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a leftover wake-up signal")
	}

	// An empty, open queue with a stale signal must not read as done.
	require.False(t, q.closedAndDrained())

	q.Close()
	require.True(t, q.closedAndDrained())
}

func TestClockMonotonic(t *testing.T) {
	c := NewClockAt(41)
	require.Equal(t, int64(41), c.Current())
	require.Equal(t, int64(42), c.Next())
	require.Equal(t, int64(43), c.Next())
	require.Equal(t, int64(43), c.Current())
}
