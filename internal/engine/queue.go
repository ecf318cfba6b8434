package engine

import "sync"

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeBid represents a bid intent from a participant.
	EventTypeBid EventType = iota + 1
	// EventTypeCommand represents an admin command.
	EventTypeCommand
	// EventTypeTimer represents a timer expiry re-entering the loop.
	EventTypeTimer
)

// Event wraps bids, admin commands, and timer firings for the event
// queue. Exactly one payload field is set per event.
type Event struct {
	Type    EventType
	Bid     *bidIntent
	Command *command
	Timer   *timerFired
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that a burst of near-simultaneous bids never
// blocks a submitter; admission ordering is decided by queue position.
//
// Thread-safety is provided for external enqueuing (gateway handlers,
// timer callbacks) while the Engine's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the Event's pointers (Bid, Command, Timer) can
	// be collected; the underlying array otherwise retains them until
	// reallocation.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		// Last element - reset to empty slice with original capacity
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// closedAndDrained reports whether Close was called and every queued
// event has been dequeued. An empty queue alone proves nothing: the
// coalesced signal can outlive the event it announced when the consumer
// dequeued it directly.
func (q *eventQueue) closedAndDrained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
