package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func manualStart() time.Time {
	return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func TestManualTimekeeperFiresInDeadlineOrder(t *testing.T) {
	tk := NewManualTimekeeper(manualStart())

	var order []string
	tk.AfterFunc(30*time.Second, func() { order = append(order, "c") })
	tk.AfterFunc(10*time.Second, func() { order = append(order, "a") })
	tk.AfterFunc(20*time.Second, func() { order = append(order, "b") })

	tk.Advance(25 * time.Second)
	require.Equal(t, []string{"a", "b"}, order)
	require.Equal(t, manualStart().Add(25*time.Second), tk.Now())

	require.Equal(t, []time.Time{manualStart().Add(30 * time.Second)}, tk.pendingDeadlines())

	tk.Advance(5 * time.Second)
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Empty(t, tk.pendingDeadlines())
}

func TestManualTimekeeperStop(t *testing.T) {
	tk := NewManualTimekeeper(manualStart())

	fired := false
	timer := tk.AfterFunc(10*time.Second, func() { fired = true })
	require.True(t, timer.Stop())
	require.False(t, timer.Stop())

	tk.Advance(time.Minute)
	require.False(t, fired)
}

func TestManualTimekeeperCallbackSchedulesTimer(t *testing.T) {
	tk := NewManualTimekeeper(manualStart())

	var fired []string
	tk.AfterFunc(10*time.Second, func() {
		fired = append(fired, "first")
		// Chained from inside the callback, due within the same advance.
		tk.AfterFunc(5*time.Second, func() { fired = append(fired, "second") })
	})

	tk.Advance(20 * time.Second)
	require.Equal(t, []string{"first", "second"}, fired)
}

func TestTimerSetStaleGeneration(t *testing.T) {
	tk := NewManualTimekeeper(manualStart())
	var events []timerFired
	ts := newTimerSet(tk, func(f timerFired) { events = append(events, f) })

	ts.arm(timerIdle, 10*time.Second, 1)
	tk.Advance(10 * time.Second)
	require.Len(t, events, 1)

	// Re-armed under a newer generation before the old event is handled:
	// the old firing is stale.
	ts.arm(timerIdle, 10*time.Second, 2)
	require.False(t, ts.expired(events[0]))
	require.Equal(t, 10*time.Second, ts.remaining(timerIdle))

	tk.Advance(10 * time.Second)
	require.Len(t, events, 2)
	require.True(t, ts.expired(events[1]))
	// Consumed: a replayed event is stale too.
	require.False(t, ts.expired(events[1]))
	require.Zero(t, ts.remaining(timerIdle))
}

func TestTimerSetCancelPreventsFiring(t *testing.T) {
	tk := NewManualTimekeeper(manualStart())
	var events []timerFired
	ts := newTimerSet(tk, func(f timerFired) { events = append(events, f) })

	ts.arm(timerGap, 20*time.Second, 1)
	ts.cancel(timerGap)
	tk.Advance(time.Minute)
	require.Empty(t, events)
	require.Zero(t, ts.remaining(timerGap))

	_, ok := ts.deadline(timerGap)
	require.False(t, ok)
}

func TestTimerSetPauseResume(t *testing.T) {
	tk := NewManualTimekeeper(manualStart())
	var events []timerFired
	ts := newTimerSet(tk, func(f timerFired) { events = append(events, f) })

	ts.arm(timerExtension, 120*time.Second, 7)
	tk.Advance(100 * time.Second)
	require.Equal(t, 20*time.Second, ts.remaining(timerExtension))

	ts.pauseAll()
	tk.Advance(time.Hour)
	require.Empty(t, events)
	require.Equal(t, 20*time.Second, ts.remaining(timerExtension))

	// The reported deadline projects the frozen remainder from now.
	deadline, ok := ts.deadline(timerExtension)
	require.True(t, ok)
	require.Equal(t, tk.Now().Add(20*time.Second), deadline)

	ts.resumeAll()
	tk.Advance(19 * time.Second)
	require.Empty(t, events)
	tk.Advance(time.Second)
	require.Len(t, events, 1)
	require.Equal(t, timerFired{Name: timerExtension, Gen: 7}, events[0])
	require.True(t, ts.expired(events[0]))
}

func TestTimerSetArmReplaces(t *testing.T) {
	tk := NewManualTimekeeper(manualStart())
	var events []timerFired
	ts := newTimerSet(tk, func(f timerFired) { events = append(events, f) })

	// Sliding window: each re-arm pushes the deadline out.
	ts.arm(timerExtension, 120*time.Second, 1)
	tk.Advance(100 * time.Second)
	ts.arm(timerExtension, 120*time.Second, 1)
	tk.Advance(119 * time.Second)
	require.Empty(t, events)
	tk.Advance(time.Second)
	require.Len(t, events, 1)
}
