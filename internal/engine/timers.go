package engine

import (
	"sort"
	"sync"
	"time"
)

// timerName identifies one of the engine's named countdown timers.
type timerName string

const (
	// timerIdle settles a lot Unsold when no first bid arrives.
	timerIdle timerName = "idle"
	// timerExtension settles a lot Sold; re-armed on every accepted bid.
	timerExtension timerName = "extension"
	// timerGap delays the next announcement after a settlement.
	timerGap timerName = "gap"
	// timerCooldown blocks manual sales right after a bid; its expiry is
	// a no-op, only remaining() matters.
	timerCooldown timerName = "cooldown"
)

// timerFired is the event payload a timer delivers into the loop.
// Gen is the lot generation at arming time; the loop drops firings whose
// generation no longer matches, which covers the race between a timer
// that already fired and a cancellation.
type timerFired struct {
	Name timerName
	Gen  int64
}

// Timer is a handle to a pending callback.
type Timer interface {
	// Stop prevents the callback from firing. Returns false if it
	// already fired or was stopped.
	Stop() bool
}

// Timekeeper abstracts monotonic time and deferred callbacks so tests
// can drive the engine deterministically.
// Implemented by SystemTimekeeper (production) and ManualTimekeeper
// (tests).
type Timekeeper interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemTimekeeper delegates to the time package. Go timers are
// monotonic-clock based, immune to wall-clock adjustment.
type SystemTimekeeper struct{}

func (SystemTimekeeper) Now() time.Time { return time.Now() }

func (SystemTimekeeper) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// armedTimer tracks one named countdown.
type armedTimer struct {
	timer    Timer
	deadline time.Time
	gen      int64
	// frozen holds the remaining duration while paused; nil otherwise.
	frozen *time.Duration
}

// timerSet owns the engine's named timers.
//
// All methods are called exclusively from the Run loop goroutine, so no
// locking is needed; the AfterFunc callback only enqueues an event,
// which is thread-safe on its own.
type timerSet struct {
	tk     Timekeeper
	fire   func(timerFired)
	active map[timerName]*armedTimer
}

func newTimerSet(tk Timekeeper, fire func(timerFired)) *timerSet {
	return &timerSet{
		tk:     tk,
		fire:   fire,
		active: make(map[timerName]*armedTimer),
	}
}

// arm starts (or replaces) a named timer. The generation is captured at
// arming time and travels with the expiry event.
func (ts *timerSet) arm(name timerName, d time.Duration, gen int64) {
	ts.cancel(name)
	ts.active[name] = &armedTimer{
		timer:    ts.tk.AfterFunc(d, func() { ts.fire(timerFired{Name: name, Gen: gen}) }),
		deadline: ts.tk.Now().Add(d),
		gen:      gen,
	}
}

// cancel stops a named timer if armed. An already-fired timer's event
// is filtered by generation instead.
func (ts *timerSet) cancel(name timerName) {
	if at, ok := ts.active[name]; ok {
		if at.timer != nil {
			at.timer.Stop()
		}
		delete(ts.active, name)
	}
}

func (ts *timerSet) cancelAll() {
	for name := range ts.active {
		ts.cancel(name)
	}
}

// expired drops the bookkeeping for a timer whose event is being
// processed. Returns false for stale firings (generation mismatch or
// timer re-armed since).
func (ts *timerSet) expired(f timerFired) bool {
	at, ok := ts.active[f.Name]
	if !ok || at.gen != f.Gen {
		return false
	}
	delete(ts.active, f.Name)
	return true
}

// remaining returns the time left on a named timer, or zero if it is
// not armed.
func (ts *timerSet) remaining(name timerName) time.Duration {
	at, ok := ts.active[name]
	if !ok {
		return 0
	}
	if at.frozen != nil {
		return *at.frozen
	}
	r := at.deadline.Sub(ts.tk.Now())
	if r < 0 {
		return 0
	}
	return r
}

// deadline returns the expiry instant of a named timer and whether it
// is armed. While paused the deadline is the frozen remaining duration
// projected from now.
func (ts *timerSet) deadline(name timerName) (time.Time, bool) {
	at, ok := ts.active[name]
	if !ok {
		return time.Time{}, false
	}
	if at.frozen != nil {
		return ts.tk.Now().Add(*at.frozen), true
	}
	return at.deadline, true
}

// pauseAll freezes every armed timer's remaining duration.
func (ts *timerSet) pauseAll() {
	for _, at := range ts.active {
		if at.frozen != nil {
			continue
		}
		r := at.deadline.Sub(ts.tk.Now())
		if r < 0 {
			r = 0
		}
		at.frozen = &r
		if at.timer != nil {
			at.timer.Stop()
			at.timer = nil
		}
	}
}

// resumeAll re-arms every frozen timer with its remaining duration.
func (ts *timerSet) resumeAll() {
	for name, at := range ts.active {
		if at.frozen == nil {
			continue
		}
		d := *at.frozen
		at.frozen = nil
		at.deadline = ts.tk.Now().Add(d)
		n, g := name, at.gen
		at.timer = ts.tk.AfterFunc(d, func() { ts.fire(timerFired{Name: n, Gen: g}) })
	}
}

// ManualTimekeeper is a deterministic Timekeeper for tests. Time only
// moves when Advance is called; due callbacks run synchronously in
// deadline order before Advance returns.
//
// Thread-safety: safe for concurrent use via internal mutex; callbacks
// run without the mutex held so they may schedule further timers.
type ManualTimekeeper struct {
	mu      sync.Mutex
	now     time.Time
	pending []*manualTimer
}

type manualTimer struct {
	tk       *ManualTimekeeper
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func (t *manualTimer) Stop() bool {
	t.tk.mu.Lock()
	defer t.tk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewManualTimekeeper starts the clock at the given instant.
func NewManualTimekeeper(start time.Time) *ManualTimekeeper {
	return &ManualTimekeeper{now: start}
}

func (m *ManualTimekeeper) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualTimekeeper) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{tk: m, deadline: m.now.Add(d), f: f}
	m.pending = append(m.pending, t)
	return t
}

// Advance moves the clock forward and fires every due callback in
// deadline order.
func (m *ManualTimekeeper) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// popDue advances the clock to the earliest due timer at or before
// target and returns it, or nil when none remain.
func (m *ManualTimekeeper) popDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due *manualTimer
	idx := -1
	for i, t := range m.pending {
		if t.stopped || t.deadline.After(target) {
			continue
		}
		if due == nil || t.deadline.Before(due.deadline) {
			due, idx = t, i
		}
	}
	if due == nil {
		// Drop stopped timers while we are here.
		kept := m.pending[:0]
		for _, t := range m.pending {
			if !t.stopped && !t.fired {
				kept = append(kept, t)
			}
		}
		m.pending = kept
		return nil
	}

	due.fired = true
	m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
	if due.deadline.After(m.now) {
		m.now = due.deadline
	}
	return due
}

// pendingDeadlines lists armed deadlines in order; test helper.
func (m *ManualTimekeeper) pendingDeadlines() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, t := range m.pending {
		if !t.stopped {
			out = append(out, t.deadline)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
