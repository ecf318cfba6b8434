// Package engine implements the auction state machine: a single-writer
// event loop that consumes bid intents, admin commands, and timer
// expirations in arrival order and is the sole mutator of the purse,
// bid, and settlement ledgers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
	"github.com/SubratDash67/iplauctionbot/internal/config"
	"github.com/SubratDash67/iplauctionbot/internal/store"
)

// lotState is the loop-owned state of the lot on the block.
type lotState struct {
	player  auction.Player
	phase   auction.LotPhase
	highBid *auction.Bid
	// bids holds this lot's accepted bids in order; the last entry is
	// highBid. Needed to restore the prior bid on rollback.
	bids []auction.Bid
	gen  int64
}

// undoSlot is the one-slot rollback buffer: the inverse of the last
// committed sale. It is overwritten by the next settlement and cleared
// by any other mutating event (new bid, skip, purse set, stop).
type undoSlot struct {
	settlement auction.Settlement
	// priorBid is the high bid to restore when the lot reopens, or nil
	// if the rolled-back winning bid was the only one.
	priorBid *auction.Bid
}

// settleRetries bounds durable-write attempts for a settlement before
// the session is marked failed.
const settleRetries = 3

// Engine is the single-writer auction event loop.
//
// All intents (bids, admin commands) and timer expirations enter one
// FIFO queue and are processed serially by Run. Every mutation for one
// event completes before the next event is looked at, so two bids are
// never both "highest" and a timer can never fire into a lot that
// already settled.
//
// Thread-safety model:
//   - SubmitBid and the admin methods: safe from any goroutine; they
//     enqueue an event and wait for the loop's reply.
//   - Snapshot, Subscribe: safe from any goroutine.
//   - Run: must be called from exactly one goroutine.
type Engine struct {
	store  *store.Store
	cfg    *config.Config
	clock  *Clock
	queue  *eventQueue
	ids    IDGenerator
	tk     Timekeeper
	timers *timerSet
	hub    *noticeHub
	snap   atomic.Pointer[Snapshot]

	// Loop-owned state. Only the Run goroutine reads or writes these.
	status    auction.SessionStatus
	lot       *lotState
	lotGen    int64
	undo      *undoSlot
	failed    bool
	extension time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimekeeper substitutes the time source. Tests pass a
// ManualTimekeeper to drive deadlines deterministically.
func WithTimekeeper(tk Timekeeper) Option {
	return func(e *Engine) { e.tk = tk }
}

// WithIDGenerator substitutes the record ID source. Tests pass a
// FixedGenerator or SeqGenerator for stable ledger IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// New creates an Engine bound to a store and configuration.
//
// New performs startup recovery: teams are seeded, the session is
// forced back to idle with any interrupted lot returned to the front of
// its list, and the logical clock resumes from the highest persisted
// seq. Timers and the rollback buffer are process-local and always
// start empty.
func New(ctx context.Context, s *store.Store, cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:     s,
		cfg:       cfg,
		queue:     newEventQueue(),
		ids:       UUIDv7Generator{},
		tk:        SystemTimekeeper{},
		hub:       newNoticeHub(),
		status:    auction.StatusIdle,
		extension: cfg.ExtensionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.timers = newTimerSet(e.tk, func(f timerFired) {
		e.queue.Enqueue(Event{Type: EventTypeTimer, Timer: &f})
	})

	if err := s.SeedTeams(ctx, cfg.Teams); err != nil {
		return nil, fmt.Errorf("engine init: %w", err)
	}

	report, err := s.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine init: %w", err)
	}
	if report.RequeuedPlayerID != 0 {
		slog.Info("recovered interrupted lot",
			"player_id", report.RequeuedPlayerID,
			"prior_status", report.PriorStatus,
		)
	}

	lastSeq, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine init: %w", err)
	}
	e.clock = NewClockAt(lastSeq)

	e.refreshSnapshot(ctx)
	return e, nil
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Close() is called.
//
// Must be called from exactly ONE goroutine. All ledger writes, timer
// arming, and state transitions happen in this goroutine.
//
// ERROR HANDLING: rejections are replied to the submitter; internal
// failures are logged with full event context and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "seq", e.clock.Current())

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.processEvent(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.timers.cancelAll()
			e.hub.closeAll()
			return ctx.Err()

		case <-e.queue.Wait():
			// Signal received - loop back to TryDequeue. The signal
			// channel closes when the queue is closed, which makes this
			// case fire immediately. A stale coalesced signal from an
			// event already taken via TryDequeue must not read as a
			// close, so the queue itself is asked.
			if e.queue.closedAndDrained() {
				slog.Info("engine stopping: queue closed")
				e.timers.cancelAll()
				e.hub.closeAll()
				return nil
			}
		}
	}
}

// Close shuts the engine down. Pending events drain; Run then returns.
func (e *Engine) Close() {
	e.queue.Close()
}

// processEvent routes an event to its handler and publishes a fresh
// snapshot. Called only from the Run goroutine.
func (e *Engine) processEvent(ctx context.Context, event Event) {
	switch event.Type {
	case EventTypeBid:
		if event.Bid == nil {
			slog.Error("bid event missing payload")
			return
		}
		e.handleBid(ctx, event.Bid)

	case EventTypeCommand:
		if event.Command == nil {
			slog.Error("command event missing payload")
			return
		}
		e.handleCommand(ctx, event.Command)

	case EventTypeTimer:
		if event.Timer == nil {
			slog.Error("timer event missing payload")
			return
		}
		e.handleTimer(ctx, *event.Timer)

	default:
		slog.Error("unknown event type", "type", event.Type)
	}

	e.refreshSnapshot(ctx)
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the current number of pending events.
// Useful for monitoring and testing.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Subscribe registers an observer for engine notices. Delivery is
// best-effort per subscriber; cancel when done.
func (e *Engine) Subscribe(buffer int) (<-chan Notice, func()) {
	return e.hub.subscribe(buffer)
}

// publish stamps and broadcasts a notice. Loop goroutine only.
func (e *Engine) publish(n Notice) {
	n.At = e.tk.Now()
	e.hub.publish(n)
}

// History returns the most recent limit accepted bids, newest first.
// Read-only; never mutates state.
func (e *Engine) History(ctx context.Context, limit int) ([]auction.Bid, error) {
	return e.store.RecentBids(ctx, limit)
}

// Squad returns a team's current roster in purchase order.
func (e *Engine) Squad(ctx context.Context, team string) ([]auction.SquadEntry, error) {
	return e.store.TeamSquad(ctx, team)
}

// Purses returns all teams with their remaining purses.
func (e *Engine) Purses(ctx context.Context) ([]auction.Team, error) {
	return e.store.ListTeams(ctx)
}

// Settlements returns the full audit log in sequence order.
func (e *Engine) Settlements(ctx context.Context) ([]auction.Settlement, error) {
	return e.store.Settlements(ctx)
}
