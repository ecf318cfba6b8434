package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// LotSnapshot is the read-only view of the lot currently on the block.
type LotSnapshot struct {
	Player auction.Player
	Phase  auction.LotPhase
	// HighBid is nil while awaiting the first bid.
	HighBid *auction.Bid
	// Deadline is when the active countdown (idle or extension) expires.
	// Zero while paused-with-no-timer or if no countdown is armed.
	Deadline time.Time
}

// Snapshot is an immutable view of session state taken under the
// engine's serialization point. Callers never see a half-applied event.
type Snapshot struct {
	Status auction.SessionStatus
	// Lot is nil when nothing is on the block (idle, gap, stopped).
	Lot          *LotSnapshot
	PendingCount int
	// Seq is the logical clock position at snapshot time.
	Seq int64
	// Failed is true after a settlement failed to persist; only stop is
	// accepted.
	Failed bool
}

// Snapshot returns the latest published state. Safe from any goroutine;
// repeated calls never mutate state.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// refreshSnapshot publishes the current loop state. Called at the end
// of every processed event from the Run goroutine.
func (e *Engine) refreshSnapshot(ctx context.Context) {
	snap := &Snapshot{
		Status: e.status,
		Seq:    e.clock.Current(),
		Failed: e.failed,
	}

	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		slog.Error("snapshot: count pending failed", "error", err)
	}
	snap.PendingCount = pending

	if e.lot != nil {
		ls := &LotSnapshot{
			Player: e.lot.player,
			Phase:  e.lot.phase,
		}
		if e.lot.highBid != nil {
			b := *e.lot.highBid
			ls.HighBid = &b
		}
		name := timerIdle
		if e.lot.phase == auction.PhaseOpenBidding {
			name = timerExtension
		}
		if deadline, ok := e.timers.deadline(name); ok {
			ls.Deadline = deadline
		}
		snap.Lot = ls
	}

	e.snap.Store(snap)
}
