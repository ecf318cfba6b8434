package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
	"github.com/SubratDash67/iplauctionbot/internal/store"
)

// handleTimer processes a timer expiry. Stale firings - a timer that
// raced its own cancellation, or one armed for an earlier lot
// generation - are dropped here; cancellation alone cannot be trusted.
// Called only from the Run goroutine.
func (e *Engine) handleTimer(ctx context.Context, f timerFired) {
	// Status is checked before the firing is consumed: a callback that
	// raced a pause must keep its frozen bookkeeping so resume can
	// re-arm it instead of losing the countdown.
	if e.status != auction.StatusRunning || e.failed {
		return
	}
	if !e.timers.expired(f) {
		slog.Debug("stale timer dropped", "timer", f.Name, "gen", f.Gen)
		return
	}

	switch f.Name {
	case timerIdle:
		// No first bid arrived: the lot passes unsold.
		if e.lot != nil {
			e.settleUnsold(ctx, auction.TriggerTimeout)
		}

	case timerExtension:
		// The extension window closed with a standing high bid.
		if e.lot == nil || e.lot.highBid == nil {
			slog.Error("extension expired without a high bid", "gen", f.Gen)
			return
		}
		e.settleSold(ctx, auction.TriggerTimeout, e.lot.highBid.Team, e.lot.highBid.Amount)

	case timerGap:
		e.announceNext(ctx)

	case timerCooldown:
		// Bookkeeping only; soldTo checks remaining() before this fires.
	}
}

// announceNext puts the next pending player on the block, arming the
// idle countdown. An exhausted rotation completes the session back to
// idle.
// Called only from the Run goroutine.
func (e *Engine) announceNext(ctx context.Context) {
	player, err := e.store.NextPending(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Info("rotation exhausted; session complete")
			e.finishSession(ctx, NoticeCompleted, auction.StatusIdle)
			return
		}
		slog.Error("announce: next pending failed", "error", err)
		return
	}

	if err := e.store.TakeLive(ctx, player.ID); err != nil {
		slog.Error("announce: take live failed", "error", err, "player", player.Name)
		return
	}

	e.lotGen++
	e.lot = &lotState{
		player: player,
		phase:  auction.PhaseAwaitingFirstBid,
		gen:    e.lotGen,
	}
	e.timers.arm(timerIdle, e.cfg.IdleTimeout, e.lotGen)

	slog.Info("lot announced",
		"player", player.Name,
		"list", player.List,
		"base_price", player.BasePrice,
		"gen", e.lotGen,
	)
	e.publish(Notice{
		Kind:   NoticeLotAnnounced,
		Player: player.Name,
		Amount: player.BasePrice,
	})
}

// settleSold commits a sale as one atomic unit: settlement append,
// purse debit, squad credit. On success the rollback buffer holds the
// sale's inverse and the gap countdown starts.
// Called only from the Run goroutine.
func (e *Engine) settleSold(ctx context.Context, trigger auction.Trigger, team string, price int64) {
	lot := e.lot
	st := auction.Settlement{
		ID:        e.ids.Generate(),
		PlayerID:  lot.player.ID,
		Player:    lot.player.Name,
		Outcome:   auction.OutcomeSold,
		Team:      team,
		Price:     price,
		Trigger:   trigger,
		Seq:       e.clock.Next(),
		SettledAt: e.tk.Now(),
	}

	if !e.persistSettlement(ctx, st, func() error {
		return e.store.SettleSold(ctx, st)
	}) {
		return
	}

	// Remember the bid to restore if this sale is rolled back: the last
	// accepted bid not by the final clinching one. A manual sale keeps
	// the full standing high bid as prior.
	undo := &undoSlot{settlement: st}
	switch {
	case trigger == auction.TriggerAdmin && lot.highBid != nil:
		b := *lot.highBid
		undo.priorBid = &b
	case len(lot.bids) >= 2:
		b := lot.bids[len(lot.bids)-2]
		undo.priorBid = &b
	}
	e.undo = undo

	e.closeLot(ctx)

	slog.Info("lot sold",
		"player", st.Player,
		"team", st.Team,
		"price", st.Price,
		"trigger", st.Trigger,
		"seq", st.Seq,
	)
	e.publish(Notice{
		Kind:    NoticeSold,
		Seq:     st.Seq,
		Player:  st.Player,
		Team:    st.Team,
		Amount:  st.Price,
		Trigger: st.Trigger,
	})
}

// settleUnsold records a lot passing unsold and starts the gap
// countdown. Unsold settlements are not rollback targets, so the undo
// buffer is cleared.
// Called only from the Run goroutine.
func (e *Engine) settleUnsold(ctx context.Context, trigger auction.Trigger) {
	lot := e.lot
	st := auction.Settlement{
		ID:        e.ids.Generate(),
		PlayerID:  lot.player.ID,
		Player:    lot.player.Name,
		Outcome:   auction.OutcomeUnsold,
		Trigger:   trigger,
		Seq:       e.clock.Next(),
		SettledAt: e.tk.Now(),
	}

	if !e.persistSettlement(ctx, st, func() error {
		return e.store.SettleUnsold(ctx, st)
	}) {
		return
	}

	e.undo = nil
	e.closeLot(ctx)

	slog.Info("lot unsold",
		"player", st.Player,
		"trigger", st.Trigger,
		"seq", st.Seq,
	)
	e.publish(Notice{
		Kind:    NoticeUnsold,
		Seq:     st.Seq,
		Player:  st.Player,
		Trigger: st.Trigger,
	})
}

// persistSettlement retries the durable write a bounded number of
// times. A settlement is not committed until persisted: on exhaustion
// the session is marked failed and only stop is accepted, rather than
// reporting success on an unpersisted sale. Returns true on success.
func (e *Engine) persistSettlement(ctx context.Context, st auction.Settlement, write func() error) bool {
	var err error
	for attempt := 1; attempt <= settleRetries; attempt++ {
		err = write()
		if err == nil {
			return true
		}
		if errors.Is(err, store.ErrInsufficientPurse) {
			// Admission validated the purse; reaching here is an
			// invariant violation. The event is discarded and the lot
			// stays open.
			slog.Error("settlement invariant violation",
				"error", err,
				"settlement", st.ID,
				"player", st.Player,
			)
			e.reopenAfterFailedSettle()
			return false
		}
		slog.Warn("settlement write failed",
			"error", err,
			"attempt", attempt,
			"settlement", st.ID,
		)
	}

	e.failed = true
	e.timers.cancelAll()
	slog.Error("settlement could not be persisted; session failed",
		"error", err,
		"settlement", st.ID,
		"player", st.Player,
	)
	e.publish(Notice{
		Kind:    NoticeSessionFailed,
		Player:  st.Player,
		Message: "settlement write failed; session requires stop",
	})
	return false
}

// reopenAfterFailedSettle re-arms the appropriate countdown so the lot
// keeps running after a discarded settlement attempt.
func (e *Engine) reopenAfterFailedSettle() {
	if e.lot == nil {
		return
	}
	if e.lot.phase == auction.PhaseOpenBidding {
		e.timers.arm(timerExtension, e.extension, e.lot.gen)
	} else {
		e.timers.arm(timerIdle, e.cfg.IdleTimeout, e.lot.gen)
	}
}

// closeLot takes the settled lot off the block and starts the gap
// countdown toward the next announcement.
func (e *Engine) closeLot(ctx context.Context) {
	e.lot = nil
	e.timers.cancel(timerIdle)
	e.timers.cancel(timerExtension)
	e.timers.cancel(timerCooldown)
	e.lotGen++
	e.timers.arm(timerGap, e.cfg.GapTimeout, e.lotGen)
}

// rollback undoes the single most recent sale. Valid only while the
// undo buffer is intact - before any new bid, settlement, or other
// mutating event. The sold lot reopens with its prior high bid
// restored, or awaiting a first bid if the rolled-back bid was the
// only one; a lot already announced after the sale returns to the
// front of its list.
// Called only from the Run goroutine.
func (e *Engine) rollback(ctx context.Context) error {
	if e.undo == nil {
		return newError(ErrCodeNothingToRollback, "no settlement eligible for rollback")
	}
	undo := e.undo

	// A freshly announced next lot steps aside for the reopened one.
	// The undo buffer's presence guarantees it has no bids.
	if e.lot != nil {
		if err := e.store.ReturnLive(ctx, e.lot.player.ID); err != nil {
			return newError(ErrCodeInternal, "rollback: return announced lot: %v", err)
		}
		e.lot = nil
	}

	if err := e.store.RollbackSettlement(ctx, undo.settlement.ID, auction.PlayerLive, true); err != nil {
		return newError(ErrCodeInternal, "rollback: %v", err)
	}

	player, err := e.store.GetPlayer(ctx, undo.settlement.PlayerID)
	if err != nil {
		return newError(ErrCodeInternal, "rollback: reload player: %v", err)
	}

	e.lotGen++
	lot := &lotState{player: player, gen: e.lotGen}
	if undo.priorBid != nil {
		lot.bids = []auction.Bid{*undo.priorBid}
		lot.highBid = &lot.bids[0]
		lot.phase = auction.PhaseOpenBidding
		e.timers.arm(timerExtension, e.extension, e.lotGen)
	} else {
		lot.phase = auction.PhaseAwaitingFirstBid
		e.timers.arm(timerIdle, e.cfg.IdleTimeout, e.lotGen)
	}
	e.timers.cancel(timerGap)
	// Rollback is allowed while paused; the reopened lot's countdowns
	// must freeze like every other timer until resume.
	if e.status == auction.StatusPaused {
		e.timers.pauseAll()
	}
	e.lot = lot
	e.undo = nil

	slog.Info("sale rolled back",
		"player", undo.settlement.Player,
		"team", undo.settlement.Team,
		"price", undo.settlement.Price,
	)
	e.publish(Notice{
		Kind:   NoticeRolledBack,
		Player: undo.settlement.Player,
		Team:   undo.settlement.Team,
		Amount: undo.settlement.Price,
	})
	return nil
}

// finishSession cancels everything and parks the session in the given
// terminal status, persisting it.
func (e *Engine) finishSession(ctx context.Context, kind NoticeKind, status auction.SessionStatus) {
	e.timers.cancelAll()
	e.lot = nil
	e.undo = nil
	e.status = status
	if err := e.store.SetSessionStatus(ctx, status); err != nil {
		slog.Error("persist session status failed", "error", err, "status", status)
	}
	e.publish(Notice{Kind: kind})
}
