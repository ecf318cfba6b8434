package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// bidIntent carries one bid submission into the loop.
type bidIntent struct {
	userID string
	// amount is the bid in rupees; zero means "minimum raise", i.e. the
	// lot's base price for a first bid or high bid plus increment after.
	amount int64
	reply  chan bidOutcome
}

type bidOutcome struct {
	bid auction.Bid
	err error
}

// SubmitBid submits a bid on the live lot for the team the user is
// registered to. A zero amount bids the current minimum.
//
// Safe from any goroutine. The returned bid is the accepted ledger
// record; a rejection comes back as an *EngineError with the concrete
// reason (minimum amount, remaining cooldown, and so on) and no state
// change.
func (e *Engine) SubmitBid(ctx context.Context, userID string, amount int64) (auction.Bid, error) {
	intent := &bidIntent{
		userID: userID,
		amount: amount,
		reply:  make(chan bidOutcome, 1),
	}
	if !e.queue.Enqueue(Event{Type: EventTypeBid, Bid: intent}) {
		return auction.Bid{}, newError(ErrCodeStopped, "engine stopped")
	}
	select {
	case out := <-intent.reply:
		return out.bid, out.err
	case <-ctx.Done():
		return auction.Bid{}, ctx.Err()
	}
}

// handleBid is the admission path. Validation order per the state
// machine: lifecycle, live lot, registration, amount, purse. Any
// failure rejects with no side effects.
// Called only from the Run goroutine.
func (e *Engine) handleBid(ctx context.Context, intent *bidIntent) {
	bid, err := e.admitBid(ctx, intent)
	if err != nil {
		if !IsRejection(err) {
			slog.Error("bid processing failed",
				"error", err,
				"user", intent.userID,
				"amount", intent.amount,
			)
		}
		intent.reply <- bidOutcome{err: err}
		return
	}
	intent.reply <- bidOutcome{bid: bid}
}

func (e *Engine) admitBid(ctx context.Context, intent *bidIntent) (auction.Bid, error) {
	if e.failed {
		return auction.Bid{}, newError(ErrCodeSessionFailed, "session failed; awaiting stop")
	}
	switch e.status {
	case auction.StatusRunning:
	case auction.StatusPaused:
		return auction.Bid{}, newError(ErrCodePaused, "auction is paused")
	default:
		return auction.Bid{}, newError(ErrCodeNotRunning, "auction is not running")
	}
	if e.lot == nil {
		return auction.Bid{}, newError(ErrCodeNoLiveLot, "no lot on the block")
	}

	team, err := e.store.UserTeam(ctx, intent.userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auction.Bid{}, newError(ErrCodeNotRegistered, "user %s has no team", intent.userID)
		}
		return auction.Bid{}, newError(ErrCodeInternal, "resolve team: %v", err)
	}

	var high int64
	if e.lot.highBid != nil {
		high = e.lot.highBid.Amount
	}
	minimum := e.cfg.MinimumBid(e.lot.player.BasePrice, high)
	amount := intent.amount
	if amount == 0 {
		amount = minimum
	}
	if amount < minimum {
		return auction.Bid{}, newBidTooLowError(amount, minimum)
	}
	// A raise must land on the ladder: high plus a whole number of
	// steps. The first bid only needs to clear the base price.
	if high > 0 {
		step := e.cfg.IncrementFor(high)
		if (amount-high)%step != 0 {
			return auction.Bid{}, newBidNotIncrementError(amount, high, step)
		}
	}

	t, err := e.store.GetTeam(ctx, team)
	if err != nil {
		return auction.Bid{}, newError(ErrCodeInternal, "load team %s: %v", team, err)
	}
	if t.Purse < amount {
		return auction.Bid{}, newInsufficientFundsError(team, amount, t.Purse)
	}

	bid := auction.Bid{
		ID:       e.ids.Generate(),
		PlayerID: e.lot.player.ID,
		Player:   e.lot.player.Name,
		Team:     team,
		UserID:   intent.userID,
		Amount:   amount,
		Seq:      e.clock.Next(),
		PlacedAt: e.tk.Now(),
	}
	if err := e.store.AppendBid(ctx, bid); err != nil {
		return auction.Bid{}, newError(ErrCodeInternal, "append bid: %v", err)
	}

	// Accepted: the bid is the new high, the extension window slides,
	// the cooldown restarts, and the rollback buffer is invalidated.
	e.lot.bids = append(e.lot.bids, bid)
	e.lot.highBid = &e.lot.bids[len(e.lot.bids)-1]
	e.lot.phase = auction.PhaseOpenBidding
	e.timers.cancel(timerIdle)
	e.timers.arm(timerExtension, e.extension, e.lot.gen)
	e.timers.arm(timerCooldown, e.cfg.Cooldown, e.lot.gen)
	e.undo = nil

	slog.Info("bid accepted",
		"player", bid.Player,
		"team", bid.Team,
		"amount", bid.Amount,
		"seq", bid.Seq,
	)
	e.publish(Notice{
		Kind:   NoticeBidAccepted,
		Seq:    bid.Seq,
		Player: bid.Player,
		Team:   bid.Team,
		Amount: bid.Amount,
	})

	return bid, nil
}
