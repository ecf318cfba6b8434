package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// commandKind enumerates admin commands.
type commandKind int

const (
	cmdStart commandKind = iota + 1
	cmdStop
	cmdPause
	cmdResume
	cmdSoldTo
	cmdUnsold
	cmdSkip
	cmdRollback
	cmdRelease
	cmdSetPurse
	cmdSetCountdown
	cmdClear
	cmdEnableList
	cmdBarrier
)

// command carries one admin intent into the loop. Fields are used per
// kind.
type command struct {
	kind     commandKind
	team     string
	playerID int64
	amount   int64
	duration time.Duration
	list     string
	enable   bool
	reply    chan error
}

// do enqueues a command and waits for the loop's verdict.
func (e *Engine) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	if !e.queue.Enqueue(Event{Type: EventTypeCommand, Command: &cmd}) {
		return newError(ErrCodeStopped, "engine stopped")
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins (or restarts) the auction session and announces the
// first pending lot. Fails with QUEUE_EMPTY when no players wait in
// enabled lists.
func (e *Engine) Start(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdStart})
}

// StopSession ends the session: all timers cancel, an in-flight lot
// returns to the front of its list unsettled, and the rollback buffer
// clears.
func (e *Engine) StopSession(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdStop})
}

// Pause freezes the session: timers keep their remaining durations and
// bids are rejected until Resume.
func (e *Engine) Pause(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdPause})
}

// Resume re-arms frozen timers with their remaining durations.
func (e *Engine) Resume(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdResume})
}

// SellTo force-sells the live lot to a team at the standing high bid
// (or the base price if nobody bid). Rejected with COOLDOWN_ACTIVE
// until the post-bid cooldown elapses, so a sale cannot land while
// bidders are still reacting.
func (e *Engine) SellTo(ctx context.Context, team string) error {
	return e.do(ctx, command{kind: cmdSoldTo, team: team})
}

// MarkUnsold force-settles the live lot unsold.
func (e *Engine) MarkUnsold(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdUnsold})
}

// Skip sends the live lot to the back of its list unsettled and
// announces the next one immediately.
func (e *Engine) Skip(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdSkip})
}

// Rollback undoes the single most recent sale. See Engine.rollback for
// the eligibility window.
func (e *Engine) Rollback(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdRollback})
}

// Release removes a sold player from their squad, refunds the price,
// and returns the player to the rotation per the configured policy.
func (e *Engine) Release(ctx context.Context, playerID int64) error {
	return e.do(ctx, command{kind: cmdRelease, playerID: playerID})
}

// SetPurse overwrites a team's remaining purse.
func (e *Engine) SetPurse(ctx context.Context, team string, amount int64) error {
	return e.do(ctx, command{kind: cmdSetPurse, team: team, amount: amount})
}

// SetCountdown adjusts the bid extension window for subsequent arms.
func (e *Engine) SetCountdown(ctx context.Context, d time.Duration) error {
	return e.do(ctx, command{kind: cmdSetCountdown, duration: d})
}

// Clear resets a stopped or idle session for a fresh auction: squads
// empty, purses restore, players return to pending. The audit and bid
// ledgers are history and survive.
func (e *Engine) Clear(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdClear})
}

// SetListEnabled toggles a list in or out of the rotation.
func (e *Engine) SetListEnabled(ctx context.Context, list string, enabled bool) error {
	return e.do(ctx, command{kind: cmdEnableList, list: list, enable: enabled})
}

// Barrier returns once every event enqueued before it has been
// processed. It changes no state; callers use it to observe a settled
// view after timer firings.
func (e *Engine) Barrier(ctx context.Context) error {
	return e.do(ctx, command{kind: cmdBarrier})
}

// handleCommand dispatches one admin command.
// Called only from the Run goroutine.
func (e *Engine) handleCommand(ctx context.Context, cmd *command) {
	err := e.applyCommand(ctx, cmd)
	if err != nil && !IsRejection(err) {
		slog.Error("command processing failed", "error", err, "kind", cmd.kind)
	}
	cmd.reply <- err
}

func (e *Engine) applyCommand(ctx context.Context, cmd *command) error {
	if cmd.kind == cmdBarrier {
		return nil
	}

	// A failed session accepts only stop.
	if e.failed && cmd.kind != cmdStop {
		return newError(ErrCodeSessionFailed, "session failed; stop required")
	}

	switch cmd.kind {
	case cmdStart:
		return e.startSession(ctx)

	case cmdStop:
		if e.lot != nil {
			if err := e.store.ReturnLive(ctx, e.lot.player.ID); err != nil {
				return newError(ErrCodeInternal, "stop: return lot: %v", err)
			}
		}
		e.failed = false
		e.finishSession(ctx, NoticeStopped, auction.StatusStopped)
		slog.Info("session stopped")
		return nil

	case cmdPause:
		if e.status != auction.StatusRunning {
			return newError(ErrCodeNotRunning, "auction is not running")
		}
		e.timers.pauseAll()
		e.status = auction.StatusPaused
		if err := e.store.SetSessionStatus(ctx, e.status); err != nil {
			slog.Error("persist session status failed", "error", err)
		}
		e.publish(Notice{Kind: NoticePaused})
		return nil

	case cmdResume:
		if e.status != auction.StatusPaused {
			return newError(ErrCodeInvalidState, "auction is not paused")
		}
		e.timers.resumeAll()
		e.status = auction.StatusRunning
		if err := e.store.SetSessionStatus(ctx, e.status); err != nil {
			slog.Error("persist session status failed", "error", err)
		}
		e.publish(Notice{Kind: NoticeResumed})
		return nil

	case cmdSoldTo:
		return e.soldTo(ctx, cmd.team)

	case cmdUnsold:
		if err := e.requireLiveLot(); err != nil {
			return err
		}
		e.settleUnsold(ctx, auction.TriggerAdmin)
		return nil

	case cmdSkip:
		if err := e.requireLiveLot(); err != nil {
			return err
		}
		player := e.lot.player
		if err := e.store.SkipLive(ctx, player.ID); err != nil {
			return newError(ErrCodeInternal, "skip: %v", err)
		}
		e.lot = nil
		e.undo = nil
		e.timers.cancel(timerIdle)
		e.timers.cancel(timerExtension)
		e.timers.cancel(timerCooldown)
		slog.Info("lot skipped", "player", player.Name)
		e.publish(Notice{Kind: NoticeSkipped, Player: player.Name})
		e.announceNext(ctx)
		return nil

	case cmdRollback:
		if e.status != auction.StatusRunning && e.status != auction.StatusPaused {
			return newError(ErrCodeNotRunning, "auction is not running")
		}
		return e.rollback(ctx)

	case cmdRelease:
		return e.release(ctx, cmd.playerID)

	case cmdSetPurse:
		if err := e.store.SetPurse(ctx, cmd.team, cmd.amount); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(ErrCodeUnknownTeam, "unknown team %s", cmd.team)
			}
			return newError(ErrCodeInternal, "set purse: %v", err)
		}
		// A purse change is a mutating event; the rollback window closes.
		e.undo = nil
		e.publish(Notice{Kind: NoticePurseSet, Team: cmd.team, Amount: cmd.amount})
		return nil

	case cmdSetCountdown:
		if cmd.duration < 5*time.Second {
			return newError(ErrCodeInvalidState, "countdown below 5s")
		}
		e.extension = cmd.duration
		slog.Info("extension window updated", "duration", cmd.duration)
		return nil

	case cmdClear:
		if e.status == auction.StatusRunning || e.status == auction.StatusPaused {
			return newError(ErrCodeInvalidState, "stop the session before clear")
		}
		if err := e.store.Reset(ctx); err != nil {
			return newError(ErrCodeInternal, "clear: %v", err)
		}
		e.undo = nil
		e.lot = nil
		e.status = auction.StatusIdle
		e.publish(Notice{Kind: NoticeCleared})
		slog.Info("session cleared")
		return nil

	case cmdEnableList:
		if err := e.store.SetListEnabled(ctx, cmd.list, cmd.enable); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(ErrCodeInvalidState, "unknown list %s", cmd.list)
			}
			return newError(ErrCodeInternal, "set list enabled: %v", err)
		}
		return nil

	default:
		return newError(ErrCodeInternal, "unknown command kind %d", cmd.kind)
	}
}

func (e *Engine) startSession(ctx context.Context) error {
	if e.status == auction.StatusRunning || e.status == auction.StatusPaused {
		return newError(ErrCodeInvalidState, "session already running")
	}
	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		return newError(ErrCodeInternal, "start: %v", err)
	}
	if pending == 0 {
		return newError(ErrCodeQueueEmpty, "no pending players in enabled lists")
	}

	e.status = auction.StatusRunning
	if err := e.store.SetSessionStatus(ctx, e.status); err != nil {
		slog.Error("persist session status failed", "error", err)
	}
	slog.Info("session started", "pending", pending)
	e.publish(Notice{Kind: NoticeStarted})
	e.announceNext(ctx)
	return nil
}

func (e *Engine) soldTo(ctx context.Context, team string) error {
	if err := e.requireLiveLot(); err != nil {
		return err
	}
	if remaining := e.timers.remaining(timerCooldown); remaining > 0 {
		return newCooldownError(remaining)
	}

	t, err := e.store.GetTeam(ctx, team)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(ErrCodeUnknownTeam, "unknown team %s", team)
		}
		return newError(ErrCodeInternal, "load team: %v", err)
	}

	price := e.lot.player.BasePrice
	if e.lot.highBid != nil {
		price = e.lot.highBid.Amount
	}
	if t.Purse < price {
		return newInsufficientFundsError(team, price, t.Purse)
	}

	e.settleSold(ctx, auction.TriggerAdmin, team, price)
	return nil
}

func (e *Engine) release(ctx context.Context, playerID int64) error {
	if e.lot != nil && e.lot.player.ID == playerID {
		return newError(ErrCodeInvalidState, "player is on the block")
	}
	if err := e.store.ReleasePlayer(ctx, playerID, e.cfg.ReleasePolicy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(ErrCodeInvalidState, "no squad holds the player")
		}
		return newError(ErrCodeInternal, "release: %v", err)
	}
	// Release changes purse and squad; the rollback window closes.
	e.undo = nil

	player, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		slog.Error("release: reload player failed", "error", err)
	}
	slog.Info("player released", "player", player.Name)
	e.publish(Notice{Kind: NoticeReleased, Player: player.Name})
	return nil
}

func (e *Engine) requireLiveLot() error {
	if e.status != auction.StatusRunning {
		return newError(ErrCodeNotRunning, "auction is not running")
	}
	if e.lot == nil {
		return newError(ErrCodeNoLiveLot, "no lot on the block")
	}
	return nil
}
