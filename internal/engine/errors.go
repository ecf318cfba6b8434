package engine

import (
	"errors"
	"fmt"
	"time"
)

// EngineError represents a rejected intent or a failure detected during
// event processing.
//
// The taxonomy follows three tiers:
//   - Validation: bad bid amount, insufficient funds, wrong phase.
//     Rejected synchronously with no state change.
//   - Policy: cooldown active, paused, nothing to rollback, queue empty.
//     Rejected synchronously with a specific reason code.
//   - Internal: an invariant the engine itself should have made
//     impossible. Fatal to the current event only; logged and discarded.
//
// EngineError includes structured fields so callers can react without
// parsing messages (e.g. remaining cooldown seconds).
type EngineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context keyed by field name.
	Details map[string]string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotRunning indicates the session is not accepting the
	// operation in its current lifecycle state.
	ErrCodeNotRunning ErrorCode = "NOT_RUNNING"

	// ErrCodePaused indicates the session is paused.
	ErrCodePaused ErrorCode = "AUCTION_PAUSED"

	// ErrCodeNoLiveLot indicates no lot is on the block.
	ErrCodeNoLiveLot ErrorCode = "NO_LIVE_LOT"

	// ErrCodeBidNotIncrement indicates a raise that does not land on the
	// increment ladder.
	ErrCodeBidNotIncrement ErrorCode = "BID_NOT_INCREMENT"

	// ErrCodeBidTooLow indicates the amount does not clear the current
	// minimum (base price, or high bid plus increment).
	ErrCodeBidTooLow ErrorCode = "BID_TOO_LOW"

	// ErrCodeInsufficientFunds indicates the team's purse cannot cover
	// the amount.
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// ErrCodeNotRegistered indicates the submitting user has no team.
	ErrCodeNotRegistered ErrorCode = "NOT_REGISTERED"

	// ErrCodeUnknownTeam indicates a team code that does not exist.
	ErrCodeUnknownTeam ErrorCode = "UNKNOWN_TEAM"

	// ErrCodeUnknownPlayer indicates a player that does not exist.
	ErrCodeUnknownPlayer ErrorCode = "UNKNOWN_PLAYER"

	// ErrCodeCooldownActive indicates a manual sale attempted before the
	// post-bid cooldown elapsed.
	ErrCodeCooldownActive ErrorCode = "COOLDOWN_ACTIVE"

	// ErrCodeNothingToRollback indicates no settlement is eligible for
	// rollback (none yet, already rolled back, or invalidated by a
	// newer mutating event).
	ErrCodeNothingToRollback ErrorCode = "NOTHING_TO_ROLLBACK"

	// ErrCodeQueueEmpty indicates no pending players remain in enabled
	// lists.
	ErrCodeQueueEmpty ErrorCode = "QUEUE_EMPTY"

	// ErrCodeInvalidState indicates the operation does not apply in the
	// current lifecycle or lot state (start while running, release of a
	// player nobody holds, clear mid-session).
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeSessionFailed indicates a settlement could not be persisted
	// after bounded retries; only stop is accepted until then.
	ErrCodeSessionFailed ErrorCode = "SESSION_FAILED"

	// ErrCodeInternal indicates an invariant violation the engine
	// detected after admission should have ruled it out.
	ErrCodeInternal ErrorCode = "INTERNAL_INVARIANT"

	// ErrCodeStopped indicates the engine loop has shut down.
	ErrCodeStopped ErrorCode = "ENGINE_STOPPED"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from an error chain, or "" if the error
// is not an EngineError.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsRejection reports whether the error is a synchronous rejection of
// an intent (validation or policy), as opposed to an internal failure.
func IsRejection(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInternal, ErrCodeSessionFailed, ErrCodeStopped, "":
		return false
	}
	return true
}

func newError(code ErrorCode, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// newBidTooLowError reports the concrete minimum so the bidder can
// react without guessing.
func newBidTooLowError(amount, minimum int64) *EngineError {
	return &EngineError{
		Code:    ErrCodeBidTooLow,
		Message: fmt.Sprintf("bid %d below minimum %d", amount, minimum),
		Details: map[string]string{
			"amount":  fmt.Sprintf("%d", amount),
			"minimum": fmt.Sprintf("%d", minimum),
		},
	}
}

// newBidNotIncrementError reports the step a raise must be a multiple
// of.
func newBidNotIncrementError(amount, high, step int64) *EngineError {
	return &EngineError{
		Code:    ErrCodeBidNotIncrement,
		Message: fmt.Sprintf("bid %d is not %d plus a multiple of %d", amount, high, step),
		Details: map[string]string{
			"amount":    fmt.Sprintf("%d", amount),
			"high":      fmt.Sprintf("%d", high),
			"increment": fmt.Sprintf("%d", step),
		},
	}
}

// newCooldownError reports the remaining cooldown rounded up to whole
// seconds.
func newCooldownError(remaining time.Duration) *EngineError {
	secs := int64((remaining + time.Second - 1) / time.Second)
	return &EngineError{
		Code:    ErrCodeCooldownActive,
		Message: fmt.Sprintf("cooldown active for another %ds", secs),
		Details: map[string]string{
			"remaining_seconds": fmt.Sprintf("%d", secs),
		},
	}
}

func newInsufficientFundsError(team string, amount, purse int64) *EngineError {
	return &EngineError{
		Code:    ErrCodeInsufficientFunds,
		Message: fmt.Sprintf("%s purse %d cannot cover %d", team, purse, amount),
		Details: map[string]string{
			"team":   team,
			"amount": fmt.Sprintf("%d", amount),
			"purse":  fmt.Sprintf("%d", purse),
		},
	}
}
