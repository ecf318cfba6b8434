package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// SessionState is the persisted slice of session state: the lifecycle
// status and which player (if any) is on the block. Timers and the
// rollback buffer are deliberately not persisted.
type SessionState struct {
	Status auction.SessionStatus
	// LivePlayerID is zero when no lot is live.
	LivePlayerID int64
}

// GetSession reads the singleton session row.
func (s *Store) GetSession(ctx context.Context) (SessionState, error) {
	var state SessionState
	var live sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT status, live_player_id FROM session WHERE id = 1
	`).Scan(&state.Status, &live)
	if err != nil {
		return SessionState{}, fmt.Errorf("get session: %w", err)
	}
	state.LivePlayerID = live.Int64
	return state, nil
}

// SetSessionStatus updates the session lifecycle status.
func (s *Store) SetSessionStatus(ctx context.Context, status auction.SessionStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session SET status = ? WHERE id = 1
	`, string(status))
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return nil
}

// TakeLive atomically puts a player on the block: the player becomes
// live and the session points at it.
func (s *Store) TakeLive(ctx context.Context, playerID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE players SET status = 'live' WHERE id = ? AND status = 'pending'
		`, playerID)
		if err != nil {
			return fmt.Errorf("take live: mark player: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("take live: rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE session SET live_player_id = ? WHERE id = 1
		`, playerID)
		if err != nil {
			return fmt.Errorf("take live: update session: %w", err)
		}
		return nil
	})
}

// SkipLive atomically takes the live player off the block and requeues
// it at the back of its list.
func (s *Store) SkipLive(ctx context.Context, playerID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requeueAtEnd(ctx, tx, playerID); err != nil {
			return fmt.Errorf("skip live: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE session SET live_player_id = NULL WHERE id = 1
		`)
		if err != nil {
			return fmt.Errorf("skip live: update session: %w", err)
		}
		return nil
	})
}

// ReturnLive atomically takes the live player off the block and back to
// pending, keeping its position at the front of its list.
func (s *Store) ReturnLive(ctx context.Context, playerID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE players SET status = 'pending' WHERE id = ? AND status = 'live'
		`, playerID)
		if err != nil {
			return fmt.Errorf("return live: mark player: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE session SET live_player_id = NULL WHERE id = 1
		`)
		if err != nil {
			return fmt.Errorf("return live: update session: %w", err)
		}
		return nil
	})
}
