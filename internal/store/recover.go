package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// RecoveryReport describes what startup recovery found and fixed.
type RecoveryReport struct {
	PriorStatus auction.SessionStatus
	// RequeuedPlayerID is the lot that was live at shutdown and has been
	// returned to the front of its list, or zero.
	RequeuedPlayerID int64
}

// Recover normalizes session state after a restart. The session always
// comes back idle: timers and the rollback buffer are process-local and
// cannot be reconstructed, so an interrupted lot is returned to pending
// (keeping its position at the head of its list) rather than resumed.
func (s *Store) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		var live sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT status, live_player_id FROM session WHERE id = 1
		`).Scan(&status, &live)
		if err != nil {
			return fmt.Errorf("recover: read session: %w", err)
		}
		report.PriorStatus = auction.SessionStatus(status)

		if live.Valid {
			report.RequeuedPlayerID = live.Int64
		}

		// Covers the session's live lot and any player left stuck live
		// by a crash mid-announcement.
		_, err = tx.ExecContext(ctx, `
			UPDATE players SET status = 'pending' WHERE status = 'live'
		`)
		if err != nil {
			return fmt.Errorf("recover: requeue live players: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE session SET status = 'idle', live_player_id = NULL WHERE id = 1
		`)
		if err != nil {
			return fmt.Errorf("recover: reset session: %w", err)
		}
		return nil
	})
	if err != nil {
		return RecoveryReport{}, err
	}
	return report, nil
}

// LastSeq returns the highest sequence number across the bid and
// settlement ledgers, or zero for a fresh database. Used to resume the
// logical clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM bids
			UNION ALL
			SELECT seq FROM settlements
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Reset wipes auction progress for a fresh session: squads are cleared,
// purses restored, and every player returned to pending. The bid and
// settlement ledgers are history and survive untouched, as do user
// registrations.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM squads`,
			`UPDATE teams SET purse = original_purse`,
			`UPDATE players SET status = 'pending'`,
			`UPDATE session SET status = 'idle', live_player_id = NULL WHERE id = 1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		}
		return nil
	})
}
