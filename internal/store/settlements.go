package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
	"github.com/SubratDash67/iplauctionbot/internal/config"
)

// ErrInsufficientPurse is returned when a sale would drive a team's
// purse negative. The transaction is rolled back and nothing changes.
var ErrInsufficientPurse = errors.New("insufficient purse")

// ErrAlreadyRolledBack is returned when a rollback targets a settlement
// that was already undone.
var ErrAlreadyRolledBack = errors.New("settlement already rolled back")

// SettleSold atomically records a sale: appends the settlement, deducts
// the price from the buyer's purse, adds the squad entry, marks the
// player sold, and clears the live lot. Either every effect lands or
// none do.
//
// Uses ON CONFLICT(id) DO NOTHING on the settlement for idempotency: a
// duplicate settlement ID commits without reapplying any effect.
func (s *Store) SettleSold(ctx context.Context, st auction.Settlement) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO settlements
			(id, player_id, outcome, team_code, price, trigger, seq, settled_at)
			VALUES (?, ?, 'sold', ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			st.ID, st.PlayerID, st.Team, st.Price,
			string(st.Trigger), st.Seq, st.SettledAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("settle sold: insert settlement: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("settle sold: rows affected: %w", err)
		}
		if affected == 0 {
			// Settlement already recorded; effects landed with it.
			return nil
		}

		// Deduct the purse only if it covers the price; the WHERE guard
		// makes overdraft impossible even if the engine's check raced.
		result, err = tx.ExecContext(ctx, `
			UPDATE teams SET purse = purse - ?
			WHERE code = ? AND purse >= ?
		`, st.Price, st.Team, st.Price)
		if err != nil {
			return fmt.Errorf("settle sold: deduct purse: %w", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("settle sold: rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("settle sold: team %s price %d: %w", st.Team, st.Price, ErrInsufficientPurse)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO squads (team_code, player_id, price, seq)
			VALUES (?, ?, ?, ?)
		`, st.Team, st.PlayerID, st.Price, st.Seq)
		if err != nil {
			return fmt.Errorf("settle sold: insert squad entry: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE players SET status = 'sold' WHERE id = ?
		`, st.PlayerID)
		if err != nil {
			return fmt.Errorf("settle sold: mark player: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE session SET live_player_id = NULL WHERE id = 1
		`)
		if err != nil {
			return fmt.Errorf("settle sold: clear live lot: %w", err)
		}

		return nil
	})
}

// SettleUnsold atomically records a lot passing unsold and clears the
// live lot.
func (s *Store) SettleUnsold(ctx context.Context, st auction.Settlement) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO settlements
			(id, player_id, outcome, team_code, price, trigger, seq, settled_at)
			VALUES (?, ?, 'unsold', NULL, NULL, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			st.ID, st.PlayerID, string(st.Trigger), st.Seq,
			st.SettledAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("settle unsold: insert settlement: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("settle unsold: rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE players SET status = 'unsold' WHERE id = ?
		`, st.PlayerID)
		if err != nil {
			return fmt.Errorf("settle unsold: mark player: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE session SET live_player_id = NULL WHERE id = 1
		`)
		if err != nil {
			return fmt.Errorf("settle unsold: clear live lot: %w", err)
		}

		return nil
	})
}

// RollbackSettlement atomically undoes a settlement: marks the row
// rolled back, and for a sale removes the squad entry and refunds the
// purse. The player is restored to the given status; when makeLive is
// true the session's live lot is pointed back at the player.
func (s *Store) RollbackSettlement(ctx context.Context, id string, restore auction.PlayerStatus, makeLive bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var playerID int64
		var outcome string
		var team sql.NullString
		var price sql.NullInt64
		var rolledBack bool
		err := tx.QueryRowContext(ctx, `
			SELECT player_id, outcome, team_code, price, rolled_back
			FROM settlements WHERE id = ?
		`, id).Scan(&playerID, &outcome, &team, &price, &rolledBack)
		if err != nil {
			return fmt.Errorf("rollback: load settlement: %w", err)
		}
		if rolledBack {
			return fmt.Errorf("rollback %s: %w", id, ErrAlreadyRolledBack)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE settlements SET rolled_back = 1 WHERE id = ?
		`, id)
		if err != nil {
			return fmt.Errorf("rollback: mark settlement: %w", err)
		}

		if outcome == string(auction.OutcomeSold) {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM squads WHERE team_code = ? AND player_id = ?
			`, team.String, playerID)
			if err != nil {
				return fmt.Errorf("rollback: remove squad entry: %w", err)
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE teams SET purse = purse + ? WHERE code = ?
			`, price.Int64, team.String)
			if err != nil {
				return fmt.Errorf("rollback: refund purse: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE players SET status = ? WHERE id = ?
		`, string(restore), playerID)
		if err != nil {
			return fmt.Errorf("rollback: restore player: %w", err)
		}

		if makeLive {
			_, err = tx.ExecContext(ctx, `
				UPDATE session SET live_player_id = ? WHERE id = 1
			`, playerID)
			if err != nil {
				return fmt.Errorf("rollback: restore live lot: %w", err)
			}
		}

		return nil
	})
}

// ReleasedListName holds players released under the nextStart policy
// until an admin re-enables the list.
const ReleasedListName = "released"

// ReleasePlayer atomically removes a sold player from their squad,
// refunds the purchase price, and returns the player to the rotation
// per the release policy. The original sale settlement stays in the
// ledger untouched.
// Returns sql.ErrNoRows if no squad holds the player.
func (s *Store) ReleasePlayer(ctx context.Context, playerID int64, policy config.ReleasePolicy) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var team string
		var price int64
		err := tx.QueryRowContext(ctx, `
			SELECT team_code, price FROM squads WHERE player_id = ?
		`, playerID).Scan(&team, &price)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM squads WHERE team_code = ? AND player_id = ?
		`, team, playerID)
		if err != nil {
			return fmt.Errorf("release: remove squad entry: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE teams SET purse = purse + ? WHERE code = ?
		`, price, team)
		if err != nil {
			return fmt.Errorf("release: refund purse: %w", err)
		}

		if policy == config.ReleaseImmediate {
			return requeueAtEnd(ctx, tx, playerID)
		}
		return moveToList(ctx, tx, playerID, ReleasedListName, false)
	})
}

// LastSettlement returns the most recent settlement that has not been
// rolled back. Returns sql.ErrNoRows if none exists.
func (s *Store) LastSettlement(ctx context.Context) (auction.Settlement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.player_id, p.name, s.outcome, s.team_code, s.price,
		       s.trigger, s.seq, s.settled_at, s.rolled_back
		FROM settlements s
		JOIN players p ON p.id = s.player_id
		WHERE s.rolled_back = 0
		ORDER BY s.seq DESC
		LIMIT 1
	`)
	return scanSettlementRow(row)
}

// Settlements returns the full settlement ledger in sequence order,
// rolled-back rows included.
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) Settlements(ctx context.Context) ([]auction.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.player_id, p.name, s.outcome, s.team_code, s.price,
		       s.trigger, s.seq, s.settled_at, s.rolled_back
		FROM settlements s
		JOIN players p ON p.id = s.player_id
		ORDER BY s.seq ASC, s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []auction.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}

	if settlements == nil {
		settlements = []auction.Settlement{}
	}

	return settlements, nil
}

func scanSettlement(rows *sql.Rows) (auction.Settlement, error) {
	var st auction.Settlement
	var team sql.NullString
	var price sql.NullInt64
	var trigger, settledAt string
	if err := rows.Scan(
		&st.ID, &st.PlayerID, &st.Player, &st.Outcome, &team, &price,
		&trigger, &st.Seq, &settledAt, &st.RolledBack,
	); err != nil {
		return auction.Settlement{}, fmt.Errorf("scan settlement: %w", err)
	}
	return settlementWithParsed(st, team, price, trigger, settledAt)
}

func scanSettlementRow(row *sql.Row) (auction.Settlement, error) {
	var st auction.Settlement
	var team sql.NullString
	var price sql.NullInt64
	var trigger, settledAt string
	if err := row.Scan(
		&st.ID, &st.PlayerID, &st.Player, &st.Outcome, &team, &price,
		&trigger, &st.Seq, &settledAt, &st.RolledBack,
	); err != nil {
		return auction.Settlement{}, err
	}
	return settlementWithParsed(st, team, price, trigger, settledAt)
}

func settlementWithParsed(st auction.Settlement, team sql.NullString, price sql.NullInt64, trigger, settledAt string) (auction.Settlement, error) {
	st.Team = team.String
	st.Price = price.Int64
	st.Trigger = auction.Trigger(trigger)
	t, err := time.Parse(time.RFC3339Nano, settledAt)
	if err != nil {
		return auction.Settlement{}, fmt.Errorf("parse settlement time: %w", err)
	}
	st.SettledAt = t
	return st, nil
}
