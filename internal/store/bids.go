package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// AppendBid inserts an accepted bid into the ledger.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored.
func (s *Store) AppendBid(ctx context.Context, bid auction.Bid) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bids (id, player_id, team_code, user_id, amount, seq, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		bid.ID,
		bid.PlayerID,
		bid.Team,
		bid.UserID,
		bid.Amount,
		bid.Seq,
		bid.PlacedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append bid: %w", err)
	}
	return nil
}

// BidsForPlayer returns every bid placed on a player in sequence order.
// Returns an empty slice (not nil) if no bids exist.
func (s *Store) BidsForPlayer(ctx context.Context, playerID int64) ([]auction.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.player_id, p.name, b.team_code, b.user_id, b.amount, b.seq, b.placed_at
		FROM bids b
		JOIN players p ON p.id = b.player_id
		WHERE b.player_id = ?
		ORDER BY b.seq ASC, b.id COLLATE BINARY ASC
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("query bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

// HighBid returns the latest accepted bid on a player.
// Returns sql.ErrNoRows if the player has no bids.
func (s *Store) HighBid(ctx context.Context, playerID int64) (auction.Bid, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT b.id, b.player_id, p.name, b.team_code, b.user_id, b.amount, b.seq, b.placed_at
		FROM bids b
		JOIN players p ON p.id = b.player_id
		WHERE b.player_id = ?
		ORDER BY b.seq DESC
		LIMIT 1
	`, playerID)
	return scanBidRow(row)
}

// AllBids returns the full bid ledger in sequence order.
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) AllBids(ctx context.Context) ([]auction.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.player_id, p.name, b.team_code, b.user_id, b.amount, b.seq, b.placed_at
		FROM bids b
		JOIN players p ON p.id = b.player_id
		ORDER BY b.seq ASC, b.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

// RecentBids returns the latest limit bids across all players, newest
// first. Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) RecentBids(ctx context.Context, limit int) ([]auction.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.player_id, p.name, b.team_code, b.user_id, b.amount, b.seq, b.placed_at
		FROM bids b
		JOIN players p ON p.id = b.player_id
		ORDER BY b.seq DESC, b.id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

func collectBids(rows *sql.Rows) ([]auction.Bid, error) {
	var bids []auction.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bids: %w", err)
	}

	if bids == nil {
		bids = []auction.Bid{}
	}

	return bids, nil
}

func scanBid(rows *sql.Rows) (auction.Bid, error) {
	var bid auction.Bid
	var placedAt string
	if err := rows.Scan(
		&bid.ID, &bid.PlayerID, &bid.Player, &bid.Team, &bid.UserID,
		&bid.Amount, &bid.Seq, &placedAt,
	); err != nil {
		return auction.Bid{}, fmt.Errorf("scan bid: %w", err)
	}
	return bidWithTime(bid, placedAt)
}

func scanBidRow(row *sql.Row) (auction.Bid, error) {
	var bid auction.Bid
	var placedAt string
	if err := row.Scan(
		&bid.ID, &bid.PlayerID, &bid.Player, &bid.Team, &bid.UserID,
		&bid.Amount, &bid.Seq, &placedAt,
	); err != nil {
		return auction.Bid{}, err
	}
	return bidWithTime(bid, placedAt)
}

func bidWithTime(bid auction.Bid, placedAt string) (auction.Bid, error) {
	t, err := time.Parse(time.RFC3339Nano, placedAt)
	if err != nil {
		return auction.Bid{}, fmt.Errorf("parse bid time: %w", err)
	}
	bid.PlacedAt = t
	return bid, nil
}
