package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// PlayerSeed is one player row to import. NameKey is the normalized
// lookup key computed by the importer.
type PlayerSeed struct {
	Name      string
	NameKey   string
	BasePrice int64
}

// EnsureList creates a list at the end of the list order if it does not
// already exist.
func (s *Store) EnsureList(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (name, position, enabled)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM lists), 1)
		ON CONFLICT(name) DO NOTHING
	`, name)
	if err != nil {
		return fmt.Errorf("ensure list: %w", err)
	}
	return nil
}

// SetListEnabled toggles whether a list participates in the rotation.
// Returns sql.ErrNoRows if the list does not exist.
func (s *Store) SetListEnabled(ctx context.Context, name string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lists SET enabled = ? WHERE name = ?
	`, enabled, name)
	if err != nil {
		return fmt.Errorf("set list enabled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set list enabled: rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Lists returns all lists in rotation order.
// Returns an empty slice (not nil) if none exist.
func (s *Store) Lists(ctx context.Context) ([]auction.List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, position, enabled FROM lists ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	var lists []auction.List
	for rows.Next() {
		var l auction.List
		if err := rows.Scan(&l.Name, &l.Position, &l.Enabled); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}

	if lists == nil {
		lists = []auction.List{}
	}

	return lists, nil
}

// AddPlayers appends players to a list, creating the list if needed.
// Duplicate name keys are silently skipped (idempotent re-import).
// Returns the number of players actually inserted.
func (s *Store) AddPlayers(ctx context.Context, listName string, seeds []PlayerSeed) (int, error) {
	var inserted int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lists (name, position, enabled)
			VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM lists), 1)
			ON CONFLICT(name) DO NOTHING
		`, listName)
		if err != nil {
			return fmt.Errorf("add players: ensure list: %w", err)
		}

		var next int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position), 0) + 1 FROM players WHERE list_name = ?
		`, listName).Scan(&next)
		if err != nil {
			return fmt.Errorf("add players: next position: %w", err)
		}

		for _, seed := range seeds {
			result, err := tx.ExecContext(ctx, `
				INSERT INTO players (name, name_key, list_name, position, base_price)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(name_key) DO NOTHING
			`, seed.Name, seed.NameKey, listName, next, seed.BasePrice)
			if err != nil {
				return fmt.Errorf("add player %s: %w", seed.Name, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("add player %s: rows affected: %w", seed.Name, err)
			}
			if affected > 0 {
				inserted++
				next++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetPlayer retrieves a single player by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetPlayer(ctx context.Context, id int64) (auction.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, list_name, position, base_price, status
		FROM players WHERE id = ?
	`, id)
	return scanPlayerRow(row)
}

// FindPlayerByKey retrieves a player by normalized name key.
// Returns sql.ErrNoRows if not found.
func (s *Store) FindPlayerByKey(ctx context.Context, nameKey string) (auction.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, list_name, position, base_price, status
		FROM players WHERE name_key = ?
	`, nameKey)
	return scanPlayerRow(row)
}

// NextPending returns the next player in the rotation: enabled lists in
// list order, players in position order within each list.
// Returns sql.ErrNoRows when the rotation is exhausted.
func (s *Store) NextPending(ctx context.Context) (auction.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.list_name, p.position, p.base_price, p.status
		FROM players p
		JOIN lists l ON l.name = p.list_name
		WHERE p.status = 'pending' AND l.enabled = 1
		ORDER BY l.position ASC, p.position ASC
		LIMIT 1
	`)
	return scanPlayerRow(row)
}

// PendingCount returns the number of players still waiting in enabled
// lists.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM players p
		JOIN lists l ON l.name = p.list_name
		WHERE p.status = 'pending' AND l.enabled = 1
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// SetPlayerStatus updates a player's rotation status.
// Returns sql.ErrNoRows if the player does not exist.
func (s *Store) SetPlayerStatus(ctx context.Context, id int64, status auction.PlayerStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE players SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("set player status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set player status: rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RequeueAtEnd returns a player to pending at the back of its list.
// Used by skip and by release with the immediate policy.
func (s *Store) RequeueAtEnd(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return requeueAtEnd(ctx, tx, id)
	})
}

func requeueAtEnd(ctx context.Context, tx *sql.Tx, id int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE players
		SET status = 'pending',
		    position = (
		        SELECT COALESCE(MAX(p2.position), 0) + 1
		        FROM players p2
		        WHERE p2.list_name = players.list_name
		    )
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("requeue player: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue player: rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// moveToList reassigns a player to the back of another list, creating
// the list if needed. The target list's enabled flag is preserved when
// it already exists; a freshly created list starts with the given
// enabled state.
func moveToList(ctx context.Context, tx *sql.Tx, id int64, listName string, enabled bool) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO lists (name, position, enabled)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM lists), ?)
		ON CONFLICT(name) DO NOTHING
	`, listName, enabled)
	if err != nil {
		return fmt.Errorf("move to list: ensure list: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE players
		SET list_name = ?,
		    status = 'pending',
		    position = (SELECT COALESCE(MAX(position), 0) + 1 FROM players p2 WHERE p2.list_name = ?)
		WHERE id = ?
	`, listName, listName, id)
	if err != nil {
		return fmt.Errorf("move to list: %w", err)
	}
	return nil
}

func scanPlayerRow(row *sql.Row) (auction.Player, error) {
	var p auction.Player
	if err := row.Scan(
		&p.ID, &p.Name, &p.List, &p.Position, &p.BasePrice, &p.Status,
	); err != nil {
		return auction.Player{}, err
	}
	return p, nil
}
