package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// SeedTeams inserts any teams missing from the store.
// Uses ON CONFLICT(code) DO NOTHING so purses already adjusted by a
// previous session survive a restart.
func (s *Store) SeedTeams(ctx context.Context, purses map[string]int64) error {
	codes := make([]string, 0, len(purses))
	for code := range purses {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, code := range codes {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO teams (code, purse, original_purse)
				VALUES (?, ?, ?)
				ON CONFLICT(code) DO NOTHING
			`, code, purses[code], purses[code])
			if err != nil {
				return fmt.Errorf("seed team %s: %w", code, err)
			}
		}
		return nil
	})
}

// GetTeam retrieves a single team by code.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetTeam(ctx context.Context, code string) (auction.Team, error) {
	var t auction.Team
	err := s.db.QueryRowContext(ctx, `
		SELECT code, purse, original_purse FROM teams WHERE code = ?
	`, code).Scan(&t.Code, &t.Purse, &t.OriginalPurse)
	if err != nil {
		return auction.Team{}, err
	}
	return t, nil
}

// ListTeams returns all teams ordered by code.
// Returns an empty slice (not nil) if no teams exist.
func (s *Store) ListTeams(ctx context.Context) ([]auction.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, purse, original_purse FROM teams ORDER BY code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var teams []auction.Team
	for rows.Next() {
		var t auction.Team
		if err := rows.Scan(&t.Code, &t.Purse, &t.OriginalPurse); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}

	if teams == nil {
		teams = []auction.Team{}
	}

	return teams, nil
}

// SetPurse overwrites a team's remaining purse.
// Returns sql.ErrNoRows if the team does not exist.
func (s *Store) SetPurse(ctx context.Context, code string, amount int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE teams SET purse = ? WHERE code = ?
	`, amount, code)
	if err != nil {
		return fmt.Errorf("set purse: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set purse: rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TeamSquad returns the players currently held by a team in purchase
// order. Returns an empty slice (not nil) for an empty squad.
func (s *Store) TeamSquad(ctx context.Context, code string) ([]auction.SquadEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.list_name, p.position, p.base_price, p.status,
		       sq.price, sq.seq
		FROM squads sq
		JOIN players p ON p.id = sq.player_id
		WHERE sq.team_code = ?
		ORDER BY sq.seq ASC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("query squad: %w", err)
	}
	defer rows.Close()

	var entries []auction.SquadEntry
	for rows.Next() {
		var e auction.SquadEntry
		if err := rows.Scan(
			&e.Player.ID, &e.Player.Name, &e.Player.List, &e.Player.Position,
			&e.Player.BasePrice, &e.Player.Status, &e.Price, &e.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan squad entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate squad: %w", err)
	}

	if entries == nil {
		entries = []auction.SquadEntry{}
	}

	return entries, nil
}

// AssignUser registers (or re-registers) which team a user bids for.
func (s *Store) AssignUser(ctx context.Context, userID, teamCode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_teams (user_id, team_code)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET team_code = excluded.team_code
	`, userID, teamCode)
	if err != nil {
		return fmt.Errorf("assign user: %w", err)
	}
	return nil
}

// UnassignUser drops a user's team registration.
// Unknown users are a no-op.
func (s *Store) UnassignUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_teams WHERE user_id = ?
	`, userID)
	if err != nil {
		return fmt.Errorf("unassign user: %w", err)
	}
	return nil
}

// UserTeam returns the team code a user bids for.
// Returns sql.ErrNoRows if the user is not registered.
func (s *Store) UserTeam(ctx context.Context, userID string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `
		SELECT team_code FROM user_teams WHERE user_id = ?
	`, userID).Scan(&code)
	if err != nil {
		return "", err
	}
	return code, nil
}

// Assignments returns the full user-to-team registration map.
func (s *Store) Assignments(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, team_code FROM user_teams ORDER BY user_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[string]string)
	for rows.Next() {
		var userID, code string
		if err := rows.Scan(&userID, &code); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments[userID] = code
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}

	return assignments, nil
}
