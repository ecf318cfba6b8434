package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
	"github.com/SubratDash67/iplauctionbot/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBasic(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SeedTeams(ctx, map[string]int64{
		"MI":  1_000,
		"CSK": 1_000,
	}))
	_, err := s.AddPlayers(ctx, "marquee", []PlayerSeed{
		{Name: "Player One", NameKey: "player one", BasePrice: 100},
		{Name: "Player Two", NameKey: "player two", BasePrice: 100},
	})
	require.NoError(t, err)
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
	require.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestSeedTeamsKeepsAdjustedPurses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedTeams(ctx, map[string]int64{"MI": 1_000}))
	require.NoError(t, s.SetPurse(ctx, "MI", 400))

	// Reseeding must not clobber the adjusted purse.
	require.NoError(t, s.SeedTeams(ctx, map[string]int64{"MI": 1_000, "CSK": 1_000}))

	mi, err := s.GetTeam(ctx, "MI")
	require.NoError(t, err)
	require.Equal(t, int64(400), mi.Purse)
	require.Equal(t, int64(1_000), mi.OriginalPurse)

	csk, err := s.GetTeam(ctx, "CSK")
	require.NoError(t, err)
	require.Equal(t, int64(1_000), csk.Purse)
}

func TestSetPurseUnknownTeam(t *testing.T) {
	s := openTestStore(t)
	err := s.SetPurse(context.Background(), "NOPE", 100)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRotationOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.AddPlayers(ctx, "marquee", []PlayerSeed{
		{Name: "A", NameKey: "a", BasePrice: 100},
		{Name: "B", NameKey: "b", BasePrice: 100},
	})
	require.NoError(t, err)
	_, err = s.AddPlayers(ctx, "batters", []PlayerSeed{
		{Name: "C", NameKey: "c", BasePrice: 100},
	})
	require.NoError(t, err)

	// Lists rotate in creation order, players in import order.
	next, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", next.Name)

	require.NoError(t, s.SetPlayerStatus(ctx, next.ID, auction.PlayerSold))

	next, err = s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, "B", next.Name)

	// Disabling the first list jumps the rotation to the second.
	require.NoError(t, s.SetListEnabled(ctx, "marquee", false))
	next, err = s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, "C", next.Name)

	require.NoError(t, s.SetPlayerStatus(ctx, next.ID, auction.PlayerUnsold))
	_, err = s.NextPending(ctx)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAddPlayersSkipsDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.AddPlayers(ctx, "marquee", []PlayerSeed{
		{Name: "A", NameKey: "a", BasePrice: 100},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.AddPlayers(ctx, "marquee", []PlayerSeed{
		{Name: "A", NameKey: "a", BasePrice: 100},
		{Name: "B", NameKey: "b", BasePrice: 100},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRequeueAtEndMovesBehindPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	first, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RequeueAtEnd(ctx, first.ID))

	next, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, "Player Two", next.Name)
}

func TestBidLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)

	_, err = s.HighBid(ctx, p.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)

	now := time.Now()
	for i, bid := range []auction.Bid{
		{ID: "b-1", PlayerID: p.ID, Team: "MI", UserID: "u-1", Amount: 100},
		{ID: "b-2", PlayerID: p.ID, Team: "CSK", UserID: "u-2", Amount: 200},
	} {
		bid.Seq = int64(i + 1)
		bid.PlacedAt = now
		require.NoError(t, s.AppendBid(ctx, bid))
	}

	// Duplicate IDs are silently ignored.
	require.NoError(t, s.AppendBid(ctx, auction.Bid{
		ID: "b-1", PlayerID: p.ID, Team: "MI", UserID: "u-1",
		Amount: 999, Seq: 3, PlacedAt: now,
	}))

	bids, err := s.BidsForPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, p.Name, bids[0].Player)

	high, err := s.HighBid(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "b-2", high.ID)
	require.Equal(t, int64(200), high.Amount)
}

func TestSettleSoldAtomicEffects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.TakeLive(ctx, p.ID))

	st := auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Team: "MI", Price: 300,
		Trigger: auction.TriggerTimeout, Seq: 5, SettledAt: time.Now(),
	}
	require.NoError(t, s.SettleSold(ctx, st))

	mi, err := s.GetTeam(ctx, "MI")
	require.NoError(t, err)
	require.Equal(t, int64(700), mi.Purse)

	squad, err := s.TeamSquad(ctx, "MI")
	require.NoError(t, err)
	require.Len(t, squad, 1)
	require.Equal(t, p.Name, squad[0].Player.Name)
	require.Equal(t, int64(300), squad[0].Price)

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, auction.PlayerSold, got.Status)

	session, err := s.GetSession(ctx)
	require.NoError(t, err)
	require.Zero(t, session.LivePlayerID)

	// Replaying the same settlement must not deduct twice.
	require.NoError(t, s.SettleSold(ctx, st))
	mi, err = s.GetTeam(ctx, "MI")
	require.NoError(t, err)
	require.Equal(t, int64(700), mi.Purse)
}

func TestSettleSoldInsufficientPurse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)

	err = s.SettleSold(ctx, auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Team: "MI", Price: 5_000,
		Trigger: auction.TriggerAdmin, Seq: 1, SettledAt: time.Now(),
	})
	require.ErrorIs(t, err, ErrInsufficientPurse)

	// Nothing from the failed transaction may persist.
	mi, err := s.GetTeam(ctx, "MI")
	require.NoError(t, err)
	require.Equal(t, int64(1_000), mi.Purse)
	settlements, err := s.Settlements(ctx)
	require.NoError(t, err)
	require.Empty(t, settlements)
}

func TestSettleUnsold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.TakeLive(ctx, p.ID))

	require.NoError(t, s.SettleUnsold(ctx, auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Trigger: auction.TriggerTimeout,
		Seq: 1, SettledAt: time.Now(),
	}))

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, auction.PlayerUnsold, got.Status)

	last, err := s.LastSettlement(ctx)
	require.NoError(t, err)
	require.Equal(t, auction.OutcomeUnsold, last.Outcome)
	require.Empty(t, last.Team)
}

func TestRollbackSale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.TakeLive(ctx, p.ID))
	require.NoError(t, s.SettleSold(ctx, auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Team: "MI", Price: 300,
		Trigger: auction.TriggerAdmin, Seq: 2, SettledAt: time.Now(),
	}))

	require.NoError(t, s.RollbackSettlement(ctx, "s-1", auction.PlayerLive, true))

	mi, err := s.GetTeam(ctx, "MI")
	require.NoError(t, err)
	require.Equal(t, int64(1_000), mi.Purse)

	squad, err := s.TeamSquad(ctx, "MI")
	require.NoError(t, err)
	require.Empty(t, squad)

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, auction.PlayerLive, got.Status)

	session, err := s.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, session.LivePlayerID)

	// The row survives as history and cannot be rolled back twice.
	settlements, err := s.Settlements(ctx)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	require.True(t, settlements[0].RolledBack)

	err = s.RollbackSettlement(ctx, "s-1", auction.PlayerLive, false)
	require.ErrorIs(t, err, ErrAlreadyRolledBack)
}

func TestReleasePlayer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SettleSold(ctx, auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Team: "MI", Price: 300,
		Trigger: auction.TriggerAdmin, Seq: 1, SettledAt: time.Now(),
	}))

	require.NoError(t, s.ReleasePlayer(ctx, p.ID, config.ReleaseNextStart))

	mi, err := s.GetTeam(ctx, "MI")
	require.NoError(t, err)
	require.Equal(t, int64(1_000), mi.Purse)

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, auction.PlayerPending, got.Status)
	require.Equal(t, ReleasedListName, got.List)

	// The released list starts disabled; the player stays out of the
	// rotation until it is enabled.
	next, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NotEqual(t, p.ID, next.ID)

	require.NoError(t, s.SetListEnabled(ctx, ReleasedListName, true))

	// The original sale stays in the ledger untouched.
	settlements, err := s.Settlements(ctx)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	require.False(t, settlements[0].RolledBack)
}

func TestReleasePlayerImmediate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SettleSold(ctx, auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Team: "MI", Price: 300,
		Trigger: auction.TriggerAdmin, Seq: 1, SettledAt: time.Now(),
	}))

	require.NoError(t, s.ReleasePlayer(ctx, p.ID, config.ReleaseImmediate))

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, auction.PlayerPending, got.Status)
	require.Equal(t, "marquee", got.List)

	// Back of the list: the other pending player comes first.
	next, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, "Player Two", next.Name)
}

func TestReleaseUnownedPlayer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	err = s.ReleasePlayer(ctx, p.ID, config.ReleaseNextStart)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecoverRequeuesLiveLot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetSessionStatus(ctx, auction.StatusRunning))
	require.NoError(t, s.TakeLive(ctx, p.ID))

	report, err := s.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, auction.StatusRunning, report.PriorStatus)
	require.Equal(t, p.ID, report.RequeuedPlayerID)

	session, err := s.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, auction.StatusIdle, session.Status)
	require.Zero(t, session.LivePlayerID)

	// The interrupted lot comes up first again.
	next, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, next.ID)
}

func TestLastSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	require.Zero(t, seq)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendBid(ctx, auction.Bid{
		ID: "b-1", PlayerID: p.ID, Team: "MI", UserID: "u-1",
		Amount: 100, Seq: 7, PlacedAt: time.Now(),
	}))
	require.NoError(t, s.SettleSold(ctx, auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Team: "MI", Price: 100,
		Trigger: auction.TriggerTimeout, Seq: 9, SettledAt: time.Now(),
	}))

	seq, err = s.LastSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(9), seq)
}

func TestReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	p, err := s.NextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AppendBid(ctx, auction.Bid{
		ID: "b-1", PlayerID: p.ID, Team: "MI", UserID: "u-1",
		Amount: 300, Seq: 1, PlacedAt: time.Now(),
	}))
	require.NoError(t, s.SettleSold(ctx, auction.Settlement{
		ID: "s-1", PlayerID: p.ID, Team: "MI", Price: 300,
		Trigger: auction.TriggerAdmin, Seq: 2, SettledAt: time.Now(),
	}))
	require.NoError(t, s.AssignUser(ctx, "u-1", "MI"))

	require.NoError(t, s.Reset(ctx))

	mi, err := s.GetTeam(ctx, "MI")
	require.NoError(t, err)
	require.Equal(t, mi.OriginalPurse, mi.Purse)

	squad, err := s.TeamSquad(ctx, "MI")
	require.NoError(t, err)
	require.Empty(t, squad)

	// Ledgers are history and survive a reset.
	bids, err := s.AllBids(ctx)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	settlements, err := s.Settlements(ctx)
	require.NoError(t, err)
	require.Len(t, settlements, 1)

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, auction.PlayerPending, got.Status)

	// User registrations survive a reset.
	team, err := s.UserTeam(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, "MI", team)
}

func TestAssignments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBasic(t, s)

	require.NoError(t, s.AssignUser(ctx, "u-1", "MI"))
	require.NoError(t, s.AssignUser(ctx, "u-1", "CSK")) // reassignment wins

	team, err := s.UserTeam(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, "CSK", team)

	all, err := s.Assignments(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"u-1": "CSK"}, all)

	require.NoError(t, s.UnassignUser(ctx, "u-1"))
	_, err = s.UserTeam(ctx, "u-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
}
