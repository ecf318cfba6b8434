// Package auction defines the domain types shared by the engine, the
// store, and the command layers: teams, players, bids, and settlements.
//
// All monetary amounts are integer rupees (int64). The auction has no
// fractional currency, so no decimal type is needed.
package auction

import "time"

// SessionStatus is the lifecycle state of the single auction session.
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusRunning SessionStatus = "running"
	StatusPaused  SessionStatus = "paused"
	StatusStopped SessionStatus = "stopped"
)

// LotPhase is the bidding phase of the current lot.
type LotPhase string

const (
	// PhaseAwaitingFirstBid: the lot is announced but nobody has bid yet.
	// The idle timer is running; expiry settles the lot Unsold.
	PhaseAwaitingFirstBid LotPhase = "awaiting_first_bid"
	// PhaseOpenBidding: at least one bid has been accepted. The extension
	// timer slides forward on every accepted bid.
	PhaseOpenBidding LotPhase = "open_bidding"
)

// Team is a bidding entity with a budget (purse) and a roster (squad).
// Purse and squad are mutated only by engine settlement, rollback, and
// release operations.
type Team struct {
	Code          string
	Purse         int64
	OriginalPurse int64
}

// SquadEntry is one acquired player on a team's roster.
type SquadEntry struct {
	Player Player
	Price  int64
	// Seq is the settlement sequence that created the entry.
	Seq int64
}

// List is an ordered group of players. The rotation walks enabled
// lists in position order, then each list's players in position order.
type List struct {
	Name     string
	Position int64
	Enabled  bool
}

// PlayerStatus tracks where a player sits in the rotation.
type PlayerStatus string

const (
	// PlayerPending: waiting in an ordered list to be announced.
	PlayerPending PlayerStatus = "pending"
	// PlayerLive: currently on the block.
	PlayerLive PlayerStatus = "live"
	// PlayerSold / PlayerUnsold: settled; out of the rotation unless
	// rolled back or released.
	PlayerSold   PlayerStatus = "sold"
	PlayerUnsold PlayerStatus = "unsold"
)

// Player is one item offered for auction. Identity and base price are
// immutable after import; only Status (and Position, on requeue) change.
type Player struct {
	ID        int64
	Name      string
	List      string
	Position  int64
	BasePrice int64
	Status    PlayerStatus
}

// Bid is one accepted bid. Bids are append-only: a bid is never modified
// or deleted once it has been admitted, even if the sale it led to is
// later rolled back.
type Bid struct {
	ID       string
	PlayerID int64
	Player   string
	Team     string
	UserID   string
	Amount   int64
	Seq      int64
	PlacedAt time.Time
}

// Outcome is the terminal resolution of a lot.
type Outcome string

const (
	OutcomeSold   Outcome = "sold"
	OutcomeUnsold Outcome = "unsold"
)

// Trigger records what caused a settlement.
type Trigger string

const (
	TriggerTimeout Trigger = "timeout"
	TriggerAdmin   Trigger = "admin"
)

// Settlement is one append-only audit record. The most recent Sold
// settlement is the sole rollback target.
type Settlement struct {
	ID        string
	PlayerID  int64
	Player    string
	Outcome   Outcome
	Team      string // empty for unsold
	Price     int64  // zero for unsold
	Trigger   Trigger
	Seq       int64
	SettledAt time.Time
	// RolledBack marks a settlement that was undone; the row is kept for
	// audit instead of being deleted.
	RolledBack bool
}

// Sold reports whether the settlement resolved to a sale.
func (s Settlement) Sold() bool { return s.Outcome == OutcomeSold }
