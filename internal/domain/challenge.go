package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChallengeStatus is the lifecycle state of a trading challenge.
type ChallengeStatus string

const (
	// ChallengeOpen means the challenge is waiting for an acceptor.
	ChallengeOpen ChallengeStatus = "open"
	// ChallengeJoined means an acceptor has claimed the challenge but
	// trading has not started (entry prices pending).
	ChallengeJoined ChallengeStatus = "joined"
	// ChallengeActive means both entry prices are recorded and the duel
	// timeframe is running.
	ChallengeActive ChallengeStatus = "active"
	// ChallengeCompleted means the challenge has been settled.
	ChallengeCompleted ChallengeStatus = "completed"
	// ChallengeExpired means the claim window lapsed with no acceptor.
	ChallengeExpired ChallengeStatus = "expired"
	// ChallengeCancelled means the challenge was withdrawn by its creator
	// or voided at the trading deadline with no usable prices.
	ChallengeCancelled ChallengeStatus = "cancelled"
)

// Valid reports whether s is a known lifecycle state.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeOpen, ChallengeJoined, ChallengeActive,
		ChallengeCompleted, ChallengeExpired, ChallengeCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s ChallengeStatus) Terminal() bool {
	switch s {
	case ChallengeCompleted, ChallengeExpired, ChallengeCancelled:
		return true
	}
	return false
}

// Party identifies one side of a challenge.
type Party string

const (
	PartyCreator  Party = "creator"
	PartyAcceptor Party = "acceptor"
)

// PricePhase distinguishes entry from exit price submissions.
type PricePhase string

const (
	PhaseEntry PricePhase = "entry"
	PhaseExit  PricePhase = "exit"
)

// Challenge is a two-party staked trading duel over a fixed asset pair and
// timeframe. Prices and PnL values are nil until written; once written they
// are immutable.
type Challenge struct {
	ID        string `json:"id"`
	CreatorID string `json:"creator_id"`
	// AcceptorID is nil until the challenge is claimed and set exactly once.
	AcceptorID *string         `json:"acceptor_id,omitempty"`
	Stake      decimal.Decimal `json:"stake"`
	AssetPair  string          `json:"asset_pair"`
	Timeframe  time.Duration   `json:"timeframe"`
	Status     ChallengeStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatorEntry  *decimal.Decimal `json:"creator_entry,omitempty"`
	CreatorExit   *decimal.Decimal `json:"creator_exit,omitempty"`
	AcceptorEntry *decimal.Decimal `json:"acceptor_entry,omitempty"`
	AcceptorExit  *decimal.Decimal `json:"acceptor_exit,omitempty"`

	CreatorPnL  *decimal.Decimal `json:"creator_pnl,omitempty"`
	AcceptorPnL *decimal.Decimal `json:"acceptor_pnl,omitempty"`
	WinnerID    *string          `json:"winner_id,omitempty"`
}

// ExpiredAt reports whether the claim window has lapsed at the given time.
// Logical expiry wins over physical state: an open challenge past its expiry
// timestamp is unclaimable even before the sweeper marks it expired.
func (c Challenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// TradingDeadline returns the time at which the duel timeframe elapses.
// The zero time is returned when the challenge has not been joined.
func (c Challenge) TradingDeadline() time.Time {
	if c.JoinedAt == nil {
		return time.Time{}
	}
	return c.JoinedAt.Add(c.Timeframe)
}

// Side returns which party the given user is, or "" when the user is not a
// participant.
func (c Challenge) Side(userID string) Party {
	if userID == c.CreatorID {
		return PartyCreator
	}
	if c.AcceptorID != nil && userID == *c.AcceptorID {
		return PartyAcceptor
	}
	return ""
}

// Price returns the recorded price for the given side and phase, or nil.
func (c Challenge) Price(side Party, phase PricePhase) *decimal.Decimal {
	switch {
	case side == PartyCreator && phase == PhaseEntry:
		return c.CreatorEntry
	case side == PartyCreator && phase == PhaseExit:
		return c.CreatorExit
	case side == PartyAcceptor && phase == PhaseEntry:
		return c.AcceptorEntry
	case side == PartyAcceptor && phase == PhaseExit:
		return c.AcceptorExit
	}
	return nil
}

// SideComplete reports whether both entry and exit prices are recorded for
// the given side.
func (c Challenge) SideComplete(side Party) bool {
	return c.Price(side, PhaseEntry) != nil && c.Price(side, PhaseExit) != nil
}

// PriceState records which price slots are present on a challenge. Timeout
// settlement computes its outcome from an observed PriceState and the store
// re-asserts that state in the settling update, so a price accepted after
// the observation fails the transition instead of being overridden.
type PriceState struct {
	CreatorEntry  bool
	CreatorExit   bool
	AcceptorEntry bool
	AcceptorExit  bool
}

// PriceState returns the challenge's current price slot occupancy.
func (c Challenge) PriceState() PriceState {
	return PriceState{
		CreatorEntry:  c.CreatorEntry != nil,
		CreatorExit:   c.CreatorExit != nil,
		AcceptorEntry: c.AcceptorEntry != nil,
		AcceptorExit:  c.AcceptorExit != nil,
	}
}

// AssetPairs is the fixed set of tradable pairs.
var AssetPairs = []string{"SOL/USDC", "SOL/USDT", "ETH/USDC", "BTC/USDC"}

// ValidAssetPair reports whether pair is one of the supported pairs.
func ValidAssetPair(pair string) bool {
	for _, p := range AssetPairs {
		if p == pair {
			return true
		}
	}
	return false
}
