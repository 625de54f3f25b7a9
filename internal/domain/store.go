package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ChallengeFilter narrows challenge list queries.
type ChallengeFilter struct {
	Status ChallengeStatus // empty matches all states
	UserID string          // matches creator or acceptor when set
	ListOpts
}

// SettlementOutcome is the computed result written by the one-time
// settlement transition.
type SettlementOutcome struct {
	CreatorPnL  decimal.Decimal
	AcceptorPnL decimal.Decimal
	// WinnerID is nil on an exact PnL tie.
	WinnerID *string
}

// ChallengeStore persists challenges. Every state transition is an atomic
// conditional update: the expected prior state is part of the storage-level
// predicate, so concurrent writers resolve to exactly one winner and the
// losers observe a typed rejection. Callers never read-modify-write.
type ChallengeStore interface {
	Create(ctx context.Context, ch Challenge) error
	GetByID(ctx context.Context, id string) (Challenge, error)
	List(ctx context.Context, f ChallengeFilter) ([]Challenge, error)

	// Claim transitions open -> joined for the given acceptor. The predicate
	// requires status=open, expiry in the future, and creator != acceptor.
	// Failures are classified as ErrNotFound, ErrAlreadyClaimed, ErrExpired
	// or ErrForbidden.
	Claim(ctx context.Context, id, acceptorID string, now time.Time) (Challenge, error)

	// SetPrice records a write-once price observation. Entry prices are
	// accepted while joined or active, exit prices only while active.
	// A second write to the same slot fails with ErrPriceLocked.
	SetPrice(ctx context.Context, id string, side Party, phase PricePhase, price decimal.Decimal) (Challenge, error)

	// Activate transitions joined -> active once both entry prices are
	// present. It is idempotent-safe: losing the transition race is not an
	// error as long as the challenge reached active.
	Activate(ctx context.Context, id string) (Challenge, error)

	// Settle transitions active -> completed exactly once, writing both PnL
	// values and the winner. A non-active challenge fails with
	// ErrInvalidTransition. Prices are write-once, so an outcome computed
	// from four present prices cannot go stale under this predicate.
	Settle(ctx context.Context, id string, out SettlementOutcome, now time.Time) (Challenge, error)

	// SettleTimeout applies a forfeit outcome at the trading deadline. The
	// update predicate additionally asserts every price slot that was empty
	// in seen is still empty; a price accepted after the outcome was
	// computed fails the transition with ErrPriceLocked so the caller
	// recomputes from fresh state.
	SettleTimeout(ctx context.Context, id string, out SettlementOutcome, seen PriceState, now time.Time) (Challenge, error)

	// Void transitions active -> cancelled at the trading deadline when
	// neither side produced usable prices. Like SettleTimeout it asserts
	// the empty slots in seen are still empty, failing with ErrPriceLocked
	// when one filled in the meantime.
	Void(ctx context.Context, id string, seen PriceState, now time.Time) (Challenge, error)

	// Cancel lets the creator withdraw their own open challenge.
	Cancel(ctx context.Context, id, creatorID string) (Challenge, error)

	// ExpireOpen bulk-marks open challenges past their expiry timestamp and
	// returns the expired records.
	ExpireOpen(ctx context.Context, now time.Time) ([]Challenge, error)

	// ListPastDeadline returns active challenges whose trading deadline
	// (joined_at + timeframe + grace) has passed.
	ListPastDeadline(ctx context.Context, now time.Time, grace time.Duration) ([]Challenge, error)

	// ListSettledBefore returns challenges in a terminal state whose
	// completion (or creation, for never-completed records) precedes the
	// cutoff. Used by the cold-storage archiver.
	ListSettledBefore(ctx context.Context, before time.Time) ([]Challenge, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	Upsert(ctx context.Context, p Profile) error
	GetByID(ctx context.Context, id string) (Profile, error)
	GetByUsername(ctx context.Context, username string) (Profile, error)
}

// ChatStore persists lobby chat messages.
type ChatStore interface {
	Append(ctx context.Context, msg ChatMessage) (ChatMessage, error)
	ListRecent(ctx context.Context, room string, opts ListOpts) ([]ChatMessage, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
