package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// ChallengeStore implements domain.ChallengeStore using PostgreSQL. Every
// lifecycle transition is a single conditional UPDATE whose WHERE clause
// embeds the expected prior state, so races on the same row resolve at the
// storage layer: one writer's predicate matches, everyone else's does not.
type ChallengeStore struct {
	pool *pgxpool.Pool
}

// NewChallengeStore creates a ChallengeStore backed by the given pool.
func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

const challengeCols = `id, creator_id, acceptor_id, stake, asset_pair, timeframe_seconds,
	status, created_at, expires_at, joined_at, completed_at,
	creator_entry, creator_exit, acceptor_entry, acceptor_exit,
	creator_pnl, acceptor_pnl, winner_id`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (domain.Challenge, error) {
	var ch domain.Challenge
	var timeframeSec int64
	var status string
	err := row.Scan(
		&ch.ID, &ch.CreatorID, &ch.AcceptorID, &ch.Stake, &ch.AssetPair, &timeframeSec,
		&status, &ch.CreatedAt, &ch.ExpiresAt, &ch.JoinedAt, &ch.CompletedAt,
		&ch.CreatorEntry, &ch.CreatorExit, &ch.AcceptorEntry, &ch.AcceptorExit,
		&ch.CreatorPnL, &ch.AcceptorPnL, &ch.WinnerID,
	)
	if err != nil {
		return domain.Challenge{}, err
	}
	ch.Timeframe = time.Duration(timeframeSec) * time.Second
	ch.Status = domain.ChallengeStatus(status)
	return ch, nil
}

// Create inserts a new open challenge.
func (s *ChallengeStore) Create(ctx context.Context, ch domain.Challenge) error {
	const query = `
		INSERT INTO challenges (id, creator_id, stake, asset_pair, timeframe_seconds, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		ch.ID, ch.CreatorID, ch.Stake, ch.AssetPair, int64(ch.Timeframe/time.Second),
		string(ch.Status), ch.CreatedAt, ch.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert challenge %s: %w", ch.ID, err)
	}
	return nil
}

// GetByID returns a single challenge by identifier.
func (s *ChallengeStore) GetByID(ctx context.Context, id string) (domain.Challenge, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+challengeCols+` FROM challenges WHERE id = $1`, id)
	ch, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Challenge{}, domain.ErrNotFound
		}
		return domain.Challenge{}, fmt.Errorf("postgres: get challenge %s: %w", id, err)
	}
	return ch, nil
}

// List returns challenges matching the filter, newest first.
func (s *ChallengeStore) List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error) {
	query := `SELECT ` + challengeCols + ` FROM challenges`
	var conds []string
	var args []any

	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("(creator_id = $%d OR acceptor_id = $%d)", len(args), len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

func collectChallenges(rows pgx.Rows) ([]domain.Challenge, error) {
	var list []domain.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ch)
	}
	return list, rows.Err()
}

// Claim transitions open -> joined for the given acceptor in one conditional
// update. When the predicate does not match, the current row is read once to
// classify the rejection; the classification read happens after the atomic
// attempt and never influences it.
func (s *ChallengeStore) Claim(ctx context.Context, id, acceptorID string, now time.Time) (domain.Challenge, error) {
	const query = `
		UPDATE challenges SET
			acceptor_id = $2,
			status      = 'joined',
			joined_at   = $3
		WHERE id = $1
		  AND status = 'open'
		  AND expires_at > $3
		  AND creator_id <> $2
		RETURNING ` + challengeCols

	row := s.pool.QueryRow(ctx, query, id, acceptorID, now)
	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("postgres: claim challenge %s: %w", id, err)
	}

	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	return domain.Challenge{}, classifyClaimFailure(cur, acceptorID, now)
}

// classifyClaimFailure maps the observed row state to the claim error
// taxonomy. Self-claim wins over every other reason; logical expiry wins
// over a stored status that still reads open. A cancelled challenge was
// never claimed, so it reports an invalid transition rather than a lost
// claim race.
func classifyClaimFailure(cur domain.Challenge, acceptorID string, now time.Time) error {
	if cur.CreatorID == acceptorID {
		return domain.ErrForbidden
	}
	if cur.Status == domain.ChallengeExpired || (cur.Status == domain.ChallengeOpen && cur.ExpiredAt(now)) {
		return domain.ErrExpired
	}
	if cur.Status == domain.ChallengeCancelled {
		return domain.ErrInvalidTransition
	}
	return domain.ErrAlreadyClaimed
}

// priceColumn maps a side/phase pair to its table column. The column name is
// chosen from a fixed set, never caller input.
func priceColumn(side domain.Party, phase domain.PricePhase) (string, bool) {
	switch {
	case side == domain.PartyCreator && phase == domain.PhaseEntry:
		return "creator_entry", true
	case side == domain.PartyCreator && phase == domain.PhaseExit:
		return "creator_exit", true
	case side == domain.PartyAcceptor && phase == domain.PhaseEntry:
		return "acceptor_entry", true
	case side == domain.PartyAcceptor && phase == domain.PhaseExit:
		return "acceptor_exit", true
	}
	return "", false
}

// SetPrice records a write-once price observation for one side. Entry prices
// are accepted while joined or active; exit prices require active.
func (s *ChallengeStore) SetPrice(ctx context.Context, id string, side domain.Party, phase domain.PricePhase, price decimal.Decimal) (domain.Challenge, error) {
	col, ok := priceColumn(side, phase)
	if !ok {
		return domain.Challenge{}, fmt.Errorf("postgres: set price: unknown side %q phase %q", side, phase)
	}

	statuses := `'active'`
	if phase == domain.PhaseEntry {
		statuses = `'joined', 'active'`
	}

	query := `
		UPDATE challenges SET ` + col + ` = $2
		WHERE id = $1
		  AND status IN (` + statuses + `)
		  AND ` + col + ` IS NULL
		RETURNING ` + challengeCols

	row := s.pool.QueryRow(ctx, query, id, price)
	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("postgres: set %s for challenge %s: %w", col, id, err)
	}

	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	if cur.Price(side, phase) != nil {
		return domain.Challenge{}, domain.ErrPriceLocked
	}
	return domain.Challenge{}, domain.ErrInvalidTransition
}

// Activate transitions joined -> active once both entry prices are present.
// Losing the transition race to a concurrent activator is not an error as
// long as the challenge reached active.
func (s *ChallengeStore) Activate(ctx context.Context, id string) (domain.Challenge, error) {
	const query = `
		UPDATE challenges SET status = 'active'
		WHERE id = $1
		  AND status = 'joined'
		  AND creator_entry IS NOT NULL
		  AND acceptor_entry IS NOT NULL
		RETURNING ` + challengeCols

	row := s.pool.QueryRow(ctx, query, id)
	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("postgres: activate challenge %s: %w", id, err)
	}

	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	if cur.Status == domain.ChallengeActive {
		return cur, nil
	}
	if cur.Status == domain.ChallengeJoined {
		return domain.Challenge{}, domain.ErrIncompleteData
	}
	return domain.Challenge{}, domain.ErrInvalidTransition
}

// Settle transitions active -> completed exactly once, writing both PnL
// values and the winner reference.
func (s *ChallengeStore) Settle(ctx context.Context, id string, out domain.SettlementOutcome, now time.Time) (domain.Challenge, error) {
	const query = `
		UPDATE challenges SET
			status       = 'completed',
			creator_pnl  = $2,
			acceptor_pnl = $3,
			winner_id    = $4,
			completed_at = $5
		WHERE id = $1
		  AND status = 'active'
		RETURNING ` + challengeCols

	row := s.pool.QueryRow(ctx, query, id, out.CreatorPnL, out.AcceptorPnL, out.WinnerID, now)
	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("postgres: settle challenge %s: %w", id, err)
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		return domain.Challenge{}, err
	}
	return domain.Challenge{}, domain.ErrInvalidTransition
}

// emptySlotPredicate renders the still-empty assertion for a timeout
// transition: every price column that was unset when the outcome was
// computed must still be unset when it is written.
func emptySlotPredicate(seen domain.PriceState) string {
	pred := ""
	for col, present := range map[string]bool{
		"creator_entry":  seen.CreatorEntry,
		"creator_exit":   seen.CreatorExit,
		"acceptor_entry": seen.AcceptorEntry,
		"acceptor_exit":  seen.AcceptorExit,
	} {
		if !present {
			pred += "\n\t\t  AND " + col + " IS NULL"
		}
	}
	return pred
}

// classifyTimeoutFailure distinguishes a lost lifecycle race from a price
// slot filling in after the timeout outcome was computed.
func (s *ChallengeStore) classifyTimeoutFailure(ctx context.Context, id string) error {
	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == domain.ChallengeActive {
		return domain.ErrPriceLocked
	}
	return domain.ErrInvalidTransition
}

// SettleTimeout completes an active challenge with a forfeit outcome. The
// predicate covers both the status and the price slots the outcome was
// computed from.
func (s *ChallengeStore) SettleTimeout(ctx context.Context, id string, out domain.SettlementOutcome, seen domain.PriceState, now time.Time) (domain.Challenge, error) {
	query := `
		UPDATE challenges SET
			status       = 'completed',
			creator_pnl  = $2,
			acceptor_pnl = $3,
			winner_id    = $4,
			completed_at = $5
		WHERE id = $1
		  AND status = 'active'` + emptySlotPredicate(seen) + `
		RETURNING ` + challengeCols

	row := s.pool.QueryRow(ctx, query, id, out.CreatorPnL, out.AcceptorPnL, out.WinnerID, now)
	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("postgres: timeout-settle challenge %s: %w", id, err)
	}
	return domain.Challenge{}, s.classifyTimeoutFailure(ctx, id)
}

// Void cancels an active challenge at the trading deadline when neither side
// produced a usable price set.
func (s *ChallengeStore) Void(ctx context.Context, id string, seen domain.PriceState, now time.Time) (domain.Challenge, error) {
	query := `
		UPDATE challenges SET
			status       = 'cancelled',
			completed_at = $2
		WHERE id = $1
		  AND status = 'active'` + emptySlotPredicate(seen) + `
		RETURNING ` + challengeCols

	row := s.pool.QueryRow(ctx, query, id, now)
	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("postgres: void challenge %s: %w", id, err)
	}
	return domain.Challenge{}, s.classifyTimeoutFailure(ctx, id)
}

// Cancel withdraws an open challenge; only its creator may do so.
func (s *ChallengeStore) Cancel(ctx context.Context, id, creatorID string) (domain.Challenge, error) {
	const query = `
		UPDATE challenges SET status = 'cancelled'
		WHERE id = $1
		  AND status = 'open'
		  AND creator_id = $2
		RETURNING ` + challengeCols

	row := s.pool.QueryRow(ctx, query, id, creatorID)
	ch, err := scanChallenge(row)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, fmt.Errorf("postgres: cancel challenge %s: %w", id, err)
	}

	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	if cur.CreatorID != creatorID {
		return domain.Challenge{}, domain.ErrForbidden
	}
	return domain.Challenge{}, domain.ErrInvalidTransition
}

// ExpireOpen bulk-marks open challenges past their expiry timestamp and
// returns the expired records.
func (s *ChallengeStore) ExpireOpen(ctx context.Context, now time.Time) ([]domain.Challenge, error) {
	const query = `
		UPDATE challenges SET status = 'expired'
		WHERE status = 'open'
		  AND expires_at <= $1
		RETURNING ` + challengeCols

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: expire open challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

// ListPastDeadline returns active challenges whose trading deadline plus
// grace has passed.
func (s *ChallengeStore) ListPastDeadline(ctx context.Context, now time.Time, grace time.Duration) ([]domain.Challenge, error) {
	const query = `
		SELECT ` + challengeCols + ` FROM challenges
		WHERE status = 'active'
		  AND joined_at + make_interval(secs => timeframe_seconds + $2) <= $1
		ORDER BY joined_at`

	rows, err := s.pool.Query(ctx, query, now, int64(grace/time.Second))
	if err != nil {
		return nil, fmt.Errorf("postgres: list past-deadline challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

// ListSettledBefore returns terminal challenges older than the cutoff for
// cold-storage archival.
func (s *ChallengeStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Challenge, error) {
	const query = `
		SELECT ` + challengeCols + ` FROM challenges
		WHERE status IN ('completed', 'expired', 'cancelled')
		  AND COALESCE(completed_at, expires_at, created_at) < $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled challenges: %w", err)
	}
	defer rows.Close()
	return collectChallenges(rows)
}

// Compile-time interface check.
var _ domain.ChallengeStore = (*ChallengeStore)(nil)
