package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ciblhq/tradeduel/internal/domain"
	"github.com/ciblhq/tradeduel/internal/notify"
)

// Announcer delivers best-effort user-facing notifications. Satisfied by
// *notify.Notifier.
type Announcer interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// ChallengeConfig bounds the terms a challenge may be created with.
type ChallengeConfig struct {
	// ClaimWindow is how long a challenge stays claimable after creation.
	ClaimWindow time.Duration
	// MinStake and MaxStake bound the stake in USD.
	MinStake decimal.Decimal
	MaxStake decimal.Decimal
	// MinTimeframe and MaxTimeframe bound the duel duration.
	MinTimeframe time.Duration
	MaxTimeframe time.Duration
	// SettleGrace is how long past the trading deadline the sweeper waits
	// before forcing settlement.
	SettleGrace time.Duration
	// CreateLimit caps challenge creations per user per minute; ClaimLimit
	// caps claim attempts per user per minute. Zero disables the limit.
	CreateLimit int
	ClaimLimit  int
}

// ChallengeService owns the challenge lifecycle: create, claim, price
// submission, settlement, and cancellation. All state transitions go through
// the store's atomic conditional updates; the service itself holds no
// mutable state.
type ChallengeService struct {
	challenges domain.ChallengeStore
	profiles   domain.ProfileStore
	limiter    domain.RateLimiter
	bus        domain.SignalBus
	audit      domain.AuditStore
	announcer  Announcer
	cfg        ChallengeConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewChallengeService creates a ChallengeService with all required
// dependencies.
func NewChallengeService(
	challenges domain.ChallengeStore,
	profiles domain.ProfileStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	announcer Announcer,
	cfg ChallengeConfig,
	logger *slog.Logger,
) *ChallengeService {
	return &ChallengeService{
		challenges: challenges,
		profiles:   profiles,
		limiter:    limiter,
		bus:        bus,
		audit:      audit,
		announcer:  announcer,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "challenge_service")),
		now:        time.Now,
	}
}

// CreateParams are the caller-supplied terms of a new challenge.
type CreateParams struct {
	Stake     decimal.Decimal `json:"stake"`
	AssetPair string          `json:"asset_pair"`
	Timeframe time.Duration   `json:"timeframe"`
}

// Create opens a new challenge for the session user.
func (s *ChallengeService) Create(ctx context.Context, sess domain.Session, p CreateParams) (domain.Challenge, error) {
	if sess.Anonymous() {
		return domain.Challenge{}, domain.ErrForbidden
	}
	if err := s.validateParams(p); err != nil {
		return domain.Challenge{}, err
	}
	if err := s.allow(ctx, "challenge:create:"+sess.UserID, s.cfg.CreateLimit); err != nil {
		return domain.Challenge{}, err
	}

	now := s.now().UTC()
	ch := domain.Challenge{
		ID:        uuid.New().String(),
		CreatorID: sess.UserID,
		Stake:     p.Stake,
		AssetPair: p.AssetPair,
		Timeframe: p.Timeframe,
		Status:    domain.ChallengeOpen,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ClaimWindow),
	}

	if err := s.challenges.Create(ctx, ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("challenge_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "challenge created",
		slog.String("challenge_id", ch.ID),
		slog.String("creator_id", ch.CreatorID),
		slog.String("asset_pair", ch.AssetPair),
		slog.String("stake", ch.Stake.String()),
	)

	s.auditLog(ctx, "challenge.created", map[string]any{
		"challenge_id": ch.ID,
		"creator_id":   ch.CreatorID,
		"stake":        ch.Stake.String(),
		"asset_pair":   ch.AssetPair,
	})
	s.announce(ctx, notify.Event{
		Type:        notify.EventChallengeCreated,
		Title:       "New challenge",
		Message:     fmt.Sprintf("🚀 @%s opened a $%s %s challenge. Claim it before it expires!", s.username(ctx, sess), ch.Stake.String(), ch.AssetPair),
		ChallengeID: ch.ID,
		UserID:      sess.UserID,
	})
	s.publish(ctx, "created", ch)

	return ch, nil
}

func (s *ChallengeService) validateParams(p CreateParams) error {
	if !domain.ValidAssetPair(p.AssetPair) {
		return fmt.Errorf("unsupported asset pair %q: %w", p.AssetPair, domain.ErrInvalidTransition)
	}
	if p.Stake.LessThan(s.cfg.MinStake) || p.Stake.GreaterThan(s.cfg.MaxStake) {
		return fmt.Errorf("stake %s outside [%s, %s]: %w", p.Stake, s.cfg.MinStake, s.cfg.MaxStake, domain.ErrInvalidTransition)
	}
	if p.Timeframe < s.cfg.MinTimeframe || p.Timeframe > s.cfg.MaxTimeframe {
		return fmt.Errorf("timeframe %s outside [%s, %s]: %w", p.Timeframe, s.cfg.MinTimeframe, s.cfg.MaxTimeframe, domain.ErrInvalidTransition)
	}
	return nil
}

// Claim joins the session user to an open challenge. The storage layer
// resolves concurrent claims: exactly one caller wins, everyone else gets a
// typed rejection.
func (s *ChallengeService) Claim(ctx context.Context, sess domain.Session, challengeID string) (domain.Challenge, error) {
	if sess.Anonymous() {
		return domain.Challenge{}, domain.ErrForbidden
	}
	if err := s.allow(ctx, "challenge:claim:"+sess.UserID, s.cfg.ClaimLimit); err != nil {
		return domain.Challenge{}, err
	}

	ch, err := s.challenges.Claim(ctx, challengeID, sess.UserID, s.now().UTC())
	if err != nil {
		return domain.Challenge{}, err
	}

	s.logger.InfoContext(ctx, "challenge claimed",
		slog.String("challenge_id", ch.ID),
		slog.String("acceptor_id", sess.UserID),
	)

	s.auditLog(ctx, "challenge.claimed", map[string]any{
		"challenge_id": ch.ID,
		"acceptor_id":  sess.UserID,
	})
	s.announce(ctx, notify.Event{
		Type:        notify.EventChallengeClaimed,
		Title:       "Challenge claimed",
		Message:     fmt.Sprintf("🎉 @%s joined the $%s %s challenge!", s.username(ctx, sess), ch.Stake.String(), ch.AssetPair),
		ChallengeID: ch.ID,
		UserID:      sess.UserID,
	})
	s.publish(ctx, "claimed", ch)

	return ch, nil
}

// SubmitPrice records a write-once entry or exit price for the session
// user's side of the challenge. When both entry prices are in, the challenge
// advances to active.
func (s *ChallengeService) SubmitPrice(ctx context.Context, sess domain.Session, challengeID string, phase domain.PricePhase, price decimal.Decimal) (domain.Challenge, error) {
	if sess.Anonymous() {
		return domain.Challenge{}, domain.ErrForbidden
	}
	if phase != domain.PhaseEntry && phase != domain.PhaseExit {
		return domain.Challenge{}, fmt.Errorf("unknown price phase %q: %w", phase, domain.ErrInvalidTransition)
	}
	if !price.IsPositive() {
		return domain.Challenge{}, fmt.Errorf("price must be positive: %w", domain.ErrIncompleteData)
	}

	// The read resolves which side the caller is; the write-once and state
	// preconditions live in the conditional update itself.
	cur, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	side := cur.Side(sess.UserID)
	if side == "" {
		return domain.Challenge{}, domain.ErrForbidden
	}

	ch, err := s.challenges.SetPrice(ctx, challengeID, side, phase, price)
	if err != nil {
		return domain.Challenge{}, err
	}

	s.logger.InfoContext(ctx, "price recorded",
		slog.String("challenge_id", ch.ID),
		slog.String("side", string(side)),
		slog.String("phase", string(phase)),
		slog.String("price", price.String()),
	)

	if phase == domain.PhaseEntry && ch.CreatorEntry != nil && ch.AcceptorEntry != nil && ch.Status == domain.ChallengeJoined {
		activated, err := s.challenges.Activate(ctx, challengeID)
		if err != nil {
			return domain.Challenge{}, err
		}
		ch = activated
		s.publish(ctx, "activated", ch)
	}

	s.publish(ctx, "price_recorded", ch)
	return ch, nil
}

// Settle computes PnL and the winner for an active, fully priced challenge
// and completes it. The completed transition is guarded at the storage layer
// so a second settle attempt is rejected without touching the stored
// outcome.
func (s *ChallengeService) Settle(ctx context.Context, challengeID string) (domain.Challenge, error) {
	cur, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if cur.Status != domain.ChallengeActive {
		return domain.Challenge{}, domain.ErrInvalidTransition
	}

	out, err := ComputeOutcome(cur)
	if err != nil {
		return domain.Challenge{}, err
	}

	ch, err := s.challenges.Settle(ctx, challengeID, out, s.now().UTC())
	if err != nil {
		return domain.Challenge{}, err
	}

	s.finishSettlement(ctx, ch)
	return ch, nil
}

// ForceSettle resolves an active challenge past its trading deadline using
// the timeout policy: an unpriced side forfeits; with no usable prices at
// all the challenge voids. Called by the sweeper. The timeout write asserts
// the price slots the outcome was computed from, so a price landing between
// the read and the write fails the transition and the outcome is recomputed
// from the fresh state.
func (s *ChallengeService) ForceSettle(ctx context.Context, challengeID string) (domain.Challenge, error) {
	for {
		cur, err := s.challenges.GetByID(ctx, challengeID)
		if err != nil {
			return domain.Challenge{}, err
		}
		if cur.Status != domain.ChallengeActive {
			return domain.Challenge{}, domain.ErrInvalidTransition
		}

		out, void := ComputeTimeoutOutcome(cur)
		seen := cur.PriceState()

		if void {
			ch, err := s.challenges.Void(ctx, challengeID, seen, s.now().UTC())
			if errors.Is(err, domain.ErrPriceLocked) {
				continue
			}
			if err != nil {
				return domain.Challenge{}, err
			}
			s.logger.InfoContext(ctx, "challenge voided at deadline",
				slog.String("challenge_id", ch.ID),
			)
			s.auditLog(ctx, "challenge.voided", map[string]any{"challenge_id": ch.ID})
			s.publish(ctx, "voided", ch)
			return ch, nil
		}

		ch, err := s.challenges.SettleTimeout(ctx, challengeID, out, seen, s.now().UTC())
		if errors.Is(err, domain.ErrPriceLocked) {
			continue
		}
		if err != nil {
			return domain.Challenge{}, err
		}

		s.finishSettlement(ctx, ch)
		return ch, nil
	}
}

func (s *ChallengeService) finishSettlement(ctx context.Context, ch domain.Challenge) {
	s.logger.InfoContext(ctx, "challenge settled",
		slog.String("challenge_id", ch.ID),
		slog.String("creator_pnl", deref(ch.CreatorPnL)),
		slog.String("acceptor_pnl", deref(ch.AcceptorPnL)),
		slog.Bool("tie", ch.WinnerID == nil),
	)

	detail := map[string]any{
		"challenge_id": ch.ID,
		"creator_pnl":  deref(ch.CreatorPnL),
		"acceptor_pnl": deref(ch.AcceptorPnL),
	}
	message := fmt.Sprintf("🤝 The $%s %s challenge ended in an exact tie. No winner!", ch.Stake.String(), ch.AssetPair)
	if ch.WinnerID != nil {
		detail["winner_id"] = *ch.WinnerID
		message = fmt.Sprintf("🏆 @%s won the $%s %s challenge!", s.usernameByID(ctx, *ch.WinnerID), ch.Stake.String(), ch.AssetPair)
	}

	s.auditLog(ctx, "challenge.settled", detail)
	s.announce(ctx, notify.Event{
		Type:        notify.EventChallengeCompleted,
		Title:       "Challenge settled",
		Message:     message,
		ChallengeID: ch.ID,
	})
	s.publish(ctx, "completed", ch)
}

// Cancel withdraws the session user's own open challenge.
func (s *ChallengeService) Cancel(ctx context.Context, sess domain.Session, challengeID string) (domain.Challenge, error) {
	if sess.Anonymous() {
		return domain.Challenge{}, domain.ErrForbidden
	}

	ch, err := s.challenges.Cancel(ctx, challengeID, sess.UserID)
	if err != nil {
		return domain.Challenge{}, err
	}

	s.auditLog(ctx, "challenge.cancelled", map[string]any{
		"challenge_id": ch.ID,
		"creator_id":   sess.UserID,
	})
	s.publish(ctx, "cancelled", ch)
	return ch, nil
}

// Get returns a single challenge.
func (s *ChallengeService) Get(ctx context.Context, challengeID string) (domain.Challenge, error) {
	return s.challenges.GetByID(ctx, challengeID)
}

// List returns challenges matching the filter.
func (s *ChallengeService) List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error) {
	return s.challenges.List(ctx, f)
}

// allow applies a per-user sliding-window limit; zero limits disable it.
func (s *ChallengeService) allow(ctx context.Context, key string, limit int) error {
	if limit <= 0 || s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, key, limit, time.Minute)
	if err != nil {
		// Fail open: the limiter is protective, not load-bearing.
		s.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// announce delivers a notification, swallowing failures: delivery is not
// part of any transition's contract.
func (s *ChallengeService) announce(ctx context.Context, ev notify.Event) {
	if s.announcer == nil {
		return
	}
	if err := s.announcer.Notify(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// publish emits a lobby event on the signal bus, best-effort.
func (s *ChallengeService) publish(ctx context.Context, event string, ch domain.Challenge) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(struct {
		Event     string           `json:"event"`
		Challenge domain.Challenge `json:"challenge"`
	}{Event: event, Challenge: ch})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "ch:challenge", payload); err != nil {
		s.logger.WarnContext(ctx, "publish lobby event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ChallengeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// username resolves a display name for the session user, falling back to the
// raw ID.
func (s *ChallengeService) username(ctx context.Context, sess domain.Session) string {
	if sess.Username != "" {
		return sess.Username
	}
	return s.usernameByID(ctx, sess.UserID)
}

func (s *ChallengeService) usernameByID(ctx context.Context, userID string) string {
	if s.profiles != nil {
		if p, err := s.profiles.GetByID(ctx, userID); err == nil && p.Username != "" {
			return p.Username
		}
	}
	return userID
}

func deref(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
