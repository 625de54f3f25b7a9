// Package sweep runs the background maintenance loop: expiring unclaimed
// challenges, force-settling duels stuck past their trading deadline, and
// periodically shipping settled records to cold storage. A distributed lock
// keeps the sweep single-flight across replicas.
package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciblhq/tradeduel/internal/domain"
	"github.com/ciblhq/tradeduel/internal/notify"
)

const lockKey = "sweep:challenges"

// Settler resolves one overdue challenge. Satisfied by
// *service.ChallengeService.
type Settler interface {
	ForceSettle(ctx context.Context, challengeID string) (domain.Challenge, error)
}

// Announcer delivers best-effort notifications. Satisfied by
// *notify.Notifier.
type Announcer interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// Config controls sweep cadence and policy.
type Config struct {
	// Interval between sweep passes.
	Interval time.Duration
	// SettleGrace is the slack past the trading deadline before a duel is
	// force-settled.
	SettleGrace time.Duration
	// ArchiveEvery is how often the cold-storage archive runs; zero disables
	// archiving.
	ArchiveEvery time.Duration
	// Retention is how long terminal challenges stay in the primary store
	// before becoming archive candidates.
	Retention time.Duration
}

// Defaults returns the sweep configuration used when none is provided.
func Defaults() Config {
	return Config{
		Interval:     30 * time.Second,
		SettleGrace:  2 * time.Minute,
		ArchiveEvery: 24 * time.Hour,
		Retention:    30 * 24 * time.Hour,
	}
}

// Sweeper drives the maintenance loop.
type Sweeper struct {
	challenges domain.ChallengeStore
	settler    Settler
	locks      domain.LockManager
	archiver   domain.Archiver
	announcer  Announcer
	bus        domain.SignalBus
	cfg        Config
	logger     *slog.Logger

	lastArchive time.Time
}

// New creates a Sweeper. The archiver may be nil, which disables the
// cold-storage pass.
func New(
	challenges domain.ChallengeStore,
	settler Settler,
	locks domain.LockManager,
	archiver domain.Archiver,
	announcer Announcer,
	bus domain.SignalBus,
	cfg Config,
	logger *slog.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = Defaults().Interval
	}
	return &Sweeper{
		challenges: challenges,
		settler:    settler,
		locks:      locks,
		archiver:   archiver,
		announcer:  announcer,
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "sweeper")),
	}
}

// Run executes sweep passes on the configured interval until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("settle_grace", s.cfg.SettleGrace),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sweep pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep executes a single pass under the distributed lock. A pass that loses
// the lock to another replica is a successful no-op.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, lockKey, s.cfg.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.Debug("sweep lock held elsewhere, skipping pass")
				return nil
			}
			return fmt.Errorf("sweep: acquire lock: %w", err)
		}
		defer unlock()
	}

	now := time.Now().UTC()

	if err := s.expireOpen(ctx, now); err != nil {
		return err
	}
	if err := s.settleOverdue(ctx, now); err != nil {
		return err
	}
	s.maybeArchive(ctx, now)

	return nil
}

// expireOpen bulk-expires unclaimed challenges past their claim window and
// announces each one.
func (s *Sweeper) expireOpen(ctx context.Context, now time.Time) error {
	expired, err := s.challenges.ExpireOpen(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep: expire open: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	s.logger.Info("expired unclaimed challenges", slog.Int("count", len(expired)))

	for _, ch := range expired {
		if s.announcer != nil {
			ev := notify.Event{
				Type:        notify.EventChallengeExpired,
				Title:       "Challenge expired",
				Message:     fmt.Sprintf("⏰ The $%s %s challenge expired unclaimed.", ch.Stake.String(), ch.AssetPair),
				ChallengeID: ch.ID,
			}
			if err := s.announcer.Notify(ctx, ev); err != nil {
				s.logger.Warn("expiry notification failed",
					slog.String("challenge_id", ch.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		s.publish(ctx, "expired", ch)
	}
	return nil
}

// settleOverdue force-settles active challenges whose trading deadline plus
// grace has passed. Each challenge is resolved independently so one failure
// does not starve the rest.
func (s *Sweeper) settleOverdue(ctx context.Context, now time.Time) error {
	overdue, err := s.challenges.ListPastDeadline(ctx, now, s.cfg.SettleGrace)
	if err != nil {
		return fmt.Errorf("sweep: list past deadline: %w", err)
	}

	for _, ch := range overdue {
		if _, err := s.settler.ForceSettle(ctx, ch.ID); err != nil {
			// A concurrent settle already moved it to a terminal state.
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			s.logger.Error("force settle failed",
				slog.String("challenge_id", ch.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Info("force settled overdue challenge", slog.String("challenge_id", ch.ID))
	}
	return nil
}

// maybeArchive ships settled records to cold storage when the archive
// interval has elapsed.
func (s *Sweeper) maybeArchive(ctx context.Context, now time.Time) {
	if s.archiver == nil || s.cfg.ArchiveEvery <= 0 {
		return
	}
	if now.Sub(s.lastArchive) < s.cfg.ArchiveEvery {
		return
	}
	s.lastArchive = now

	cutoff := now.Add(-s.cfg.Retention)

	challenges, err := s.archiver.ArchiveChallenges(ctx, cutoff)
	if err != nil {
		s.logger.Error("challenge archive failed", slog.String("error", err.Error()))
	}
	chat, err := s.archiver.ArchiveChat(ctx, cutoff)
	if err != nil {
		s.logger.Error("chat archive failed", slog.String("error", err.Error()))
	}

	if challenges > 0 || chat > 0 {
		s.logger.Info("archive pass complete",
			slog.Int64("challenges", challenges),
			slog.Int64("chat_messages", chat),
		)
	}
}

func (s *Sweeper) publish(ctx context.Context, event string, ch domain.Challenge) {
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
		s.logger.Debug("publish failed", slog.String("error", err.Error()))
	}
}
