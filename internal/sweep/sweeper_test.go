package sweep

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciblhq/tradeduel/internal/domain"
	"github.com/ciblhq/tradeduel/internal/notify"
)

// sweepStore fakes only the queries the sweeper issues; the embedded
// interface panics on anything else.
type sweepStore struct {
	domain.ChallengeStore
	expired []domain.Challenge
	overdue []domain.Challenge

	expireCalls int
}

func (s *sweepStore) ExpireOpen(ctx context.Context, now time.Time) ([]domain.Challenge, error) {
	s.expireCalls++
	return s.expired, nil
}

func (s *sweepStore) ListPastDeadline(ctx context.Context, now time.Time, grace time.Duration) ([]domain.Challenge, error) {
	return s.overdue, nil
}

type fakeSettler struct {
	settled []string
	err     error
}

func (f *fakeSettler) ForceSettle(ctx context.Context, challengeID string) (domain.Challenge, error) {
	if f.err != nil {
		return domain.Challenge{}, f.err
	}
	f.settled = append(f.settled, challengeID)
	return domain.Challenge{ID: challengeID, Status: domain.ChallengeCompleted}, nil
}

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() { f.released++ }, nil
}

type fakeArchiver struct {
	challenges int64
	chat       int64
	cutoffs    []time.Time
}

func (f *fakeArchiver) ArchiveChallenges(ctx context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return f.challenges, nil
}

func (f *fakeArchiver) ArchiveChat(ctx context.Context, before time.Time) (int64, error) {
	return f.chat, nil
}

type fakeAnnouncer struct {
	events []notify.Event
}

func (f *fakeAnnouncer) Notify(ctx context.Context, ev notify.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expiredChallenge(id string) domain.Challenge {
	return domain.Challenge{
		ID:        id,
		Stake:     decimal.NewFromInt(10),
		AssetPair: "SOL/USDC",
		Status:    domain.ChallengeExpired,
	}
}

func TestSweepExpiresAndAnnounces(t *testing.T) {
	store := &sweepStore{expired: []domain.Challenge{expiredChallenge("ch-1"), expiredChallenge("ch-2")}}
	ann := &fakeAnnouncer{}
	s := New(store, &fakeSettler{}, nil, nil, ann, nil, Defaults(), discard())

	require.NoError(t, s.Sweep(context.Background()))

	assert.Equal(t, 1, store.expireCalls)
	require.Len(t, ann.events, 2)
	assert.Equal(t, notify.EventChallengeExpired, ann.events[0].Type)
	assert.Equal(t, "ch-1", ann.events[0].ChallengeID)
}

func TestSweepForceSettlesOverdue(t *testing.T) {
	store := &sweepStore{overdue: []domain.Challenge{{ID: "ch-9"}, {ID: "ch-10"}}}
	settler := &fakeSettler{}
	s := New(store, settler, nil, nil, nil, nil, Defaults(), discard())

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, []string{"ch-9", "ch-10"}, settler.settled)
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	store := &sweepStore{expired: []domain.Challenge{expiredChallenge("ch-1")}}
	locks := &fakeLocks{held: true}
	s := New(store, &fakeSettler{}, locks, nil, nil, nil, Defaults(), discard())

	require.NoError(t, s.Sweep(context.Background()), "losing the lock is a quiet no-op")
	assert.Zero(t, store.expireCalls, "no work without the lock")
}

func TestSweepReleasesLock(t *testing.T) {
	locks := &fakeLocks{}
	s := New(&sweepStore{}, &fakeSettler{}, locks, nil, nil, nil, Defaults(), discard())

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)
}

func TestSweepLostSettleRaceIsIgnored(t *testing.T) {
	store := &sweepStore{overdue: []domain.Challenge{{ID: "ch-9"}}}
	settler := &fakeSettler{err: domain.ErrInvalidTransition}
	s := New(store, settler, nil, nil, nil, nil, Defaults(), discard())

	assert.NoError(t, s.Sweep(context.Background()), "a concurrently settled challenge is not a pass failure")
}

func TestArchiveIntervalGate(t *testing.T) {
	arch := &fakeArchiver{challenges: 3, chat: 12}
	cfg := Defaults()
	cfg.ArchiveEvery = 24 * time.Hour
	cfg.Retention = 30 * 24 * time.Hour
	s := New(&sweepStore{}, &fakeSettler{}, nil, arch, nil, nil, cfg, discard())

	require.NoError(t, s.Sweep(context.Background()))
	require.Len(t, arch.cutoffs, 1, "first pass archives")

	require.NoError(t, s.Sweep(context.Background()))
	assert.Len(t, arch.cutoffs, 1, "second pass inside the interval does not")

	// The cutoff trails now by the retention window.
	age := time.Since(arch.cutoffs[0])
	assert.InDelta(t, cfg.Retention.Seconds(), age.Seconds(), 5)
}
