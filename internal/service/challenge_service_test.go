package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciblhq/tradeduel/internal/domain"
	"github.com/ciblhq/tradeduel/internal/notify"
)

// memChallengeStore is an in-memory domain.ChallengeStore with the same
// conditional-update semantics as the Postgres implementation: every
// transition checks its expected prior state under one lock, so concurrent
// callers resolve to exactly one winner.
type memChallengeStore struct {
	mu    sync.Mutex
	items map[string]domain.Challenge
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{items: make(map[string]domain.Challenge)}
}

var _ domain.ChallengeStore = (*memChallengeStore)(nil)

func (s *memChallengeStore) Create(ctx context.Context, ch domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[ch.ID] = ch
	return nil
}

func (s *memChallengeStore) GetByID(ctx context.Context, id string) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	return ch, nil
}

func (s *memChallengeStore) List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Challenge
	for _, ch := range s.items {
		if f.Status != "" && ch.Status != f.Status {
			continue
		}
		if f.UserID != "" && ch.Side(f.UserID) == "" {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

func (s *memChallengeStore) Claim(ctx context.Context, id, acceptorID string, now time.Time) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	if ch.Status == domain.ChallengeOpen && now.Before(ch.ExpiresAt) && ch.CreatorID != acceptorID {
		ch.AcceptorID = &acceptorID
		ch.Status = domain.ChallengeJoined
		ch.JoinedAt = &now
		s.items[id] = ch
		return ch, nil
	}
	// Classification mirrors the production store: a self-claim is always
	// forbidden, regardless of state, and a cancelled challenge was never
	// claimed.
	if ch.CreatorID == acceptorID {
		return domain.Challenge{}, domain.ErrForbidden
	}
	if ch.Status == domain.ChallengeExpired || (ch.Status == domain.ChallengeOpen && ch.ExpiredAt(now)) {
		return domain.Challenge{}, domain.ErrExpired
	}
	if ch.Status == domain.ChallengeCancelled {
		return domain.Challenge{}, domain.ErrInvalidTransition
	}
	return domain.Challenge{}, domain.ErrAlreadyClaimed
}

func (s *memChallengeStore) SetPrice(ctx context.Context, id string, side domain.Party, phase domain.PricePhase, price decimal.Decimal) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}

	statusOK := ch.Status == domain.ChallengeActive ||
		(phase == domain.PhaseEntry && ch.Status == domain.ChallengeJoined)
	if statusOK && ch.Price(side, phase) == nil {
		p := price
		switch {
		case side == domain.PartyCreator && phase == domain.PhaseEntry:
			ch.CreatorEntry = &p
		case side == domain.PartyCreator && phase == domain.PhaseExit:
			ch.CreatorExit = &p
		case side == domain.PartyAcceptor && phase == domain.PhaseEntry:
			ch.AcceptorEntry = &p
		case side == domain.PartyAcceptor && phase == domain.PhaseExit:
			ch.AcceptorExit = &p
		}
		s.items[id] = ch
		return ch, nil
	}
	if ch.Price(side, phase) != nil {
		return domain.Challenge{}, domain.ErrPriceLocked
	}
	return domain.Challenge{}, domain.ErrInvalidTransition
}

func (s *memChallengeStore) Activate(ctx context.Context, id string) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	if ch.Status == domain.ChallengeJoined && ch.CreatorEntry != nil && ch.AcceptorEntry != nil {
		ch.Status = domain.ChallengeActive
		s.items[id] = ch
		return ch, nil
	}
	if ch.Status == domain.ChallengeActive {
		return ch, nil
	}
	if ch.Status == domain.ChallengeJoined {
		return domain.Challenge{}, domain.ErrIncompleteData
	}
	return domain.Challenge{}, domain.ErrInvalidTransition
}

func (s *memChallengeStore) Settle(ctx context.Context, id string, out domain.SettlementOutcome, now time.Time) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	if ch.Status != domain.ChallengeActive {
		return domain.Challenge{}, domain.ErrInvalidTransition
	}
	cp, ap := out.CreatorPnL, out.AcceptorPnL
	ch.Status = domain.ChallengeCompleted
	ch.CreatorPnL = &cp
	ch.AcceptorPnL = &ap
	ch.WinnerID = out.WinnerID
	ch.CompletedAt = &now
	s.items[id] = ch
	return ch, nil
}

// priceStateStale reports whether a slot that was empty in seen has since
// been written.
func priceStateStale(ch domain.Challenge, seen domain.PriceState) bool {
	cur := ch.PriceState()
	return (cur.CreatorEntry && !seen.CreatorEntry) ||
		(cur.CreatorExit && !seen.CreatorExit) ||
		(cur.AcceptorEntry && !seen.AcceptorEntry) ||
		(cur.AcceptorExit && !seen.AcceptorExit)
}

func (s *memChallengeStore) SettleTimeout(ctx context.Context, id string, out domain.SettlementOutcome, seen domain.PriceState, now time.Time) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	if ch.Status != domain.ChallengeActive {
		return domain.Challenge{}, domain.ErrInvalidTransition
	}
	if priceStateStale(ch, seen) {
		return domain.Challenge{}, domain.ErrPriceLocked
	}
	cp, ap := out.CreatorPnL, out.AcceptorPnL
	ch.Status = domain.ChallengeCompleted
	ch.CreatorPnL = &cp
	ch.AcceptorPnL = &ap
	ch.WinnerID = out.WinnerID
	ch.CompletedAt = &now
	s.items[id] = ch
	return ch, nil
}

func (s *memChallengeStore) Void(ctx context.Context, id string, seen domain.PriceState, now time.Time) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	if ch.Status != domain.ChallengeActive {
		return domain.Challenge{}, domain.ErrInvalidTransition
	}
	if priceStateStale(ch, seen) {
		return domain.Challenge{}, domain.ErrPriceLocked
	}
	ch.Status = domain.ChallengeCancelled
	ch.CompletedAt = &now
	s.items[id] = ch
	return ch, nil
}

func (s *memChallengeStore) Cancel(ctx context.Context, id, creatorID string) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.items[id]
	if !ok {
		return domain.Challenge{}, domain.ErrNotFound
	}
	if ch.CreatorID != creatorID {
		return domain.Challenge{}, domain.ErrForbidden
	}
	if ch.Status != domain.ChallengeOpen {
		return domain.Challenge{}, domain.ErrInvalidTransition
	}
	ch.Status = domain.ChallengeCancelled
	s.items[id] = ch
	return ch, nil
}

func (s *memChallengeStore) ExpireOpen(ctx context.Context, now time.Time) ([]domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []domain.Challenge
	for id, ch := range s.items {
		if ch.Status == domain.ChallengeOpen && ch.ExpiredAt(now) {
			ch.Status = domain.ChallengeExpired
			s.items[id] = ch
			expired = append(expired, ch)
		}
	}
	return expired, nil
}

func (s *memChallengeStore) ListPastDeadline(ctx context.Context, now time.Time, grace time.Duration) ([]domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Challenge
	for _, ch := range s.items {
		if ch.Status != domain.ChallengeActive || ch.JoinedAt == nil {
			continue
		}
		if !now.Before(ch.TradingDeadline().Add(grace)) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *memChallengeStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Challenge
	for _, ch := range s.items {
		if ch.Status.Terminal() {
			out = append(out, ch)
		}
	}
	return out, nil
}

// recordingAnnouncer captures events for assertions.
type recordingAnnouncer struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingAnnouncer) Notify(ctx context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingAnnouncer) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// denyLimiter rejects everything.
type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() ChallengeConfig {
	return ChallengeConfig{
		ClaimWindow:  5 * time.Minute,
		MinStake:     dec("1"),
		MaxStake:     dec("1000"),
		MinTimeframe: time.Minute,
		MaxTimeframe: 24 * time.Hour,
		SettleGrace:  2 * time.Minute,
	}
}

func newTestService(store domain.ChallengeStore, announcer Announcer) *ChallengeService {
	return NewChallengeService(store, nil, nil, nil, nil, announcer, testConfig(), testLogger())
}

func validParams() CreateParams {
	return CreateParams{
		Stake:     dec("10"),
		AssetPair: "SOL/USDC",
		Timeframe: time.Hour,
	}
}

func TestCreateChallenge(t *testing.T) {
	store := newMemChallengeStore()
	ann := &recordingAnnouncer{}
	svc := newTestService(store, ann)

	ch, err := svc.Create(context.Background(), domain.Session{UserID: "alice"}, validParams())
	require.NoError(t, err)

	assert.NotEmpty(t, ch.ID)
	assert.Equal(t, "alice", ch.CreatorID)
	assert.Equal(t, domain.ChallengeOpen, ch.Status)
	assert.Nil(t, ch.AcceptorID)
	assert.Equal(t, 5*time.Minute, ch.ExpiresAt.Sub(ch.CreatedAt))
	assert.Equal(t, []string{notify.EventChallengeCreated}, ann.types())
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemChallengeStore(), nil)
	sess := domain.Session{UserID: "alice"}

	t.Run("anonymous", func(t *testing.T) {
		_, err := svc.Create(context.Background(), domain.Session{}, validParams())
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
	t.Run("unknown pair", func(t *testing.T) {
		p := validParams()
		p.AssetPair = "DOGE/USDC"
		_, err := svc.Create(context.Background(), sess, p)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
	t.Run("stake too small", func(t *testing.T) {
		p := validParams()
		p.Stake = dec("0.5")
		_, err := svc.Create(context.Background(), sess, p)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
	t.Run("stake too large", func(t *testing.T) {
		p := validParams()
		p.Stake = dec("5000")
		_, err := svc.Create(context.Background(), sess, p)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
	t.Run("timeframe too short", func(t *testing.T) {
		p := validParams()
		p.Timeframe = 10 * time.Second
		_, err := svc.Create(context.Background(), sess, p)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestCreateRateLimited(t *testing.T) {
	store := newMemChallengeStore()
	cfg := testConfig()
	cfg.CreateLimit = 5
	svc := NewChallengeService(store, nil, denyLimiter{}, nil, nil, nil, cfg, testLogger())

	_, err := svc.Create(context.Background(), domain.Session{UserID: "alice"}, validParams())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestClaimConcurrentExactlyOnce(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)

	ch, err := svc.Create(context.Background(), domain.Session{UserID: "alice"}, validParams())
	require.NoError(t, err)

	const claimers = 32
	var wg sync.WaitGroup
	errs := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := domain.Session{UserID: "user-" + string(rune('a'+i%26)) + string(rune('0'+i/26))}
			_, errs[i] = svc.Claim(context.Background(), sess, ch.ID)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
			lost++
		}
	}
	assert.Equal(t, 1, won, "exactly one claimer wins")
	assert.Equal(t, claimers-1, lost)

	got, err := store.GetByID(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeJoined, got.Status)
	require.NotNil(t, got.AcceptorID)
}

func TestClaimSelfAlwaysForbidden(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	alice := domain.Session{UserID: "alice"}

	ch, err := svc.Create(context.Background(), alice, validParams())
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), alice, ch.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Still forbidden after someone else claims it: identity outranks state.
	_, err = svc.Claim(context.Background(), domain.Session{UserID: "bob"}, ch.ID)
	require.NoError(t, err)
	_, err = svc.Claim(context.Background(), alice, ch.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestClaimLogicalExpiry(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)

	ch, err := svc.Create(context.Background(), domain.Session{UserID: "alice"}, validParams())
	require.NoError(t, err)

	// Move the clock past the claim window without any sweeper involvement.
	svc.now = func() time.Time { return ch.ExpiresAt.Add(time.Second) }

	_, err = svc.Claim(context.Background(), domain.Session{UserID: "bob"}, ch.ID)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestClaimNotFound(t *testing.T) {
	svc := newTestService(newMemChallengeStore(), nil)
	_, err := svc.Claim(context.Background(), domain.Session{UserID: "bob"}, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// runDuel drives a challenge from creation through both entry prices.
func runDuel(t *testing.T, svc *ChallengeService, store *memChallengeStore) domain.Challenge {
	t.Helper()
	ctx := context.Background()

	ch, err := svc.Create(ctx, domain.Session{UserID: "alice"}, validParams())
	require.NoError(t, err)
	_, err = svc.Claim(ctx, domain.Session{UserID: "bob"}, ch.ID)
	require.NoError(t, err)

	_, err = svc.SubmitPrice(ctx, domain.Session{UserID: "alice"}, ch.ID, domain.PhaseEntry, dec("100"))
	require.NoError(t, err)
	got, err := svc.SubmitPrice(ctx, domain.Session{UserID: "bob"}, ch.ID, domain.PhaseEntry, dec("100"))
	require.NoError(t, err)
	return got
}

func TestSubmitPriceActivates(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)

	ch := runDuel(t, svc, store)
	assert.Equal(t, domain.ChallengeActive, ch.Status, "second entry price activates the duel")
}

func TestSubmitPriceWriteOnce(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	ch := runDuel(t, svc, store)

	_, err := svc.SubmitPrice(context.Background(), domain.Session{UserID: "alice"}, ch.ID, domain.PhaseEntry, dec("999"))
	assert.ErrorIs(t, err, domain.ErrPriceLocked)

	got, err := store.GetByID(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatorEntry.Equal(dec("100")), "rejected write must not change the stored price")
}

func TestSubmitPriceNonParticipant(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	ch := runDuel(t, svc, store)

	_, err := svc.SubmitPrice(context.Background(), domain.Session{UserID: "mallory"}, ch.ID, domain.PhaseExit, dec("50"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSubmitExitBeforeActive(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	ch, err := svc.Create(ctx, domain.Session{UserID: "alice"}, validParams())
	require.NoError(t, err)
	_, err = svc.Claim(ctx, domain.Session{UserID: "bob"}, ch.ID)
	require.NoError(t, err)

	_, err = svc.SubmitPrice(ctx, domain.Session{UserID: "alice"}, ch.ID, domain.PhaseExit, dec("110"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSettleOnce(t *testing.T) {
	store := newMemChallengeStore()
	ann := &recordingAnnouncer{}
	svc := newTestService(store, ann)
	ctx := context.Background()
	ch := runDuel(t, svc, store)

	_, err := svc.SubmitPrice(ctx, domain.Session{UserID: "alice"}, ch.ID, domain.PhaseExit, dec("110"))
	require.NoError(t, err)
	_, err = svc.SubmitPrice(ctx, domain.Session{UserID: "bob"}, ch.ID, domain.PhaseExit, dec("95"))
	require.NoError(t, err)

	settled, err := svc.Settle(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeCompleted, settled.Status)
	require.NotNil(t, settled.WinnerID)
	assert.Equal(t, "alice", *settled.WinnerID)
	require.NotNil(t, settled.CreatorPnL)
	assert.True(t, settled.CreatorPnL.Equal(dec("100")))

	// Second settle must be rejected without touching the stored outcome.
	_, err = svc.Settle(ctx, ch.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := store.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", *got.WinnerID)
}

func TestSettleIncompletePrices(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	ch := runDuel(t, svc, store)

	_, err := svc.Settle(ctx, ch.ID)
	assert.ErrorIs(t, err, domain.ErrIncompleteData)

	got, err := store.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeActive, got.Status, "failed settle leaves the duel active")
}

func TestForceSettleForfeit(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	ch := runDuel(t, svc, store)

	// Only the creator completes.
	_, err := svc.SubmitPrice(ctx, domain.Session{UserID: "alice"}, ch.ID, domain.PhaseExit, dec("90"))
	require.NoError(t, err)

	settled, err := svc.ForceSettle(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeCompleted, settled.Status)
	require.NotNil(t, settled.WinnerID)
	assert.Equal(t, "alice", *settled.WinnerID, "complete side wins even at a loss")
	assert.True(t, settled.CreatorPnL.Equal(dec("-100")))
	assert.True(t, settled.AcceptorPnL.Equal(dec("-10")))
}

func TestForceSettleVoid(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	ch := runDuel(t, svc, store)

	voided, err := svc.ForceSettle(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeCancelled, voided.Status)
	assert.Nil(t, voided.WinnerID)
	assert.Nil(t, voided.CreatorPnL)
}

func TestCancel(t *testing.T) {
	store := newMemChallengeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	ch, err := svc.Create(ctx, domain.Session{UserID: "alice"}, validParams())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, domain.Session{UserID: "bob"}, ch.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := svc.Cancel(ctx, domain.Session{UserID: "alice"}, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeCancelled, cancelled.Status)

	// A cancelled challenge was never claimed, so a late claim is an
	// invalid transition rather than a lost race.
	_, err = svc.Claim(ctx, domain.Session{UserID: "bob"}, ch.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// racingStore injects an acceptor exit price between ForceSettle's read and
// its settling write, simulating a participant submission landing while the
// sweeper resolves the timeout.
type racingStore struct {
	*memChallengeStore
	injected bool
}

func (s *racingStore) SettleTimeout(ctx context.Context, id string, out domain.SettlementOutcome, seen domain.PriceState, now time.Time) (domain.Challenge, error) {
	if !s.injected {
		s.injected = true
		if _, err := s.memChallengeStore.SetPrice(ctx, id, domain.PartyAcceptor, domain.PhaseExit, dec("200")); err != nil {
			return domain.Challenge{}, err
		}
	}
	return s.memChallengeStore.SettleTimeout(ctx, id, out, seen, now)
}

func TestForceSettleRacingExitPrice(t *testing.T) {
	store := newMemChallengeStore()
	racing := &racingStore{memChallengeStore: store}
	svc := newTestService(racing, nil)
	ctx := context.Background()
	ch := runDuel(t, svc, store)

	// Only the creator completes before the deadline.
	_, err := svc.SubmitPrice(ctx, domain.Session{UserID: "alice"}, ch.ID, domain.PhaseExit, dec("90"))
	require.NoError(t, err)

	settled, err := svc.ForceSettle(ctx, ch.ID)
	require.NoError(t, err)

	// The injected exit must defeat the forfeit outcome: the settlement is
	// recomputed from the full price set instead of overriding it.
	assert.True(t, racing.injected)
	require.NotNil(t, settled.WinnerID)
	assert.Equal(t, "bob", *settled.WinnerID)
	assert.True(t, settled.CreatorPnL.Equal(dec("-100")))
	assert.True(t, settled.AcceptorPnL.Equal(dec("1000")), "acceptor pnl = %s", settled.AcceptorPnL)

	got, err := store.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AcceptorExit)
	assert.True(t, got.AcceptorExit.Equal(dec("200")), "stored exit and recorded outcome stay consistent")
}
