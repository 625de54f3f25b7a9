package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// QuoteFetcher retrieves a live quote from an upstream price source.
// Satisfied by *jupiter.Client.
type QuoteFetcher interface {
	GetQuote(ctx context.Context, pair string) (domain.Quote, error)
}

// PriceService serves advisory market quotes: cache first, upstream on a
// miss. Quotes are informational for the lobby UI; they never feed
// settlement, which uses only participant-submitted prices.
type PriceService struct {
	cache   domain.QuoteCache
	fetcher QuoteFetcher
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(cache domain.QuoteCache, fetcher QuoteFetcher, bus domain.SignalBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:   cache,
		fetcher: fetcher,
		bus:     bus,
		logger:  logger.With(slog.String("component", "price_service")),
	}
}

// Quote returns the latest quote for the pair, consulting the cache before
// the upstream source. A fresh upstream quote is cached and broadcast to the
// lobby.
func (s *PriceService) Quote(ctx context.Context, pair string) (domain.Quote, error) {
	if !domain.ValidAssetPair(pair) {
		return domain.Quote{}, fmt.Errorf("unsupported asset pair %q: %w", pair, domain.ErrNotFound)
	}

	if s.cache != nil {
		q, err := s.cache.GetQuote(ctx, pair)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
		}
	}

	q, err := s.fetcher.GetQuote(ctx, pair)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("price_service: fetch %s: %w", pair, err)
	}

	s.store(ctx, q)
	return q, nil
}

// Refresh fetches and caches quotes for every supported pair. Called on a
// ticker by the price feed loop.
func (s *PriceService) Refresh(ctx context.Context) error {
	var failed int
	for _, pair := range domain.AssetPairs {
		q, err := s.fetcher.GetQuote(ctx, pair)
		if err != nil {
			s.logger.WarnContext(ctx, "quote refresh failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		s.store(ctx, q)
	}
	if failed == len(domain.AssetPairs) {
		return fmt.Errorf("price_service: refresh: all %d pairs failed: %w", failed, domain.ErrDependencyUnavailable)
	}
	return nil
}

func (s *PriceService) store(ctx context.Context, q domain.Quote) {
	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, q); err != nil {
			s.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("pair", q.Pair),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		if payload, err := json.Marshal(q); err == nil {
			if err := s.bus.Publish(ctx, "ch:quote", payload); err != nil {
				s.logger.DebugContext(ctx, "quote publish failed",
					slog.String("pair", q.Pair),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
