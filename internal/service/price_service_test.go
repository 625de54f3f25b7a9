package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciblhq/tradeduel/internal/domain"
)

type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newMemQuoteCache() *memQuoteCache {
	return &memQuoteCache{quotes: make(map[string]domain.Quote)}
}

func (c *memQuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Pair] = q
	return nil
}

func (c *memQuoteCache) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[pair]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeFetcher) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Quote{}, f.err
	}
	return domain.Quote{Pair: pair, Price: dec("181.42"), Source: "jupiter", At: time.Now().UTC()}, nil
}

func TestQuoteCacheFirst(t *testing.T) {
	cache := newMemQuoteCache()
	cached := domain.Quote{Pair: "SOL/USDC", Price: dec("180"), Source: "jupiter"}
	require.NoError(t, cache.SetQuote(context.Background(), cached))

	fetcher := &fakeFetcher{}
	svc := NewPriceService(cache, fetcher, nil, testLogger())

	q, err := svc.Quote(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("180")))
	assert.Zero(t, fetcher.calls, "cache hit must not touch upstream")
}

func TestQuoteCacheMissFetchesAndStores(t *testing.T) {
	cache := newMemQuoteCache()
	fetcher := &fakeFetcher{}
	bus := newMemBus()
	svc := NewPriceService(cache, fetcher, bus, testLogger())

	q, err := svc.Quote(context.Background(), "ETH/USDC")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.True(t, q.Price.Equal(dec("181.42")))

	stored, err := cache.GetQuote(context.Background(), "ETH/USDC")
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(q.Price))
	assert.Equal(t, 1, bus.count("ch:quote"))
}

// wrappingCache returns its miss sentinel wrapped, the way a store that
// annotates errors would.
type wrappingCache struct {
	*memQuoteCache
}

func (c wrappingCache) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	q, err := c.memQuoteCache.GetQuote(ctx, pair)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote hash %s: %w", pair, err)
	}
	return q, nil
}

func TestQuoteWrappedCacheMiss(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := NewPriceService(wrappingCache{newMemQuoteCache()}, fetcher, nil, testLogger())

	q, err := svc.Quote(context.Background(), "SOL/USDC")
	require.NoError(t, err, "a wrapped not-found is still a plain miss")
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, "SOL/USDC", q.Pair)
}

func TestQuoteUnknownPair(t *testing.T) {
	svc := NewPriceService(nil, &fakeFetcher{}, nil, testLogger())
	_, err := svc.Quote(context.Background(), "DOGE/USDC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefreshAllPairs(t *testing.T) {
	cache := newMemQuoteCache()
	fetcher := &fakeFetcher{}
	svc := NewPriceService(cache, fetcher, nil, testLogger())

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, len(domain.AssetPairs), fetcher.calls)
	for _, pair := range domain.AssetPairs {
		_, err := cache.GetQuote(context.Background(), pair)
		assert.NoError(t, err, pair)
	}
}

func TestRefreshAllFailed(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("502 bad gateway")}
	svc := NewPriceService(newMemQuoteCache(), fetcher, nil, testLogger())

	err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}
