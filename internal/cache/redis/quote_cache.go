package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// quoteTTL bounds how stale a cached quote may get before callers fall back
// to the upstream price API.
const quoteTTL = 30 * time.Second

// QuoteCache implements domain.QuoteCache using Redis hashes. Each pair's
// quote is stored at "quote:{pair}" with fields "price", "source" and "ts"
// (Unix nanoseconds), with a short TTL.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.rdb}
}

func quoteKey(pair string) string {
	return "quote:" + strings.ToUpper(pair)
}

// SetQuote stores the latest quote for an asset pair.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.Pair)
	fields := map[string]interface{}{
		"price":  q.Price.String(),
		"source": q.Source,
		"ts":     strconv.FormatInt(q.At.UnixNano(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Pair, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for an asset pair. It returns
// domain.ErrNotFound when no fresh quote is cached.
func (qc *QuoteCache) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(pair)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote price %s: %w", pair, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote ts %s: %w", pair, err)
	}

	return domain.Quote{
		Pair:   strings.ToUpper(pair),
		Price:  price,
		Source: vals["source"],
		At:     time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
