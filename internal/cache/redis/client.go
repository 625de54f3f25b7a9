// Package redis backs the lobby's hot-path state with go-redis/v9: the
// quote cache, the sliding-window rate limiter, the sweep lock, and the
// pub/sub signal bus all share one connection pool owned by Client.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPoolSize = 16

// Options holds connection parameters for the shared Redis client.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int // defaults to 16 when zero
	MaxRetries int
	TLSEnabled bool
}

// Client owns the connection pool shared by the quote cache, rate limiter,
// lock manager, and signal bus.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection with a ping before
// handing the pool out.
func New(ctx context.Context, opts Options) (*Client, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	ro := &redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		PoolSize:   poolSize,
		MaxRetries: opts.MaxRetries,
		ClientName: "tradedueld",
	}
	if opts.TLSEnabled {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", opts.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping reports whether Redis is reachable. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
