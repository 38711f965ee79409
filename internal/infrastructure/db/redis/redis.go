package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 5 * time.Second
	clientName     = "auth-backend"
)

// Config selects the Redis server holding visit counters and state nonces.
type Config struct {
	Addr     string
	DB       int
	Password string
	Timeout  time.Duration
}

// Client owns the connection shared by the visit limiter and the nonce store.
type Client struct {
	rdb redis.UniversalClient
}

// Connect dials Redis and pings it within the configured timeout.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		DB:          cfg.DB,
		Password:    cfg.Password,
		ClientName:  clientName,
		DialTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping backs the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Nonces returns the one-shot store for federated state nonces.
func (c *Client) Nonces() *NonceStore {
	return NewNonceStore(c.rdb)
}

// VisitLimiter returns a limiter allowing max requests per key before the
// key is restricted for restriction.
func (c *Client) VisitLimiter(max int, restriction time.Duration) *VisitLimiter {
	return NewVisitLimiter(c.rdb, max, restriction)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
