package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// VisitLimiter counts requests per client key. Once a key passes the limit
// it is restricted for a fixed period and its counter starts over.
//
// Keys: <ip>:visit:<method>:<path> and <ip>:restricted:<method>:<path>.
type VisitLimiter struct {
	client      redis.Cmdable
	max         int64
	restriction time.Duration
}

// Decision is the outcome of one counted visit.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

func NewVisitLimiter(client redis.Cmdable, max int, restriction time.Duration) *VisitLimiter {
	return &VisitLimiter{client: client, max: int64(max), restriction: restriction}
}

// Visit records one request and reports whether it may proceed.
func (l *VisitLimiter) Visit(ctx context.Context, ip, method, path string) (Decision, error) {
	visitKey, restrictedKey := visitKeys(ip, method, path)

	ttl, err := l.client.PTTL(ctx, restrictedKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("visit limiter: %w", err)
	}
	if ttl > 0 {
		return Decision{RetryAfter: ttl}, nil
	}

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, visitKey)
	pipe.ExpireNX(ctx, visitKey, l.restriction)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("visit limiter: %w", err)
	}
	if count.Val() <= l.max {
		return Decision{Allowed: true}, nil
	}

	pipe = l.client.TxPipeline()
	pipe.Del(ctx, visitKey)
	pipe.Set(ctx, restrictedKey, "1", l.restriction)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("visit limiter: restrict: %w", err)
	}
	return Decision{RetryAfter: l.restriction}, nil
}

func visitKeys(ip, method, path string) (visit, restricted string) {
	if ip == "::1" {
		ip = "127.0.0.1"
	}
	return fmt.Sprintf("%s:visit:%s:%s", ip, method, path),
		fmt.Sprintf("%s:restricted:%s:%s", ip, method, path)
}
