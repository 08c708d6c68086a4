// Package ratelimit implements the Intake Gateway's per-tenant admission
// window (§4.1 step 2): a shared Redis counter so the limit holds across
// every gateway instance, not just the process handling the current
// request.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ingestpipe/internal/config"
)

// Limiter enforces a fixed admission window per tenant using a Redis
// counter keyed by tenant and the window's start second. The counter is
// given a TTL equal to the window so stale keys expire themselves.
type Limiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

func New(client *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{client: client, max: cfg.MaxRequests, window: cfg.Window}
}

// Allow increments tenantID's counter for the current window and reports
// whether the admission is within the configured limit.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (bool, error) {
	windowStart := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%d", tenantID, windowStart)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("set rate limit counter ttl: %w", err)
		}
	}
	return count <= int64(l.max), nil
}
