package redis

import (
	"context"
	"time"

	"github.com/kestrand/maintchat/internal/domain"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter enforces a fixed-window per-client request quota. The
// window is one minute; burst widens the quota within a window without
// changing the steady-state rate.
type RateLimiter struct {
	client *Client
	quota  int64
}

// NewRateLimiter creates a limiter allowing requestsPerMinute+burst
// requests per client per one-minute window.
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client: client,
		quota:  int64(requestsPerMinute + burst),
	}
}

// Allow counts one request for key and reports whether it fits the
// current window, the remaining quota, and when the window resets.
// The count and the window expiry are set in one pipeline so a crash
// between them cannot leave a counter that never expires.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowKey := rateLimitKeyPrefix + key
	resetAt := time.Now().Truncate(time.Minute).Add(time.Minute)

	pipe := r.client.rdb.Pipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.ExpireNX(ctx, windowKey, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, domain.NewInternalError("rate limiter unavailable").Wrap(err)
	}

	used := count.Val()
	remaining := r.quota - used
	if remaining < 0 {
		remaining = 0
	}
	return used <= r.quota, int(remaining), resetAt, nil
}

// Reset clears the current window for key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.rdb.Del(ctx, rateLimitKeyPrefix+key).Err(); err != nil {
		return domain.NewInternalError("rate limiter unavailable").Wrap(err)
	}
	return nil
}
