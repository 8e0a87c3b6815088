package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

// RateLimiter implements domain.RateLimiter as a fixed-window counter shared
// across API processes. Each window gets its own key "rl:{key}:{window}".
type RateLimiter struct {
	c   *Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c, now: time.Now}
}

// Allow increments the counter of the current window and reports whether it
// is still within limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	k := rl.windowKey(key, window)

	pipe := rl.c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}

func (rl *RateLimiter) windowKey(key string, window time.Duration) string {
	slot := rl.now().UnixNano() / int64(window)
	return rl.c.Key("rl:" + key + ":" + strconv.FormatInt(slot, 10))
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
