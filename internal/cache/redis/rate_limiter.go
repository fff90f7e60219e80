package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// minWaitStep keeps Wait from spinning when a slot is about to free.
const minWaitStep = 5 * time.Millisecond

// RateLimiter counts requests per key in a sorted-set sliding window shared
// by every API instance.
type RateLimiter struct {
	c      *Client
	script *redis.Script

	waitLimit  int
	waitWindow time.Duration
}

// NewRateLimiter creates a RateLimiter on c. Wait admits waitLimit requests
// per waitWindow, one per second when either is not positive.
func NewRateLimiter(c *Client, waitLimit int, waitWindow time.Duration) *RateLimiter {
	rl := &RateLimiter{
		c:          c,
		script:     redis.NewScript(slidingWindowLua),
		waitLimit:  waitLimit,
		waitWindow: waitWindow,
	}
	if rl.waitLimit <= 0 || rl.waitWindow <= 0 {
		rl.waitLimit, rl.waitWindow = 1, time.Second
	}
	return rl
}

// Allow counts one request for key and reports whether it fits the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ok, _, err := rl.take(ctx, key, limit, window)
	return ok, err
}

// take runs the window script. When the request is refused, retry is how
// long until the oldest request leaves the window.
func (rl *RateLimiter) take(ctx context.Context, key string, limit int, window time.Duration) (ok bool, retry time.Duration, err error) {
	res, err := rl.script.Run(ctx, rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		time.Now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 3 {
		return false, 0, fmt.Errorf("redis: rate limit %s: malformed reply %v", key, res)
	}
	return res[0] == 1, time.Duration(res[2]) * time.Microsecond, nil
}

// Wait blocks until key is admitted, sleeping until the next slot frees
// rather than polling.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		ok, retry, err := rl.take(ctx, key, rl.waitLimit, rl.waitWindow)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(min(max(retry, minWaitStep), rl.waitWindow))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
