package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

var (
	//go:embed scripts/unlock.lua
	unlockLua string
	//go:embed scripts/extend.lua
	extendLua string
)

// releaseTimeout bounds the unlock call, which runs on a fresh context.
const releaseTimeout = 5 * time.Second

// LockManager hands out leases on ledger documents. A lease is a key set
// with NX and a TTL holding a random token. While held it is renewed every
// third of its TTL, so a slow write does not lose the lock; release and
// renewal only touch the key if it still holds the caller's token.
type LockManager struct {
	c      *Client
	unlock *redis.Script
	extend *redis.Script
}

// NewLockManager creates a LockManager on c.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:      c,
		unlock: redis.NewScript(unlockLua),
		extend: redis.NewScript(extendLua),
	}
}

// Acquire takes the lease on key or fails with domain.ErrLockHeld. The
// returned release func is idempotent.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k := lm.c.key("lock", key)
	token := uuid.NewString()

	ok, err := lm.c.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		lm.renew(k, token, ttl, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = lm.unlock.Run(ctx, lm.c.rdb, []string{k}, token).Err()
		})
	}, nil
}

// renew extends the lease until stop closes or the lease is lost.
func (lm *LockManager) renew(k, token string, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(max(ttl/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl)
			held, err := lm.extend.Run(ctx, lm.c.rdb, []string{k}, token, ttl.Milliseconds()).Int()
			cancel()
			if err == nil && held == 0 {
				return
			}
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
