package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// Lock keys. Mutations always take ledger:markets before ledger:balances.
const (
	lockMarkets  = "ledger:markets"
	lockBalances = "ledger:balances"
)

const (
	lockRetryBase = 25 * time.Millisecond
	lockRetryMax  = 500 * time.Millisecond
)

// writerLock serialises writers of one ledger document. The in-process mutex
// orders goroutines; the optional LockManager orders engine processes that
// share a store.
type writerLock struct {
	mu      sync.Mutex
	locks   domain.LockManager
	key     string
	ttl     time.Duration
	timeout time.Duration
}

func newWriterLock(key string, ttl, timeout time.Duration) *writerLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &writerLock{key: key, ttl: ttl, timeout: timeout}
}

// acquire blocks until the lock is held, the timeout passes (ErrLockHeld) or
// ctx is done.
func (l *writerLock) acquire(ctx context.Context) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		return l.mu.Unlock, nil
	}

	deadline := time.Now().Add(l.timeout)
	delay := lockRetryBase
	for {
		unlock, err := l.locks.Acquire(ctx, l.key, l.ttl)
		if err == nil {
			return func() {
				unlock()
				l.mu.Unlock()
			}, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			l.mu.Unlock()
			return nil, fmt.Errorf("lock %s: %w", l.key, err)
		}
		if time.Now().After(deadline) {
			l.mu.Unlock()
			return nil, fmt.Errorf("lock %s: %w", l.key, domain.ErrLockHeld)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.mu.Unlock()
			return nil, fmt.Errorf("lock %s: %w", l.key, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, lockRetryMax)
	}
}
