// Package local provides in-process implementations of the coordination
// interfaces for single-node deployments that run without Redis.
package local

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// LockManager is a process-local domain.LockManager. Locks expire after their
// TTL like the Redis implementation.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]uint64
	next  uint64
	timer map[string]*time.Timer
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]uint64),
		timer: make(map[string]*time.Timer),
	}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.held[key]; ok {
		return nil, domain.ErrLockHeld
	}
	lm.next++
	token := lm.next
	lm.held[key] = token
	if ttl > 0 {
		lm.timer[key] = time.AfterFunc(ttl, func() { lm.release(key, token) })
	}

	var once sync.Once
	return func() { once.Do(func() { lm.release(key, token) }) }, nil
}

func (lm *LockManager) release(key string, token uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.held[key] != token {
		return
	}
	delete(lm.held, key)
	if t, ok := lm.timer[key]; ok {
		t.Stop()
		delete(lm.timer, key)
	}
}

// SignalBus is a process-local domain.SignalBus. Subscribers whose buffer is
// full miss messages, matching Redis pub/sub delivery semantics.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
	seq     uint64
	maxLen  int
}

// NewSignalBus creates a SignalBus whose streams keep at most maxLen entries.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &SignalBus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every subscriber whose channel or pattern
// matches.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, chans := range b.subs {
		if !matchChannel(pattern, channel) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscribe registers a subscriber. A trailing '*' subscribes to a prefix.
// The returned channel is closed when ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[channel]
		for i, c := range chans {
			if c == ch {
				b.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// StreamAppend appends payload to stream, trimming the oldest entries past
// the cap.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      fmt.Sprintf("%d-0", b.seq),
		Payload: payload,
	})
	if len(msgs) > b.maxLen {
		msgs = msgs[len(msgs)-b.maxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries after lastID.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := streamSeq(lastID)

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if streamSeq(m.ID) <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) uint64 {
	head, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func matchChannel(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == channel
}

// RateLimiter is a process-local domain.RateLimiter built on token buckets,
// one per key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	waitRate rate.Limit
	burst    int
}

// NewRateLimiter creates a RateLimiter. Wait admits perSecond requests per
// second with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		waitRate: rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(key string, r rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(r, burst)
		rl.limiters[key] = l
	}
	return l
}

// Allow admits at most limit requests per window for key. The bucket refills
// continuously, so this approximates a sliding window.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("local: rate limit %s: limit and window must be positive", key)
	}
	r := rate.Every(window / time.Duration(limit))
	return rl.limiter(key+"|"+window.String(), r, limit).Allow(), nil
}

// Wait blocks until key is admitted under the default rate or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	if err := rl.limiter(key, rl.waitRate, rl.burst).Wait(ctx); err != nil {
		return fmt.Errorf("local: rate limit wait %s: %w", key, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
	_ domain.RateLimiter = (*RateLimiter)(nil)
)
