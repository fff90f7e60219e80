package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/cache/redis"
	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := redis.New(context.Background(), redis.ClientConfig{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockManager_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	c, mr := newClient(t)
	lm := redis.NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "ledger:markets", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:ledger:markets"))

	_, err = lm.Acquire(ctx, "ledger:markets", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:ledger:markets"))

	unlock2, err := lm.Acquire(ctx, "ledger:markets", 10*time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestLockManager_StaleUnlockKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	c, mr := newClient(t)
	lm := redis.NewLockManager(c)

	unlockOld, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = lm.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)

	unlockOld()
	assert.True(t, mr.Exists("lock:k"), "expired holder must not release the new lock")
}

func TestLockManager_RenewsWhileHeld(t *testing.T) {
	ctx := context.Background()
	c, mr := newClient(t)
	lm := redis.NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "slow", 150*time.Millisecond)
	require.NoError(t, err)
	defer unlock()

	mr.SetTTL("lock:slow", 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("lock:slow") == 150*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond, "lease is extended back to its TTL")
}

func TestLockManager_RenewalStopsAfterLoss(t *testing.T) {
	ctx := context.Background()
	c, mr := newClient(t)
	lm := redis.NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "lost", 60*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, mr.Set("lock:lost", "someone-else"))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, mr.TTL("lock:lost"), "a lost lease is never extended")

	unlock()
	got, err := mr.Get("lock:lost")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestSignalBus_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _ := newClient(t)
	bus := redis.NewSignalBus(c, 100)

	ch, err := bus.Subscribe(ctx, domain.ChannelBets)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelBets, []byte(`{"type":"bet.placed"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"bet.placed"}`, string(msg))
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestSignalBus_Streams(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	bus := redis.NewSignalBus(c, 0)

	msgs, err := bus.StreamRead(ctx, domain.StreamCopyTrades, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamCopyTrades, []byte(fmt.Sprintf(`{"n":%d}`, i))))
	}

	msgs, err = bus.StreamRead(ctx, domain.StreamCopyTrades, "0", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"n":0}`, string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, domain.StreamCopyTrades, msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.JSONEq(t, `{"n":2}`, string(rest[0].Payload))
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	rl := redis.NewRateLimiter(c, 0, 0)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "client-b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	c, _ := newClient(t)
	rl := redis.NewRateLimiter(c, 1, time.Hour)

	require.NoError(t, rl.Wait(context.Background(), "w"))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx, "w"), context.DeadlineExceeded)
}

func TestRateLimiter_WaitAdmitsWhenSlotFrees(t *testing.T) {
	c, _ := newClient(t)
	rl := redis.NewRateLimiter(c, 1, 100*time.Millisecond)

	require.NoError(t, rl.Wait(context.Background(), "w"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "w"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestClient_NamespaceAndURL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c, err := redis.New(ctx, redis.ClientConfig{Addr: "redis://" + mr.Addr() + "/0", Namespace: "pz:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	unlock, err := redis.NewLockManager(c).Acquire(ctx, "ledger:markets", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("pz:lock:ledger:markets"))
	unlock()

	ok, err := redis.NewRateLimiter(c, 0, 0).Allow(ctx, "ip:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("pz:ratelimit:ip:1.2.3.4"))

	bus := redis.NewSignalBus(c, 0)
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamCopyTrades, []byte(`{}`)))
	assert.True(t, mr.Exists("pz:"+domain.StreamCopyTrades))
}

func TestNew_BadURL(t *testing.T) {
	_, err := redis.New(context.Background(), redis.ClientConfig{Addr: "redis://localhost:6379/not-a-db"})
	assert.Error(t, err)
}
