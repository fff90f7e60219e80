package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/cache/local"
	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	lm := local.NewLockManager()

	unlock, err := lm.Acquire(ctx, "ledger:markets", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "ledger:markets", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = lm.Acquire(ctx, "ledger:balances", time.Minute)
	assert.NoError(t, err, "keys are independent")

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, "ledger:markets", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManager_Expires(t *testing.T) {
	ctx := context.Background()
	lm := local.NewLockManager()

	stale, err := lm.Acquire(ctx, "k", 20*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		unlock, err := lm.Acquire(ctx, "k", time.Minute)
		if err != nil {
			return false
		}
		stale() // must not release the new holder
		_, err = lm.Acquire(ctx, "k", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
		unlock()
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestSignalBus_PatternSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := local.NewSignalBus(0)

	all, err := bus.Subscribe(ctx, "ledger:*")
	require.NoError(t, err)
	bets, err := bus.Subscribe(ctx, domain.ChannelBets)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelBets, []byte("b")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelRefunds, []byte("r")))

	assert.Equal(t, "b", string(<-bets))
	assert.Equal(t, "b", string(<-all))
	assert.Equal(t, "r", string(<-all))

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-bets
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestSignalBus_StreamTrimAndRead(t *testing.T) {
	ctx := context.Background()
	bus := local.NewSignalBus(2)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamCopyTrades, []byte(p)))
	}

	msgs, err := bus.StreamRead(ctx, domain.StreamCopyTrades, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, domain.StreamCopyTrades, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	rl := local.NewRateLimiter(1, 1)

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "ip", 2, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "ip", 2, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = rl.Allow(ctx, "ip", 0, time.Hour)
	assert.Error(t, err)
}
