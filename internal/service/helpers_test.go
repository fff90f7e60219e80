package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/cache/local"
	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/objectstore"
	"github.com/okeymeta/probalyze-sub000/internal/service"
)

const admin = "AdminWa11et"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// failingStore wraps an ObjectStore and fails writes of one key on demand.
type failingStore struct {
	domain.ObjectStore
	failKey string
	fail    atomic.Bool
}

func (f *failingStore) PutJSON(ctx context.Context, key string, v any) error {
	if f.fail.Load() && key == f.failKey {
		return fmt.Errorf("put %s: %w", key, domain.ErrStorageUnavailable)
	}
	return f.ObjectStore.PutJSON(ctx, key, v)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type harness struct {
	engine   *service.Engine
	balances *service.BalanceService
	stats    *service.StatsService
	ledger   *service.LedgerStore
	journal  domain.BalanceJournal
	bus      *local.SignalBus
	store    *failingStore
	notifier *recordingNotifier
	clock    *fakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := discardLogger()
	clock := &fakeClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}

	mem := objectstore.New(objectstore.NewMemoryBackend(), nil, objectstore.Options{}, logger)
	store := &failingStore{ObjectStore: mem, failKey: domain.DocMarkets}
	ledger := service.NewLedgerStore(store)
	journal := objectstore.NewJournal(mem)
	locks := local.NewLockManager()
	bus := local.NewSignalBus(100)
	notifier := &recordingNotifier{}

	balances := service.NewBalanceService(ledger, journal, logger).
		WithLocks(locks, time.Minute, time.Second).
		WithSignalBus(bus).
		WithClock(clock.Now)
	stats := service.NewStatsService(ledger, logger).WithClock(clock.Now)
	engine := service.NewEngine(service.EngineConfig{AdminWallet: admin}, ledger, balances, stats, objectstore.NewCopyTradeLog(mem), logger).
		WithLocks(locks).
		WithSignalBus(bus).
		WithNotifier(notifier).
		WithClock(clock.Now)

	return &harness{
		engine:   engine,
		balances: balances,
		stats:    stats,
		ledger:   ledger,
		journal:  journal,
		bus:      bus,
		store:    store,
		notifier: notifier,
		clock:    clock,
	}
}

func (h *harness) createMarket(t *testing.T, outcomes ...string) domain.Market {
	t.Helper()
	m, err := h.engine.CreateMarket(context.Background(), admin, service.MarketInput{
		Title:    "Will it rain in Lagos on Friday?",
		ClosesAt: h.clock.Now().Add(30 * 24 * time.Hour),
		Outcomes: outcomes,
	})
	require.NoError(t, err)
	return m
}

// seedBets writes bets with the given net amounts straight into a market,
// keeping pool totals consistent, so tests can start from exact pools.
func (h *harness) seedBets(t *testing.T, marketID string, bets ...domain.Bet) {
	t.Helper()
	ctx := context.Background()
	doc, err := h.ledger.LoadMarkets(ctx)
	require.NoError(t, err)
	m := doc.Find(marketID)
	require.NotNil(t, m)
	for i, b := range bets {
		if b.ID == "" {
			b.ID = fmt.Sprintf("seed_%d_%s", i, strings.ToLower(b.Wallet))
		}
		if b.Timestamp.IsZero() {
			b.Timestamp = h.clock.Now()
		}
		if b.PlatformFee.IsZero() {
			b.PlatformFee = decimal.Zero
		}
		m.Bets = append(m.Bets, b)
		o := m.FindOutcome(b.OutcomeID)
		if b.Side == domain.SideYes {
			m.TotalYesAmount = m.TotalYesAmount.Add(b.Amount)
			if o != nil {
				o.TotalYesAmount = o.TotalYesAmount.Add(b.Amount)
			}
		} else {
			m.TotalNoAmount = m.TotalNoAmount.Add(b.Amount)
			if o != nil {
				o.TotalNoAmount = o.TotalNoAmount.Add(b.Amount)
			}
		}
	}
	require.NoError(t, h.ledger.SaveMarkets(ctx, doc))
}

func (h *harness) market(t *testing.T, id string) domain.Market {
	t.Helper()
	m, err := h.engine.GetMarket(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (h *harness) balance(t *testing.T, wallet string) decimal.Decimal {
	t.Helper()
	b, err := h.balances.Get(context.Background(), wallet)
	require.NoError(t, err)
	return b.Balance
}

func (h *harness) deposit(t *testing.T, wallet string, amount string) {
	t.Helper()
	_, err := h.balances.Deposit(context.Background(), wallet, dec(amount), "")
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{fmt.Sprintf("want %s, got %s", want, got)}, msgAndArgs...)...)
}

func bet(wallet string, side domain.Side, net string) domain.Bet {
	return domain.Bet{Wallet: wallet, Side: side, Amount: dec(net)}
}
