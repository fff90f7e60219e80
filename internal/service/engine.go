package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// DefaultRefundAge is how long a single-bettor market may stay open before
// the sweep refunds it.
const DefaultRefundAge = 78 * time.Hour

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EngineConfig holds the engine's tunables.
type EngineConfig struct {
	Fees        domain.Fees
	AdminWallet string
	RefundAge   time.Duration
	LockTTL     time.Duration
	LockTimeout time.Duration
}

// Engine is the market accounting engine. Every mutation runs as one
// load → mutate → save cycle on the markets document inside a single-writer
// critical section; balance and stats writes follow while the section is
// still held.
type Engine struct {
	cfg      EngineConfig
	ledger   *LedgerStore
	balances *BalanceService
	stats    *StatsService
	copyLog  domain.CopyTradeLog
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	lock     *writerLock
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an Engine with all required dependencies.
func NewEngine(
	cfg EngineConfig,
	ledger *LedgerStore,
	balances *BalanceService,
	stats *StatsService,
	copyLog domain.CopyTradeLog,
	logger *slog.Logger,
) *Engine {
	if cfg.Fees.EntryRate.IsZero() && cfg.Fees.SettlementRate.IsZero() {
		cfg.Fees = domain.DefaultFees()
	}
	if cfg.RefundAge <= 0 {
		cfg.RefundAge = DefaultRefundAge
	}
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		balances: balances,
		stats:    stats,
		copyLog:  copyLog,
		lock:     newWriterLock(lockMarkets, cfg.LockTTL, cfg.LockTimeout),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// WithLocks serialises mutations across every process sharing the store.
func (e *Engine) WithLocks(lm domain.LockManager) *Engine {
	e.lock.locks = lm
	return e
}

// WithSignalBus publishes ledger events after each committed mutation.
func (e *Engine) WithSignalBus(bus domain.SignalBus) *Engine {
	e.bus = bus
	return e
}

// WithAudit records privileged actions and settlements.
func (e *Engine) WithAudit(audit domain.AuditStore) *Engine {
	e.audit = audit
	return e
}

// WithNotifier sends operator alerts on resolution and refunds.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Fees returns the configured fee schedule.
func (e *Engine) Fees() domain.Fees { return e.cfg.Fees }

// IsAdmin reports whether wallet is the configured admin wallet.
func (e *Engine) IsAdmin(wallet string) bool {
	return e.cfg.AdminWallet != "" && wallet == e.cfg.AdminWallet
}

func (e *Engine) requireAdmin(wallet string) error {
	if !e.IsAdmin(wallet) {
		return domain.ErrUnauthorized
	}
	return nil
}

// ListMarkets returns every market, newest first.
func (e *Engine) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	doc, err := e.ledger.LoadMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}
	out := make([]domain.Market, len(doc.Markets))
	for i := range doc.Markets {
		out[len(out)-1-i] = doc.Markets[i]
	}
	return out, nil
}

// GetMarket returns one market.
func (e *Engine) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	doc, err := e.ledger.LoadMarkets(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: get market: %w", err)
	}
	m := doc.Find(id)
	if m == nil {
		return domain.Market{}, fmt.Errorf("engine: market %s: %w", id, domain.ErrNotFound)
	}
	return *m, nil
}

// txn collects the side effects of one mutation. They are applied only after
// the markets document is saved.
type txn struct {
	now     time.Time
	entries []domain.BalanceEntry
	events  []eventOut
	audits  []auditOut
	notes   []noteOut
}

type eventOut struct {
	channel string
	event   domain.LedgerEvent
}

type auditOut struct {
	event  string
	detail map[string]any
}

type noteOut struct {
	event, title, message string
}

func (t *txn) credit(e domain.BalanceEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now
	}
	t.entries = append(t.entries, e)
}

func (t *txn) emit(channel, typ string, m *domain.Market, wallet string, payload any) {
	t.events = append(t.events, eventOut{
		channel: channel,
		event: domain.LedgerEvent{
			Type:     typ,
			MarketID: m.ID,
			Wallet:   wallet,
			Payload:  payload,
			At:       t.now,
		},
	})
}

func (t *txn) auditf(event string, detail map[string]any) {
	t.audits = append(t.audits, auditOut{event: event, detail: detail})
}

func (t *txn) notify(event, title, message string) {
	t.notes = append(t.notes, noteOut{event: event, title: title, message: message})
}

// touch bumps the market's optimistic version.
func (t *txn) touch(m *domain.Market) {
	m.Version++
}

// errNoChange ends a mutation without saving.
var errNoChange = errors.New("no change")

// commitErr makes mutate persist the document and then return err. It lets
// an operation record a state transition and still reject the call.
type commitErr struct{ err error }

func (c *commitErr) Error() string { return c.err.Error() }
func (c *commitErr) Unwrap() error { return c.err }

// mutate runs fn on a freshly loaded markets document inside the writer
// lock, saves the result, then applies balance entries, refreshes stats and
// publishes events.
func (e *Engine) mutate(ctx context.Context, op string, fn func(doc *domain.MarketsDocument, t *txn) error) error {
	unlock, err := e.lock.acquire(ctx)
	if err != nil {
		return fmt.Errorf("engine: %s: %w", op, err)
	}

	t := &txn{now: e.now().UTC()}
	doc, err := e.ledger.LoadMarkets(ctx)
	if err != nil {
		unlock()
		return fmt.Errorf("engine: %s: %w", op, err)
	}

	var deferred error
	if err := fn(&doc, t); err != nil {
		var ce *commitErr
		switch {
		case errors.Is(err, errNoChange):
			unlock()
			return nil
		case errors.As(err, &ce):
			deferred = ce.err
		default:
			unlock()
			return fmt.Errorf("engine: %s: %w", op, err)
		}
	}

	doc.Version++
	doc.LastUpdated = t.now.UnixMilli()
	if err := e.ledger.SaveMarkets(ctx, doc); err != nil {
		unlock()
		e.logger.ErrorContext(ctx, "markets save failed; mutation discarded",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("engine: %s: %w", op, err)
	}

	e.secondaryWrites(ctx, op, doc, t)
	unlock()

	e.afterCommit(ctx, t)
	if deferred != nil {
		return fmt.Errorf("engine: %s: %w", op, deferred)
	}
	return nil
}

// secondaryWrites applies balance entries and refreshes stats. Failures are
// logged: the markets document is already committed, the journal is
// replayable and stats are recomputed on the next mutation.
func (e *Engine) secondaryWrites(ctx context.Context, op string, doc domain.MarketsDocument, t *txn) {
	if len(t.entries) > 0 {
		if err := e.balances.Apply(ctx, t.entries...); err != nil {
			e.logger.ErrorContext(ctx, "balance update failed after markets commit",
				slog.String("op", op),
				slog.Int("entries", len(t.entries)),
				slog.String("error", err.Error()),
			)
			t.auditf("balance.secondary_write_failed", map[string]any{
				"op":    op,
				"error": err.Error(),
			})
		}
	}
	if _, err := e.stats.Refresh(ctx, doc); err != nil {
		e.logger.WarnContext(ctx, "stats refresh failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) afterCommit(ctx context.Context, t *txn) {
	if e.bus != nil {
		for _, ev := range t.events {
			payload, err := json.Marshal(ev.event)
			if err != nil {
				continue
			}
			if err := e.bus.Publish(ctx, ev.channel, payload); err != nil {
				e.logger.WarnContext(ctx, "publish ledger event failed",
					slog.String("channel", ev.channel),
					slog.String("type", ev.event.Type),
					slog.String("error", err.Error()),
				)
			}
			if ev.channel == domain.ChannelCopyTrades {
				if err := e.bus.StreamAppend(ctx, domain.StreamCopyTrades, payload); err != nil {
					e.logger.WarnContext(ctx, "copy trade stream append failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
	if e.audit != nil {
		for _, a := range t.audits {
			if err := e.audit.Log(ctx, a.event, a.detail); err != nil {
				e.logger.WarnContext(ctx, "audit log failed",
					slog.String("event", a.event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if e.notifier != nil {
		for _, n := range t.notes {
			if err := e.notifier.Notify(ctx, n.event, n.title, n.message); err != nil {
				e.logger.WarnContext(ctx, "notification failed",
					slog.String("event", n.event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// findMarket returns the market or ErrNotFound.
func findMarket(doc *domain.MarketsDocument, id string) (*domain.Market, error) {
	m := doc.Find(id)
	if m == nil {
		return nil, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// refreshPrices recomputes the implied prices of the market and its outcomes.
func refreshPrices(m *domain.Market) {
	m.YesPrice = domain.Price(m.TotalYesAmount, m.TotalYesAmount, m.TotalNoAmount)
	m.NoPrice = domain.Price(m.TotalNoAmount, m.TotalYesAmount, m.TotalNoAmount)
	for i := range m.Outcomes {
		o := &m.Outcomes[i]
		o.YesPrice = domain.Price(o.TotalYesAmount, o.TotalYesAmount, o.TotalNoAmount)
		o.NoPrice = domain.Price(o.TotalNoAmount, o.TotalYesAmount, o.TotalNoAmount)
	}
}

func addUnique(set []string, wallet string) []string {
	for _, w := range set {
		if w == wallet {
			return set
		}
	}
	return append(set, wallet)
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
