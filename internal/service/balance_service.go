package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// BalanceService is the wallet ledger. Every change is first appended to the
// journal under a unique OpID and only then folded into the balances
// document, so the document can always be rebuilt from the journal.
type BalanceService struct {
	ledger  *LedgerStore
	journal domain.BalanceJournal
	lock    *writerLock
	bus     domain.SignalBus
	audit   domain.AuditStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewBalanceService creates a BalanceService with all required dependencies.
func NewBalanceService(ledger *LedgerStore, journal domain.BalanceJournal, logger *slog.Logger) *BalanceService {
	return &BalanceService{
		ledger:  ledger,
		journal: journal,
		lock:    newWriterLock(lockBalances, 0, 0),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "balance_service")),
	}
}

// WithLocks makes balance writes exclusive across processes.
func (s *BalanceService) WithLocks(lm domain.LockManager, ttl, timeout time.Duration) *BalanceService {
	s.lock = newWriterLock(lockBalances, ttl, timeout)
	s.lock.locks = lm
	return s
}

// WithSignalBus publishes a balance event after each applied batch.
func (s *BalanceService) WithSignalBus(bus domain.SignalBus) *BalanceService {
	s.bus = bus
	return s
}

// WithAudit records reduce failures in the audit log.
func (s *BalanceService) WithAudit(audit domain.AuditStore) *BalanceService {
	s.audit = audit
	return s
}

// WithClock overrides the time source.
func (s *BalanceService) WithClock(now func() time.Time) *BalanceService {
	s.now = now
	return s
}

// Get returns the wallet's balance. An unknown wallet has a zero balance.
func (s *BalanceService) Get(ctx context.Context, wallet string) (domain.UserBalance, error) {
	doc, err := s.ledger.LoadBalances(ctx)
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance_service: get %s: %w", wallet, err)
	}
	b, ok := doc[wallet]
	if !ok {
		b = domain.UserBalance{Wallet: wallet}
	}
	return b, nil
}

// List returns every balance.
func (s *BalanceService) List(ctx context.Context) (domain.BalancesDocument, error) {
	doc, err := s.ledger.LoadBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance_service: list: %w", err)
	}
	return doc, nil
}

// Journal returns the wallet's journal entries, oldest first.
func (s *BalanceService) Journal(ctx context.Context, wallet string) ([]domain.BalanceEntry, error) {
	entries, err := s.journal.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("balance_service: journal %s: %w", wallet, err)
	}
	return entries, nil
}

// Deposit credits amount to wallet. A non-empty ref makes the deposit
// idempotent: the same ref is applied once.
func (s *BalanceService) Deposit(ctx context.Context, wallet string, amount decimal.Decimal, ref string) (domain.UserBalance, error) {
	if !amount.IsPositive() {
		return domain.UserBalance{}, fmt.Errorf("balance_service: deposit: %w: amount must be positive", domain.ErrInvalidInput)
	}
	entry := domain.BalanceEntry{
		OpID:      opID("deposit", ref),
		Wallet:    wallet,
		Type:      domain.EntryDeposit,
		Amount:    amount,
		Reference: ref,
	}
	if err := s.Apply(ctx, entry); err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance_service: deposit: %w", err)
	}
	return s.Get(ctx, wallet)
}

// Withdraw debits amount from wallet. It fails with ErrInsufficientFunds
// when the balance is short.
func (s *BalanceService) Withdraw(ctx context.Context, wallet string, amount decimal.Decimal, ref string) (domain.UserBalance, error) {
	if !amount.IsPositive() {
		return domain.UserBalance{}, fmt.Errorf("balance_service: withdraw: %w: amount must be positive", domain.ErrInvalidInput)
	}
	entry := domain.BalanceEntry{
		OpID:      opID("withdraw", ref),
		Wallet:    wallet,
		Type:      domain.EntryWithdraw,
		Amount:    amount,
		Reference: ref,
	}
	if err := s.prepare(&entry); err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance_service: withdraw: %w", err)
	}

	unlock, err := s.lock.acquire(ctx)
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance_service: withdraw: %w", err)
	}
	defer unlock()

	doc, err := s.ledger.LoadBalances(ctx)
	if err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance_service: withdraw: %w", err)
	}
	if doc[wallet].Balance.LessThan(amount) {
		return domain.UserBalance{}, fmt.Errorf("balance_service: withdraw %s from %s: %w", amount, wallet, domain.ErrInsufficientFunds)
	}
	if err := s.applyLocked(ctx, doc, []domain.BalanceEntry{entry}); err != nil {
		return domain.UserBalance{}, fmt.Errorf("balance_service: withdraw: %w", err)
	}
	return doc[wallet], nil
}

// DebitUpTo debits min(balance, entry.Amount) from entry.Wallet and returns
// the amount taken. The balance is read and debited under the same lock, so a
// concurrent withdrawal cannot leave the debit unfunded.
func (s *BalanceService) DebitUpTo(ctx context.Context, entry domain.BalanceEntry) (decimal.Decimal, error) {
	if err := s.prepare(&entry); err != nil {
		return decimal.Zero, fmt.Errorf("balance_service: debit: %w", err)
	}

	unlock, err := s.lock.acquire(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance_service: debit: %w", err)
	}
	defer unlock()

	doc, err := s.ledger.LoadBalances(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance_service: debit: %w", err)
	}
	available := doc[entry.Wallet].Balance
	entry.Amount = decimal.Min(available, entry.Amount)
	if !entry.Amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("balance_service: debit %s: balance %s: %w", entry.Wallet, available, domain.ErrInsufficientFunds)
	}
	if err := s.applyLocked(ctx, doc, []domain.BalanceEntry{entry}); err != nil {
		return decimal.Zero, fmt.Errorf("balance_service: debit: %w", err)
	}
	return entry.Amount, nil
}

// Apply journals and folds the given entries. Entries whose OpID is already
// journaled are skipped, so replaying a settlement never double-credits.
func (s *BalanceService) Apply(ctx context.Context, entries ...domain.BalanceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if err := s.prepare(&entries[i]); err != nil {
			return fmt.Errorf("balance_service: apply: %w", err)
		}
	}

	unlock, err := s.lock.acquire(ctx)
	if err != nil {
		return fmt.Errorf("balance_service: apply: %w", err)
	}
	defer unlock()

	doc, err := s.ledger.LoadBalances(ctx)
	if err != nil {
		return fmt.Errorf("balance_service: apply: %w", err)
	}
	return s.applyLocked(ctx, doc, entries)
}

func (s *BalanceService) applyLocked(ctx context.Context, doc domain.BalancesDocument, entries []domain.BalanceEntry) error {
	var fresh []domain.BalanceEntry
	for _, e := range entries {
		appended, err := s.journal.Append(ctx, e)
		if err != nil {
			return fmt.Errorf("journal append %s: %w", e.OpID, err)
		}
		if !appended {
			s.logger.DebugContext(ctx, "duplicate journal entry skipped",
				slog.String("op_id", e.OpID),
			)
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return nil
	}

	for _, e := range fresh {
		b := doc[e.Wallet]
		b.Wallet = e.Wallet
		b.Apply(e)
		doc[e.Wallet] = b
	}

	if err := s.ledger.SaveBalances(ctx, doc); err != nil {
		s.logger.ErrorContext(ctx, "balance reduce failed after journal append; run rebuild",
			slog.Int("entries", len(fresh)),
			slog.String("error", err.Error()),
		)
		s.auditLog(ctx, "balance.reduce_failed", map[string]any{
			"entries": len(fresh),
			"first":   fresh[0].OpID,
			"error":   err.Error(),
		})
		return err
	}

	s.publish(ctx, fresh)
	return nil
}

// Rebuild recomputes every balance from the journal and returns the number
// of wallets written.
func (s *BalanceService) Rebuild(ctx context.Context) (int, error) {
	unlock, err := s.lock.acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("balance_service: rebuild: %w", err)
	}
	defer unlock()

	entries, err := s.journal.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("balance_service: rebuild: %w", err)
	}

	doc := domain.BalancesDocument{}
	for _, e := range entries {
		b := doc[e.Wallet]
		b.Wallet = e.Wallet
		b.Apply(e)
		doc[e.Wallet] = b
	}

	if err := s.ledger.SaveBalances(ctx, doc); err != nil {
		return 0, fmt.Errorf("balance_service: rebuild: %w", err)
	}

	s.logger.InfoContext(ctx, "balances rebuilt from journal",
		slog.Int("entries", len(entries)),
		slog.Int("wallets", len(doc)),
	)
	s.auditLog(ctx, "balance.rebuild", map[string]any{
		"entries": len(entries),
		"wallets": len(doc),
	})
	return len(doc), nil
}

func (s *BalanceService) prepare(e *domain.BalanceEntry) error {
	if e.Wallet == "" {
		return fmt.Errorf("%w: wallet is required", domain.ErrInvalidInput)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown entry type %q", domain.ErrInvalidInput, e.Type)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount", domain.ErrInvalidInput)
	}
	if e.OpID == "" {
		e.OpID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	return nil
}

func (s *BalanceService) publish(ctx context.Context, entries []domain.BalanceEntry) {
	if s.bus == nil {
		return
	}
	for _, e := range entries {
		payload, err := json.Marshal(domain.LedgerEvent{
			Type:     "balance." + string(e.Type),
			MarketID: e.MarketID,
			Wallet:   e.Wallet,
			Payload:  e,
			At:       e.CreatedAt,
		})
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, domain.ChannelBalances, payload); err != nil {
			s.logger.WarnContext(ctx, "publish balance event failed",
				slog.String("op_id", e.OpID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *BalanceService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// opID derives a stable op id from a caller reference, or a random one.
func opID(kind, ref string) string {
	if ref == "" {
		return kind + ":" + uuid.NewString()
	}
	return kind + ":" + ref
}
