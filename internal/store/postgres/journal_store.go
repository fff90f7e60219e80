package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// JournalStore implements domain.BalanceJournal using PostgreSQL. The unique
// op_id column makes Append idempotent.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append inserts the entry and reports false when its OpID already exists.
func (s *JournalStore) Append(ctx context.Context, e domain.BalanceEntry) (bool, error) {
	const query = `
		INSERT INTO balance_journal (
			op_id, wallet, entry_type, amount, market_id, reference, created_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (op_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		e.OpID, e.Wallet, string(e.Type), e.Amount.String(),
		e.MarketID, e.Reference, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: append journal %s: %w", e.OpID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByWallet returns the wallet's entries in journal order.
func (s *JournalStore) ListByWallet(ctx context.Context, wallet string) ([]domain.BalanceEntry, error) {
	const query = `
		SELECT op_id, wallet, entry_type, amount::text, market_id, reference, created_at
		FROM balance_journal
		WHERE wallet = $1
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal for %s: %w", wallet, err)
	}
	return scanJournal(rows)
}

// All returns the whole journal in order.
func (s *JournalStore) All(ctx context.Context) ([]domain.BalanceEntry, error) {
	const query = `
		SELECT op_id, wallet, entry_type, amount::text, market_id, reference, created_at
		FROM balance_journal
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal: %w", err)
	}
	return scanJournal(rows)
}

func scanJournal(rows pgx.Rows) ([]domain.BalanceEntry, error) {
	defer rows.Close()

	var entries []domain.BalanceEntry
	for rows.Next() {
		var (
			e         domain.BalanceEntry
			entryType string
			amount    string
		)
		if err := rows.Scan(&e.OpID, &e.Wallet, &entryType, &amount, &e.MarketID, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse journal amount %q: %w", amount, err)
		}
		e.Type = domain.EntryType(entryType)
		e.Amount = d
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: journal rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.BalanceJournal = (*JournalStore)(nil)
