package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// CopyTradeStore implements domain.CopyTradeLog using PostgreSQL.
type CopyTradeStore struct {
	pool *pgxpool.Pool
}

// NewCopyTradeStore creates a new CopyTradeStore backed by the given connection pool.
func NewCopyTradeStore(pool *pgxpool.Pool) *CopyTradeStore {
	return &CopyTradeStore{pool: pool}
}

// Append inserts one copy-trade record.
func (s *CopyTradeStore) Append(ctx context.Context, rec domain.CopyTradeRecord) error {
	const query = `
		INSERT INTO copy_trades (
			id, copier_wallet, target_wallet, market_id,
			amount, yes_amount, no_amount, dominant_side,
			bet_ids, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7::numeric, $8,
			$9, $10
		)
		ON CONFLICT (id) DO NOTHING`

	betIDs := rec.BetIDs
	if betIDs == nil {
		betIDs = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.CopierWallet, rec.TargetWallet, rec.MarketID,
		rec.Amount.String(), rec.YesAmount.String(), rec.NoAmount.String(), string(rec.DominantSide),
		betIDs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append copy trade %s: %w", rec.ID, err)
	}
	return nil
}

// List returns records newest first. A non-empty wallet matches either the
// copier or the target.
func (s *CopyTradeStore) List(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.CopyTradeRecord, error) {
	q := newListQuery(`
		SELECT id, copier_wallet, target_wallet, market_id,
		       amount::text, yes_amount::text, no_amount::text, dominant_side,
		       bet_ids, created_at
		FROM copy_trades`)
	if wallet != "" {
		q.and("(copier_wallet = ? OR target_wallet = ?)", wallet)
	}
	q.window(opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list copy trades: %w", err)
	}
	defer rows.Close()

	var out []domain.CopyTradeRecord
	for rows.Next() {
		var (
			rec             domain.CopyTradeRecord
			amount, yes, no string
			side            string
		)
		if err := rows.Scan(
			&rec.ID, &rec.CopierWallet, &rec.TargetWallet, &rec.MarketID,
			&amount, &yes, &no, &side,
			&rec.BetIDs, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan copy trade: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("postgres: parse copy trade amount: %w", err)
		}
		if rec.YesAmount, err = decimal.NewFromString(yes); err != nil {
			return nil, fmt.Errorf("postgres: parse copy trade yes amount: %w", err)
		}
		if rec.NoAmount, err = decimal.NewFromString(no); err != nil {
			return nil, fmt.Errorf("postgres: parse copy trade no amount: %w", err)
		}
		rec.DominantSide = domain.Side(side)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: copy trade rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.CopyTradeLog = (*CopyTradeStore)(nil)
