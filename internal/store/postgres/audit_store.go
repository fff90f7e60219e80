package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. The market_id
// and wallet detail keys are copied into indexed columns.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit row.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	body, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const query = `
		INSERT INTO audit_log (event, market_id, wallet, detail)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, event, detailString(detail, "market_id"), detailString(detail, "wallet"), body); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.list(ctx, newListQuery(`SELECT id, event, detail, created_at FROM audit_log`).window(opts))
}

// ListByMarket returns the audit history of one market, newest first.
func (s *AuditStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	q := newListQuery(`SELECT id, event, detail, created_at FROM audit_log`).
		and("market_id = ?", marketID).
		window(opts)
	return s.list(ctx, q)
}

func (s *AuditStore) list(ctx context.Context, q *listQuery) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var e domain.AuditEntry
		err := row.Scan(&e.ID, &e.Event, &e.Detail, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit entries: %w", err)
	}
	return entries, nil
}

func detailString(detail map[string]any, key string) string {
	if v, ok := detail[key].(string); ok {
		return v
	}
	return ""
}

var _ domain.AuditStore = (*AuditStore)(nil)
