package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// DocumentStore implements domain.DocumentBackend on the ledger_documents
// table. Bodies are stored as JSONB.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore creates a new DocumentStore backed by the given connection pool.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Name identifies the backend in logs.
func (s *DocumentStore) Name() string { return "postgres" }

// Put upserts the document body for key.
func (s *DocumentStore) Put(ctx context.Context, key string, data []byte) error {
	const query = `
		INSERT INTO ledger_documents (key, body, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE SET
			body       = EXCLUDED.body,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, key, string(data)); err != nil {
		return fmt.Errorf("postgres: put document %s: %w", key, err)
	}
	return nil
}

// Get returns the document body for key or domain.ErrNotFound.
func (s *DocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT body::text FROM ledger_documents WHERE key = $1`

	var body string
	if err := s.pool.QueryRow(ctx, query, key).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get document %s: %w", key, err)
	}
	return []byte(body), nil
}

// Compile-time interface check.
var _ domain.DocumentBackend = (*DocumentStore)(nil)
