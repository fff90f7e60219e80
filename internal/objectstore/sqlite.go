package objectstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    key        TEXT PRIMARY KEY,
    body       BLOB     NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// SQLiteBackend is the on-disk local cache. It uses the pure-Go modernc
// driver, so no cgo toolchain is needed.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the cache database at path. Use
// ":memory:" for an ephemeral cache.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Put upserts the document under key.
func (s *SQLiteBackend) Put(ctx context.Context, key string, data []byte) error {
	const q = `
		INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("sqlite: put %s: %w", key, err)
	}
	return nil
}

// Get returns the document under key, or domain.ErrNotFound.
func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: get %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	return body, nil
}

// Name returns the backend identifier.
func (s *SQLiteBackend) Name() string { return "sqlite" }

// Close releases the database handle.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Compile-time interface check.
var _ domain.DocumentBackend = (*SQLiteBackend)(nil)
