// Package objectstore implements the key → JSON document store the ledger is
// persisted in. A Store wraps a primary DocumentBackend with retry and
// exponential backoff, writes every successful document through to a local
// cache backend, and serves from that cache when the primary stays down.
package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// Options tunes the retry policy of a Store.
type Options struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// BaseDelay is the wait before the first retry; each retry doubles it.
	BaseDelay time.Duration
	// OnDegraded, if set, is called when an operation is served by the
	// fallback after the primary exhausted its retries.
	OnDegraded func(ctx context.Context, op, key string, cause error)
}

// Store implements domain.ObjectStore over a primary and a fallback backend.
type Store struct {
	primary  domain.DocumentBackend
	fallback domain.DocumentBackend
	opts     Options
	logger   *slog.Logger
}

// New creates a Store. fallback may be nil, in which case primary failures
// surface as domain.ErrStorageUnavailable after retries.
func New(primary, fallback domain.DocumentBackend, opts Options, logger *slog.Logger) *Store {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	return &Store{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		logger:   logger.With(slog.String("component", "objectstore")),
	}
}

// PutJSON marshals v and stores it under key.
func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("objectstore: marshal %s: %w", key, err)
	}

	err = s.withRetry(ctx, "put", key, func() error {
		return s.primary.Put(ctx, key, data)
	})
	if err == nil {
		s.writeThrough(ctx, key, data)
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, ctx.Err())
	}

	if s.fallback == nil {
		return fmt.Errorf("objectstore: put %s: %w: %v", key, domain.ErrStorageUnavailable, err)
	}
	if ferr := s.fallback.Put(ctx, key, data); ferr != nil {
		return fmt.Errorf("objectstore: put %s: %w: primary: %v; fallback: %v",
			key, domain.ErrStorageUnavailable, err, ferr)
	}
	s.degraded(ctx, "put", key, err)
	return nil
}

// GetJSON loads the document under key into v. A missing key yields
// found=false and a nil error.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	var data []byte
	err := s.withRetry(ctx, "get", key, func() error {
		b, err := s.primary.Get(ctx, key)
		if err != nil {
			return err
		}
		data = b
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case ctx.Err() != nil:
		return false, fmt.Errorf("objectstore: get %s: %w", key, ctx.Err())
	default:
		if s.fallback == nil {
			return false, fmt.Errorf("objectstore: get %s: %w: %v", key, domain.ErrStorageUnavailable, err)
		}
		b, ferr := s.fallback.Get(ctx, key)
		if ferr != nil {
			return false, fmt.Errorf("objectstore: get %s: %w: primary: %v; fallback: %v",
				key, domain.ErrStorageUnavailable, err, ferr)
		}
		s.degraded(ctx, "get", key, err)
		data = b
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("objectstore: decode %s: %w", key, err)
	}
	return true, nil
}

// withRetry runs fn up to MaxRetries+1 times with exponential backoff.
// ErrNotFound and context errors are returned immediately.
func (s *Store) withRetry(ctx context.Context, op, key string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == s.opts.MaxRetries {
			break
		}
		s.logger.WarnContext(ctx, "backend call failed, retrying",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("backend", s.primary.Name()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if !s.sleep(ctx, attempt) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s after %d retries: %w", s.primary.Name(), s.opts.MaxRetries, err)
}

func (s *Store) sleep(ctx context.Context, attempt int) bool {
	wait := time.Duration(math.Pow(2, float64(attempt))) * s.opts.BaseDelay
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Store) writeThrough(ctx context.Context, key string, data []byte) {
	if s.fallback == nil {
		return
	}
	if err := s.fallback.Put(ctx, key, data); err != nil {
		s.logger.WarnContext(ctx, "local cache write failed",
			slog.String("key", key),
			slog.String("backend", s.fallback.Name()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) degraded(ctx context.Context, op, key string, cause error) {
	s.logger.ErrorContext(ctx, "primary backend unavailable, served from local cache",
		slog.String("op", op),
		slog.String("key", key),
		slog.String("primary", s.primary.Name()),
		slog.String("fallback", s.fallback.Name()),
		slog.String("error", cause.Error()),
	)
	if s.opts.OnDegraded != nil {
		s.opts.OnDegraded(ctx, op, key, cause)
	}
}

func retryable(err error) bool {
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Compile-time interface check.
var _ domain.ObjectStore = (*Store)(nil)
