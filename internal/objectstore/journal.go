package objectstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// Document keys for the logs kept inside the object store.
const (
	JournalKey    = "balance-journal.json"
	CopyTradesKey = "copy-trades.json"
)

// Journal implements domain.BalanceJournal as a single document in an
// ObjectStore. It is used when no SQL journal is configured.
type Journal struct {
	store domain.ObjectStore
	mu    sync.Mutex
}

// NewJournal creates a Journal stored under JournalKey.
func NewJournal(store domain.ObjectStore) *Journal {
	return &Journal{store: store}
}

func (j *Journal) load(ctx context.Context) ([]domain.BalanceEntry, error) {
	var entries []domain.BalanceEntry
	if _, err := j.store.GetJSON(ctx, JournalKey, &entries); err != nil {
		return nil, fmt.Errorf("journal: load: %w", err)
	}
	return entries, nil
}

// Append adds entry unless its OpID is already present.
func (j *Journal) Append(ctx context.Context, entry domain.BalanceEntry) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.OpID == entry.OpID {
			return false, nil
		}
	}
	entries = append(entries, entry)
	if err := j.store.PutJSON(ctx, JournalKey, entries); err != nil {
		return false, fmt.Errorf("journal: append %s: %w", entry.OpID, err)
	}
	return true, nil
}

// ListByWallet returns the wallet's entries, oldest first.
func (j *Journal) ListByWallet(ctx context.Context, wallet string) ([]domain.BalanceEntry, error) {
	entries, err := j.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.BalanceEntry
	for _, e := range entries {
		if e.Wallet == wallet {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every entry, oldest first.
func (j *Journal) All(ctx context.Context) ([]domain.BalanceEntry, error) {
	entries, err := j.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].CreatedAt.Before(entries[b].CreatedAt)
	})
	return entries, nil
}

// CopyTradeLog implements domain.CopyTradeLog as a single document in an
// ObjectStore.
type CopyTradeLog struct {
	store domain.ObjectStore
	mu    sync.Mutex
}

// NewCopyTradeLog creates a CopyTradeLog stored under CopyTradesKey.
func NewCopyTradeLog(store domain.ObjectStore) *CopyTradeLog {
	return &CopyTradeLog{store: store}
}

// Append adds rec to the end of the log.
func (l *CopyTradeLog) Append(ctx context.Context, rec domain.CopyTradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var recs []domain.CopyTradeRecord
	if _, err := l.store.GetJSON(ctx, CopyTradesKey, &recs); err != nil {
		return fmt.Errorf("copytrade log: load: %w", err)
	}
	recs = append(recs, rec)
	if err := l.store.PutJSON(ctx, CopyTradesKey, recs); err != nil {
		return fmt.Errorf("copytrade log: append: %w", err)
	}
	return nil
}

// List returns records newest first, optionally filtered to those where
// wallet is the copier or the target.
func (l *CopyTradeLog) List(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.CopyTradeRecord, error) {
	var recs []domain.CopyTradeRecord
	if _, err := l.store.GetJSON(ctx, CopyTradesKey, &recs); err != nil {
		return nil, fmt.Errorf("copytrade log: load: %w", err)
	}

	out := make([]domain.CopyTradeRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		if wallet != "" && r.CopierWallet != wallet && r.TargetWallet != wallet {
			continue
		}
		if opts.Since != nil && r.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, r)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.BalanceJournal = (*Journal)(nil)
	_ domain.CopyTradeLog   = (*CopyTradeLog)(nil)
)
