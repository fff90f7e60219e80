package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ObjectStore is a key → JSON document store. GetJSON reports found=false
// with a nil error for a missing key.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v any) error
	GetJSON(ctx context.Context, key string, v any) (found bool, err error)
}

// DocumentBackend stores raw document bytes. Get returns ErrNotFound for a
// missing key.
type DocumentBackend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Name() string
}

// BalanceJournal is the append-only record every balance is reduced from.
type BalanceJournal interface {
	// Append stores the entry and reports false when its OpID is already
	// present, in which case nothing is written.
	Append(ctx context.Context, entry BalanceEntry) (bool, error)
	ListByWallet(ctx context.Context, wallet string) ([]BalanceEntry, error)
	All(ctx context.Context) ([]BalanceEntry, error)
}

// CopyTradeLog persists the append-only copy-trade log.
type CopyTradeLog interface {
	Append(ctx context.Context, rec CopyTradeRecord) error
	List(ctx context.Context, wallet string, opts ListOpts) ([]CopyTradeRecord, error)
}

// AuditEntry is a single append-only audit log record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Ledger document keys in the object store.
const (
	DocMarkets       = "markets.json"
	DocBalances      = "balances.json"
	DocPlatformStats = "platform-stats.json"
)

// LedgerDocuments lists the documents a snapshot captures.
var LedgerDocuments = []string{DocMarkets, DocBalances, DocPlatformStats}
