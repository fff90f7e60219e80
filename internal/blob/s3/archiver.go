package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// multipartThreshold is the payload size above which snapshots are uploaded
// with PutMultipart.
const multipartThreshold = 8 * 1024 * 1024

// SnapshotArchiver implements domain.SnapshotArchiver. Each run copies the
// ledger documents and the full balance journal into a timestamped folder:
//
//	snapshots/2026-10-16/1530/markets.json
//	snapshots/2026-10-16/1530/balances.json
//	snapshots/2026-10-16/1530/platform-stats.json
//	snapshots/2026-10-16/1530/balance-journal.jsonl
//
// Snapshots are never read back by the engine; they exist for recovery and
// offline analysis.
type SnapshotArchiver struct {
	writer  domain.BlobWriter
	docs    domain.ObjectStore
	journal domain.BalanceJournal
	audit   domain.AuditStore
	prefix  string
}

// NewSnapshotArchiver creates a SnapshotArchiver. audit may be nil.
func NewSnapshotArchiver(
	writer domain.BlobWriter,
	docs domain.ObjectStore,
	journal domain.BalanceJournal,
	audit domain.AuditStore,
) *SnapshotArchiver {
	return &SnapshotArchiver{
		writer:  writer,
		docs:    docs,
		journal: journal,
		audit:   audit,
		prefix:  "snapshots",
	}
}

// ArchiveSnapshot uploads one snapshot and returns the number of objects
// written. Documents that do not exist yet are skipped.
func (a *SnapshotArchiver) ArchiveSnapshot(ctx context.Context, at time.Time) (int, error) {
	dir := snapshotDir(a.prefix, at)
	written := 0

	for _, key := range domain.LedgerDocuments {
		var raw json.RawMessage
		found, err := a.docs.GetJSON(ctx, key, &raw)
		if err != nil {
			return written, fmt.Errorf("s3blob: snapshot read %s: %w", key, err)
		}
		if !found {
			continue
		}
		if err := a.upload(ctx, path.Join(dir, key), raw, "application/json"); err != nil {
			return written, err
		}
		written++
	}

	entries, err := a.journal.All(ctx)
	if err != nil {
		return written, fmt.Errorf("s3blob: snapshot read journal: %w", err)
	}
	if len(entries) > 0 {
		buf, err := marshalJSONL(entries)
		if err != nil {
			return written, fmt.Errorf("s3blob: snapshot marshal journal: %w", err)
		}
		if err := a.upload(ctx, path.Join(dir, "balance-journal.jsonl"), buf, "application/x-ndjson"); err != nil {
			return written, err
		}
		written++
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.snapshot", map[string]any{
			"path":    dir,
			"objects": written,
			"entries": len(entries),
			"at":      at.UTC().Format(time.RFC3339),
		}); err != nil {
			return written, fmt.Errorf("s3blob: snapshot audit log: %w", err)
		}
	}

	return written, nil
}

func (a *SnapshotArchiver) upload(ctx context.Context, key string, data []byte, contentType string) error {
	var err error
	if len(data) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(data), 0)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(data), contentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: snapshot upload %s: %w", key, err)
	}
	return nil
}

// PruneSnapshots deletes snapshot objects whose day folder is older than
// before and returns how many were removed. A deleter that also implements
// domain.BlobBatchDeleter removes them in batches.
func PruneSnapshots(ctx context.Context, reader domain.BlobReader, deleter domain.BlobDeleter, before time.Time) (int, error) {
	infos, err := reader.List(ctx, "snapshots/")
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune list: %w", err)
	}

	cutoff := before.UTC().Format("2006-01-02")
	var stale []string
	for _, info := range infos {
		if day, ok := snapshotDay(info.Path); ok && day < cutoff {
			stale = append(stale, info.Path)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if batch, ok := deleter.(domain.BlobBatchDeleter); ok {
		n, err := batch.DeleteMany(ctx, stale)
		if err != nil {
			return n, fmt.Errorf("s3blob: prune: %w", err)
		}
		return n, nil
	}

	for i, p := range stale {
		if err := deleter.Delete(ctx, p); err != nil {
			return i, fmt.Errorf("s3blob: prune: %w", err)
		}
	}
	return len(stale), nil
}

// snapshotDir builds the folder for a snapshot taken at t, in UTC.
func snapshotDir(prefix string, t time.Time) string {
	t = t.UTC()
	return path.Join(prefix, t.Format("2006-01-02"), t.Format("1504"))
}

// snapshotDay extracts the yyyy-mm-dd folder from a snapshot object path.
func snapshotDay(p string) (string, bool) {
	parts := strings.Split(p, "/")
	if len(parts) < 3 || parts[0] != "snapshots" {
		return "", false
	}
	if _, err := time.Parse("2006-01-02", parts[1]); err != nil {
		return "", false
	}
	return parts[1], true
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.SnapshotArchiver = (*SnapshotArchiver)(nil)
