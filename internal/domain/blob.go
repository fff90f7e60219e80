package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is the listing entry for one object in the archive bucket.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter stores ledger documents and snapshot files. PutMultipart is
// used for snapshot journals, which can outgrow a single request.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads the bucket back. Get wraps ErrNotFound when the object
// is missing, which the document store treats as an empty ledger.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes one object. A missing object is not an error.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// BlobBatchDeleter removes many objects in as few requests as the backend
// allows and returns how many were removed.
type BlobBatchDeleter interface {
	DeleteMany(ctx context.Context, paths []string) (int, error)
}

// SnapshotArchiver writes a point-in-time copy of every ledger document and
// returns the number of files written.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, at time.Time) (int, error)
}
