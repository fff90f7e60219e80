package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// BlobBackend stores documents as objects in blob storage (S3 or a
// compatible provider) under a key prefix.
type BlobBackend struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	prefix string
}

// NewBlobBackend creates a BlobBackend. Keys are stored as prefix/key.
func NewBlobBackend(reader domain.BlobReader, writer domain.BlobWriter, prefix string) *BlobBackend {
	return &BlobBackend{reader: reader, writer: writer, prefix: prefix}
}

func (b *BlobBackend) objectPath(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

// Put uploads the document as application/json.
func (b *BlobBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := b.writer.Put(ctx, b.objectPath(key), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	return nil
}

// Get downloads the document. The reader already maps a missing object to
// domain.ErrNotFound.
func (b *BlobBackend) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := b.reader.Get(ctx, b.objectPath(key))
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return data, nil
}

// Name returns the backend identifier.
func (b *BlobBackend) Name() string { return "s3" }

// Compile-time interface check.
var _ domain.DocumentBackend = (*BlobBackend)(nil)
