package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// MemoryBackend keeps documents in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

// Put stores a copy of data under key.
func (m *MemoryBackend) Put(_ context.Context, key string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.docs[key] = buf
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the document under key.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: get %s: %w", key, domain.ErrNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Name returns the backend identifier.
func (m *MemoryBackend) Name() string { return "memory" }

// Compile-time interface check.
var _ domain.DocumentBackend = (*MemoryBackend)(nil)
