package objectstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/objectstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyBackend fails the first failures calls, then delegates to a memory
// backend.
type flakyBackend struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    *objectstore.MemoryBackend
}

func newFlaky(failures int) *flakyBackend {
	return &flakyBackend{failures: failures, inner: objectstore.NewMemoryBackend()}
}

func (f *flakyBackend) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.calls <= f.failures
}

func (f *flakyBackend) Put(ctx context.Context, key string, data []byte) error {
	if f.fail() {
		return errors.New("connection reset")
	}
	return f.inner.Put(ctx, key, data)
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.fail() {
		return nil, errors.New("connection reset")
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyBackend) Name() string { return "flaky" }

type doc struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

func fastOpts() objectstore.Options {
	return objectstore.Options{MaxRetries: 3, BaseDelay: time.Millisecond}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := objectstore.New(objectstore.NewMemoryBackend(), nil, fastOpts(), discardLogger())

	require.NoError(t, s.PutJSON(ctx, "a.json", doc{Name: "x", Amount: decimal.RequireFromString("1.5")}))

	var got doc
	found, err := s.GetJSON(ctx, "a.json", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "x", got.Name)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1.5")))
}

func TestStore_MissingKeyIsNotAnError(t *testing.T) {
	s := objectstore.New(objectstore.NewMemoryBackend(), objectstore.NewMemoryBackend(), fastOpts(), discardLogger())

	var got doc
	found, err := s.GetJSON(context.Background(), "missing.json", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	primary := newFlaky(2)
	s := objectstore.New(primary, nil, fastOpts(), discardLogger())

	require.NoError(t, s.PutJSON(ctx, "k", doc{Name: "retry"}))
	assert.Equal(t, 3, primary.calls)
}

func TestStore_FallsBackWhenPrimaryDown(t *testing.T) {
	ctx := context.Background()
	primary := newFlaky(1000)
	fallback := objectstore.NewMemoryBackend()

	var degradedOps []string
	opts := fastOpts()
	opts.OnDegraded = func(_ context.Context, op, key string, _ error) {
		degradedOps = append(degradedOps, op+":"+key)
	}
	s := objectstore.New(primary, fallback, opts, discardLogger())

	require.NoError(t, s.PutJSON(ctx, "k", doc{Name: "cached"}))

	var got doc
	found, err := s.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cached", got.Name)
	assert.Equal(t, []string{"put:k", "get:k"}, degradedOps)
}

func TestStore_WritesThroughToFallback(t *testing.T) {
	ctx := context.Background()
	fallback := objectstore.NewMemoryBackend()
	s := objectstore.New(objectstore.NewMemoryBackend(), fallback, fastOpts(), discardLogger())

	require.NoError(t, s.PutJSON(ctx, "k", doc{Name: "through"}))

	raw, err := fallback.Get(ctx, "k")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "through")
}

func TestStore_UnavailableWhenBothFail(t *testing.T) {
	ctx := context.Background()
	s := objectstore.New(newFlaky(1000), newFlaky(1000), fastOpts(), discardLogger())

	err := s.PutJSON(ctx, "k", doc{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = s.GetJSON(ctx, "k", &doc{})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestStore_ContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := objectstore.New(newFlaky(1000), objectstore.NewMemoryBackend(),
		objectstore.Options{MaxRetries: 5, BaseDelay: time.Second}, discardLogger())

	err := s.PutJSON(ctx, "k", doc{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	b, err := objectstore.NewSQLiteBackend(":memory:")
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, b.Put(ctx, "k", []byte(`{"v":1}`)))
	require.NoError(t, b.Put(ctx, "k", []byte(`{"v":2}`)))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))
}

type fakeBlob struct {
	objects map[string][]byte
}

func (f *fakeBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = b
	return nil
}

func (f *fakeBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

func (f *fakeBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func TestBlobBackend_PrefixesKeys(t *testing.T) {
	ctx := context.Background()
	blob := &fakeBlob{objects: map[string][]byte{}}
	b := objectstore.NewBlobBackend(blob, blob, "ledger")

	require.NoError(t, b.Put(ctx, "markets.json", []byte(`{}`)))
	assert.Contains(t, blob.objects, "ledger/markets.json")

	_, err := b.Get(ctx, "balances.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
