package objectstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/objectstore"
)

func newMemStore() *objectstore.Store {
	return objectstore.New(objectstore.NewMemoryBackend(), nil, fastOpts(), discardLogger())
}

func TestJournal_AppendIsIdempotentByOpID(t *testing.T) {
	ctx := context.Background()
	j := objectstore.NewJournal(newMemStore())

	e := domain.BalanceEntry{
		OpID:      "resolve:m1:alice",
		Wallet:    "alice",
		Type:      domain.EntryWinning,
		Amount:    decimal.NewFromInt(5),
		CreatedAt: time.Now().UTC(),
	}
	ok, err := j.Append(ctx, e)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = j.Append(ctx, e)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate op id must be ignored")

	_, err = j.Append(ctx, domain.BalanceEntry{OpID: "dep:1", Wallet: "bob", Type: domain.EntryDeposit, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	alice, err := j.ListByWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 1)

	all, err := j.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCopyTradeLog_ListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	l := objectstore.NewCopyTradeLog(newMemStore())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, pair := range [][2]string{{"a", "t"}, {"b", "t"}, {"a", "u"}} {
		require.NoError(t, l.Append(ctx, domain.CopyTradeRecord{
			ID:           string(rune('1' + i)),
			CopierWallet: pair[0],
			TargetWallet: pair[1],
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := l.List(ctx, "a", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "u", recs[0].TargetWallet, "newest first")

	recs, err = l.List(ctx, "t", domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].CopierWallet)

	recs, err = l.List(ctx, "", domain.ListOpts{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
