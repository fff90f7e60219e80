package service

import (
	"context"
	"fmt"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// LedgerStore is the typed load/save layer over the object store for the
// three ledger documents. A document that does not exist yet loads as its
// zero value.
type LedgerStore struct {
	docs domain.ObjectStore
}

// NewLedgerStore creates a LedgerStore over docs.
func NewLedgerStore(docs domain.ObjectStore) *LedgerStore {
	return &LedgerStore{docs: docs}
}

// LoadMarkets reads the market collection.
func (s *LedgerStore) LoadMarkets(ctx context.Context) (domain.MarketsDocument, error) {
	var doc domain.MarketsDocument
	if _, err := s.docs.GetJSON(ctx, domain.DocMarkets, &doc); err != nil {
		return domain.MarketsDocument{}, fmt.Errorf("ledger_store: load markets: %w", err)
	}
	return doc, nil
}

// SaveMarkets writes the whole market collection.
func (s *LedgerStore) SaveMarkets(ctx context.Context, doc domain.MarketsDocument) error {
	if doc.Markets == nil {
		doc.Markets = []domain.Market{}
	}
	if err := s.docs.PutJSON(ctx, domain.DocMarkets, doc); err != nil {
		return fmt.Errorf("ledger_store: save markets: %w", err)
	}
	return nil
}

// LoadBalances reads the wallet → balance map.
func (s *LedgerStore) LoadBalances(ctx context.Context) (domain.BalancesDocument, error) {
	doc := domain.BalancesDocument{}
	if _, err := s.docs.GetJSON(ctx, domain.DocBalances, &doc); err != nil {
		return nil, fmt.Errorf("ledger_store: load balances: %w", err)
	}
	if doc == nil {
		doc = domain.BalancesDocument{}
	}
	return doc, nil
}

// SaveBalances writes the wallet → balance map.
func (s *LedgerStore) SaveBalances(ctx context.Context, doc domain.BalancesDocument) error {
	if err := s.docs.PutJSON(ctx, domain.DocBalances, doc); err != nil {
		return fmt.Errorf("ledger_store: save balances: %w", err)
	}
	return nil
}

// LoadStats reads the platform statistics cache.
func (s *LedgerStore) LoadStats(ctx context.Context) (domain.PlatformStats, error) {
	var stats domain.PlatformStats
	if _, err := s.docs.GetJSON(ctx, domain.DocPlatformStats, &stats); err != nil {
		return domain.PlatformStats{}, fmt.Errorf("ledger_store: load stats: %w", err)
	}
	return stats, nil
}

// SaveStats writes the platform statistics cache.
func (s *LedgerStore) SaveStats(ctx context.Context, stats domain.PlatformStats) error {
	if err := s.docs.PutJSON(ctx, domain.DocPlatformStats, stats); err != nil {
		return fmt.Errorf("ledger_store: save stats: %w", err)
	}
	return nil
}
