package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformStats is a dashboard cache. Every field can be reconstructed from
// the markets document.
type PlatformStats struct {
	TotalVolume         decimal.Decimal `json:"totalVolume"`
	TotalFees           decimal.Decimal `json:"totalFees"`
	TotalSettlementFees decimal.Decimal `json:"totalSettlementFees"`
	TotalUsers          int             `json:"totalUsers"`
	TotalMarkets        int             `json:"totalMarkets"`
	ActiveMarkets       int             `json:"activeMarkets"`
	ResolvedMarkets     int             `json:"resolvedMarkets"`
	TotalPoolMoney      decimal.Decimal `json:"totalPoolMoney"`
	Volume24h           decimal.Decimal `json:"volume24h"`
	Fees24h             decimal.Decimal `json:"fees24h"`
	UnclaimedPools      decimal.Decimal `json:"unclaimedPools"`
	TotalRefunds        decimal.Decimal `json:"totalRefunds"`
	LastUpdated         time.Time       `json:"lastUpdated"`
}

// CopyTradeRecord is one entry of the append-only copy-trade log. It is kept
// for analytics; payouts follow the underlying bets.
type CopyTradeRecord struct {
	ID           string          `json:"id"`
	CopierWallet string          `json:"copierWallet"`
	TargetWallet string          `json:"targetWallet"`
	MarketID     string          `json:"marketId"`
	Amount       decimal.Decimal `json:"amount"`
	YesAmount    decimal.Decimal `json:"yesAmount"`
	NoAmount     decimal.Decimal `json:"noAmount"`
	DominantSide Side            `json:"dominantSide"`
	BetIDs       []string        `json:"betIds"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// LedgerEvent is the envelope published on the signal bus after a committed
// mutation.
type LedgerEvent struct {
	Type     string    `json:"type"`
	MarketID string    `json:"marketId,omitempty"`
	Wallet   string    `json:"wallet,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}
