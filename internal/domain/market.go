package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// MarketMode distinguishes binary markets from multi-outcome markets.
type MarketMode string

const (
	MarketModeSimple       MarketMode = "simple"
	MarketModeMultiOutcome MarketMode = "multi-outcome"
)

// Side is the direction of a stake.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Market is one wagering event. Pool totals are net of the entry fee;
// TotalVolume and Volume24h are gross.
type Market struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	Mode        MarketMode   `json:"mode"`
	Status      MarketStatus `json:"status"`
	CreatedBy   string       `json:"createdBy,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	ClosesAt    time.Time    `json:"closesAt"`
	ClosedAt    *time.Time   `json:"closedAt,omitempty"`
	ResolvedAt  *time.Time   `json:"resolvedAt,omitempty"`

	TotalYesAmount        decimal.Decimal `json:"totalYesAmount"`
	TotalNoAmount         decimal.Decimal `json:"totalNoAmount"`
	YesPrice              decimal.Decimal `json:"yesPrice"`
	NoPrice               decimal.Decimal `json:"noPrice"`
	TotalVolume           decimal.Decimal `json:"totalVolume"`
	Volume24h             decimal.Decimal `json:"volume24h"`
	PlatformFeesCollected decimal.Decimal `json:"platformFeesCollected"`

	UniqueYesBettors []string `json:"uniqueYesBettors"`
	UniqueNoBettors  []string `json:"uniqueNoBettors"`

	Outcome          *Side  `json:"outcome,omitempty"`
	WinningOutcomeID string `json:"winningOutcomeId,omitempty"`

	SettlementFeesCollected decimal.Decimal `json:"settlementFeesCollected"`
	UnclaimedPool           decimal.Decimal `json:"unclaimedPool"`
	RefundedAmount          decimal.Decimal `json:"refundedAmount"`
	RefundedAt              *time.Time      `json:"refundedAt,omitempty"`

	Bets     []Bet      `json:"bets"`
	Outcomes []Outcome  `json:"outcomes,omitempty"`
	News     []NewsItem `json:"news,omitempty"`
	Rules    []string   `json:"rules,omitempty"`
	Comments []Comment  `json:"comments,omitempty"`

	Version int64 `json:"version"`
}

// IsMultiOutcome reports whether the market tracks named sub-markets.
func (m *Market) IsMultiOutcome() bool {
	return m.Mode == MarketModeMultiOutcome
}

// TotalPool is the sum of both market-level pools. For multi-outcome markets
// the market-level totals already include every outcome's stakes.
func (m *Market) TotalPool() decimal.Decimal {
	return m.TotalYesAmount.Add(m.TotalNoAmount)
}

// FindOutcome returns a pointer into m.Outcomes, or nil.
func (m *Market) FindOutcome(id string) *Outcome {
	for i := range m.Outcomes {
		if m.Outcomes[i].ID == id {
			return &m.Outcomes[i]
		}
	}
	return nil
}

// FindBet returns the index of the bet with the given id, or -1.
func (m *Market) FindBet(id string) int {
	for i := range m.Bets {
		if m.Bets[i].ID == id {
			return i
		}
	}
	return -1
}

// DistinctWallets returns the wallets that hold at least one bet, in order of
// first appearance.
func (m *Market) DistinctWallets() []string {
	seen := make(map[string]bool, len(m.Bets))
	var out []string
	for _, b := range m.Bets {
		if !seen[b.Wallet] {
			seen[b.Wallet] = true
			out = append(out, b.Wallet)
		}
	}
	return out
}

// Outcome is a named sub-market of a multi-outcome market. It has the same
// pool shape as a binary market.
type Outcome struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	TotalYesAmount   decimal.Decimal `json:"totalYesAmount"`
	TotalNoAmount    decimal.Decimal `json:"totalNoAmount"`
	YesPrice         decimal.Decimal `json:"yesPrice"`
	NoPrice          decimal.Decimal `json:"noPrice"`
	UniqueYesBettors []string        `json:"uniqueYesBettors"`
	UniqueNoBettors  []string        `json:"uniqueNoBettors"`
	IsWinner         bool            `json:"isWinner"`
}

// Bet is one stake. Amount is net of PlatformFee.
type Bet struct {
	ID          string          `json:"id"`
	Wallet      string          `json:"wallet"`
	Amount      decimal.Decimal `json:"amount"`
	Side        Side            `json:"side"`
	OutcomeID   string          `json:"outcomeId,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	PaymentRef  string          `json:"paymentRef,omitempty"`
	PlatformFee decimal.Decimal `json:"platformFee"`
}

// Gross is the stake as paid, before the entry fee.
func (b Bet) Gross() decimal.Decimal {
	return b.Amount.Add(b.PlatformFee)
}

// NewsItem is an admin-posted update attached to a market.
type NewsItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is a wallet-authored remark on a market.
type Comment struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarketsDocument is the persisted shape of the market collection.
type MarketsDocument struct {
	Markets     []Market `json:"markets"`
	LastUpdated int64    `json:"lastUpdated"`
	Version     int64    `json:"version"`
}

// Find returns a pointer into d.Markets, or nil.
func (d *MarketsDocument) Find(id string) *Market {
	for i := range d.Markets {
		if d.Markets[i].ID == id {
			return &d.Markets[i]
		}
	}
	return nil
}

// Remove deletes the market with the given id and reports whether it existed.
func (d *MarketsDocument) Remove(id string) bool {
	for i := range d.Markets {
		if d.Markets[i].ID == id {
			d.Markets = append(d.Markets[:i], d.Markets[i+1:]...)
			return true
		}
	}
	return false
}
