package domain

import "github.com/shopspring/decimal"

func init() {
	// Ledger documents carry amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Fees holds the two platform rates: the entry fee taken from every stake and
// the settlement fee taken from every winning payout.
type Fees struct {
	EntryRate      decimal.Decimal
	SettlementRate decimal.Decimal
}

// DefaultFees returns the platform's standard 2.5% entry and 3% settlement
// rates.
func DefaultFees() Fees {
	return Fees{
		EntryRate:      decimal.RequireFromString("0.025"),
		SettlementRate: decimal.RequireFromString("0.03"),
	}
}

// SplitEntryFee returns the fee and the net stake for a gross amount. The fee
// is applied exactly once.
func (f Fees) SplitEntryFee(gross decimal.Decimal) (fee, net decimal.Decimal) {
	fee = gross.Mul(f.EntryRate)
	return fee, gross.Sub(fee)
}

// Payout is the result of settling one stake against a pool.
type Payout struct {
	Share         decimal.Decimal `json:"share"`
	Gross         decimal.Decimal `json:"gross"`
	SettlementFee decimal.Decimal `json:"settlementFee"`
	Net           decimal.Decimal `json:"net"`
}

// ComputePayout applies the pari-mutuel formula to stake s on a winning side
// holding w out of a total pool p. It returns the zero Payout when w or p is
// not positive.
func (f Fees) ComputePayout(s, w, p decimal.Decimal) Payout {
	if !w.IsPositive() || !p.IsPositive() || !s.IsPositive() {
		return Payout{}
	}
	share := s.Div(w)
	gross := p.Mul(s).Div(w)
	fee := gross.Mul(f.SettlementRate)
	return Payout{
		Share:         share,
		Gross:         gross,
		SettlementFee: fee,
		Net:           gross.Sub(fee),
	}
}

// ExitValue is the mark-to-pool value of a stake: the gross pari-mutuel share
// with no settlement fee.
func ExitValue(s, sidePool, totalPool decimal.Decimal) decimal.Decimal {
	if !sidePool.IsPositive() {
		return decimal.Zero
	}
	return s.Mul(totalPool).Div(sidePool)
}

// Price returns side / (yes + no), or one half for an empty pool.
func Price(side, yes, no decimal.Decimal) decimal.Decimal {
	total := yes.Add(no)
	if !total.IsPositive() {
		return decimal.NewFromFloat(0.5)
	}
	return side.Div(total)
}
