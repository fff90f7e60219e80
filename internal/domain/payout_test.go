package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSplitEntryFee(t *testing.T) {
	fees := domain.DefaultFees()

	fee, net := fees.SplitEntryFee(d("10"))
	assert.True(t, fee.Equal(d("0.25")), "fee %s", fee)
	assert.True(t, net.Equal(d("9.75")), "net %s", net)

	fee, net = fees.SplitEntryFee(d("0"))
	assert.True(t, fee.IsZero())
	assert.True(t, net.IsZero())
}

func TestComputePayout_WorkedExample(t *testing.T) {
	fees := domain.DefaultFees()

	// Yes=100, No=50, then a 10 yes-bet nets 9.75.
	_, net := fees.SplitEntryFee(d("10"))
	yes := d("100").Add(net)
	pool := yes.Add(d("50"))

	p := fees.ComputePayout(net, yes, pool)
	assert.InDelta(t, 14.19, p.Gross.InexactFloat64(), 0.005)
	assert.InDelta(t, 13.76, p.Net.InexactFloat64(), 0.005)
	assert.InDelta(t, p.Gross.InexactFloat64()*0.03, p.SettlementFee.InexactFloat64(), 1e-9)
}

func TestComputePayout_Conservation(t *testing.T) {
	fees := domain.DefaultFees()
	stakes := []decimal.Decimal{d("3"), d("7.5"), d("11.25"), d("0.01")}
	w := decimal.Zero
	for _, s := range stakes {
		w = w.Add(s)
	}
	p := w.Add(d("42.42"))

	total := decimal.Zero
	for _, s := range stakes {
		po := fees.ComputePayout(s, w, p)
		total = total.Add(po.Net).Add(po.SettlementFee)
	}
	assert.InDelta(t, p.InexactFloat64(), total.InexactFloat64(), 1e-9)
}

func TestComputePayout_Degenerate(t *testing.T) {
	fees := domain.DefaultFees()
	tests := []struct {
		name    string
		s, w, p string
	}{
		{"empty winning side", "1", "0", "10"},
		{"empty pool", "1", "1", "0"},
		{"zero stake", "0", "5", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			po := fees.ComputePayout(d(tt.s), d(tt.w), d(tt.p))
			assert.True(t, po.Net.IsZero())
			assert.True(t, po.Gross.IsZero())
		})
	}
}

func TestExitValue(t *testing.T) {
	v := domain.ExitValue(d("10"), d("40"), d("100"))
	assert.True(t, v.Equal(d("25")), "exit %s", v)
	assert.True(t, domain.ExitValue(d("10"), d("0"), d("100")).IsZero())
}

func TestPrice(t *testing.T) {
	assert.True(t, domain.Price(d("0"), d("0"), d("0")).Equal(d("0.5")))
	assert.True(t, domain.Price(d("30"), d("30"), d("10")).Equal(d("0.75")))
}

func TestUserBalanceApply(t *testing.T) {
	now := time.Now().UTC()
	var b domain.UserBalance
	b.Apply(domain.BalanceEntry{Type: domain.EntryDeposit, Amount: d("20"), CreatedAt: now})
	b.Apply(domain.BalanceEntry{Type: domain.EntryBet, Amount: d("5"), CreatedAt: now})
	b.Apply(domain.BalanceEntry{Type: domain.EntryWinning, Amount: d("8"), CreatedAt: now})
	b.Apply(domain.BalanceEntry{Type: domain.EntryRefund, Amount: d("2"), CreatedAt: now})
	b.Apply(domain.BalanceEntry{Type: domain.EntryWithdraw, Amount: d("1"), CreatedAt: now})
	b.Apply(domain.BalanceEntry{Type: domain.EntryExit, Amount: d("3"), CreatedAt: now})
	b.Apply(domain.BalanceEntry{Type: domain.EntryReversal, Amount: d("1"), CreatedAt: now})

	assert.True(t, b.Balance.Equal(d("28")), "balance %s", b.Balance)
	assert.True(t, b.TotalDeposited.Equal(d("20")))
	assert.True(t, b.TotalWithdrawn.Equal(d("4")), "exits count as withdrawn")
	assert.True(t, b.TotalWinnings.Equal(d("10")), "refunds count as winnings")

	b.Apply(domain.BalanceEntry{Type: domain.EntryBet, Amount: d("100"), CreatedAt: now})
	assert.True(t, b.Balance.IsZero(), "debits floor at zero")
}

func TestMarketsDocumentJSONNumbers(t *testing.T) {
	doc := domain.MarketsDocument{Markets: []domain.Market{{
		ID:             "m1",
		TotalYesAmount: d("9.75"),
	}}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"totalYesAmount":9.75`)

	var back domain.MarketsDocument
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NotNil(t, back.Find("m1"))
	assert.True(t, back.Find("m1").TotalYesAmount.Equal(d("9.75")))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, domain.ErrAlreadyResolved, domain.ErrInvalidState)
	assert.ErrorIs(t, domain.ErrMarketClosed, domain.ErrInvalidState)
	assert.ErrorIs(t, domain.ErrMarketInactive, domain.ErrInvalidState)
	assert.NotErrorIs(t, domain.ErrAlreadyResolved, domain.ErrMarketClosed)
}
