package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// Console writes alerts and ledger reports to a terminal.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole creates a Console that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter creates a Console that writes to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Send prints one alert line.
func (c *Console) Send(_ context.Context, title, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s: %s\n", c.now().Format("15:04:05"), title, message)
	return err
}

// Name returns the sender identifier.
func (c *Console) Name() string {
	return "console"
}

// Markets prints one row per market.
func (c *Console) Markets(markets []domain.Market) {
	fmt.Fprintf(c.out, "\nMarkets (%d)\n", len(markets))
	if len(markets) == 0 {
		fmt.Fprintln(c.out, "  none")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Title", "Mode", "Status", "Yes pool", "No pool", "Yes", "Volume", "Bets", "Closes")
	for _, m := range markets {
		closes := "-"
		if !m.ClosesAt.IsZero() {
			closes = m.ClosesAt.UTC().Format("2006-01-02 15:04")
		}
		table.Append(
			m.ID,
			truncate(m.Title, 40),
			string(m.Mode),
			statusLabel(m),
			m.TotalYesAmount.StringFixed(2),
			m.TotalNoAmount.StringFixed(2),
			m.YesPrice.StringFixed(3),
			m.TotalVolume.StringFixed(2),
			strconv.Itoa(len(m.Bets)),
			closes,
		)
	}
	table.Render()
}

// Balances prints one row per wallet, largest balance first.
func (c *Console) Balances(balances domain.BalancesDocument) {
	fmt.Fprintf(c.out, "\nBalances (%d)\n", len(balances))
	if len(balances) == 0 {
		fmt.Fprintln(c.out, "  none")
		return
	}

	rows := make([]domain.UserBalance, 0, len(balances))
	for wallet, b := range balances {
		b.Wallet = wallet
		rows = append(rows, b)
	}
	sort.Slice(rows, func(i, j int) bool {
		if d := rows[i].Balance.Cmp(rows[j].Balance); d != 0 {
			return d > 0
		}
		return rows[i].Wallet < rows[j].Wallet
	})

	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Balance", "Deposited", "Withdrawn", "Winnings")
	for _, b := range rows {
		table.Append(
			b.Wallet,
			b.Balance.StringFixed(2),
			b.TotalDeposited.StringFixed(2),
			b.TotalWithdrawn.StringFixed(2),
			b.TotalWinnings.StringFixed(2),
		)
	}
	table.Render()
}

// Stats prints the platform totals.
func (c *Console) Stats(s domain.PlatformStats) {
	fmt.Fprintln(c.out, "\nPlatform")
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	for _, row := range [][2]string{
		{"Markets", fmt.Sprintf("%d (%d active, %d resolved)", s.TotalMarkets, s.ActiveMarkets, s.ResolvedMarkets)},
		{"Users", strconv.Itoa(s.TotalUsers)},
		{"Volume", s.TotalVolume.StringFixed(2)},
		{"Volume 24h", s.Volume24h.StringFixed(2)},
		{"Entry fees", s.TotalFees.StringFixed(2)},
		{"Entry fees 24h", s.Fees24h.StringFixed(2)},
		{"Settlement fees", s.TotalSettlementFees.StringFixed(2)},
		{"Open pools", s.TotalPoolMoney.StringFixed(2)},
		{"Unclaimed pools", s.UnclaimedPools.StringFixed(2)},
		{"Refunded", s.TotalRefunds.StringFixed(2)},
	} {
		table.Append(row[0], row[1])
	}
	table.Render()
	if !s.LastUpdated.IsZero() {
		fmt.Fprintf(c.out, "  as of %s\n", s.LastUpdated.UTC().Format(time.RFC3339))
	}
}

func statusLabel(m domain.Market) string {
	switch {
	case m.RefundedAt != nil:
		return "refunded"
	case m.Status == domain.MarketStatusResolved && m.Outcome != nil:
		return "resolved:" + string(*m.Outcome)
	case m.Status == domain.MarketStatusResolved && m.WinningOutcomeID != "":
		if o := m.FindOutcome(m.WinningOutcomeID); o != nil {
			return "resolved:" + truncate(o.Name, 12)
		}
	}
	return string(m.Status)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
