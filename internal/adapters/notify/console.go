package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	"github.com/alejandrodnm/laybot/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Console prints the report-mode summary tables to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a console reporter writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a reporter for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Report prints the open orders and the daily ledgers with a lifetime total.
func (c *Console) Report(ctx context.Context, store ports.Storage) error {
	open, err := store.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("notify.Report: open orders: %w", err)
	}
	ledgers, err := store.GetLedgers(ctx)
	if err != nil {
		return fmt.Errorf("notify.Report: ledgers: %w", err)
	}

	c.printOpen(open)
	c.printLedgers(ledgers)
	return nil
}

func (c *Console) printOpen(orders []domain.BetOrder) {
	fmt.Fprintf(c.out, "\nOpen orders: %d\n", len(orders))
	if len(orders) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Sel", "Runner", "Stage", "Price", "Stake", "Matched", "Status", "Placed")
	for _, o := range orders {
		table.Append(
			o.MarketID,
			fmt.Sprintf("%d", o.SelectionID),
			o.Runner,
			o.Stage.String(),
			fmt.Sprintf("%.2f", o.Price),
			fmt.Sprintf("%.2f", o.Stake),
			fmt.Sprintf("%.2f", o.MatchedSize),
			string(o.Status),
			o.PlacedAt.Format(time.RFC3339),
		)
	}
	table.Render()
}

func (c *Console) printLedgers(ledgers []domain.DailyRiskLedger) {
	fmt.Fprintf(c.out, "\nDaily ledgers: %d day(s)\n", len(ledgers))
	if len(ledgers) == 0 {
		return
	}

	lifetime := 0.0
	table := tablewriter.NewWriter(c.out)
	table.Header("Date", "Bets", "Net P&L")
	for _, l := range ledgers {
		lifetime += l.ProfitLoss
		table.Append(l.Date.Format("2006-01-02"), fmt.Sprintf("%d", l.BetsPlaced), fmt.Sprintf("%+.2f", l.ProfitLoss))
	}
	table.Render()

	fmt.Fprintf(c.out, "Lifetime net P&L: %+.2f\n", lifetime)
}
