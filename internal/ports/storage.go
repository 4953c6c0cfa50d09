package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
)

// Storage is the durable store of bet attempts and daily risk ledgers. It is
// the single source of truth for duplicate prevention across restarts. All
// writes retry internally on a transient "storage busy" condition; a write
// that still fails must be treated by the caller as not having happened.
type Storage interface {
	// RecordPlacement durably records a new bet attempt before the exchange
	// call, and bumps the daily bet count.
	RecordPlacement(ctx context.Context, order domain.BetOrder) error

	// UpdateStage moves an order to a new cascade stage with its current
	// exchange order id and price.
	UpdateStage(ctx context.Context, orderID string, stage domain.CascadeStage, exchangeRef string, price float64) error

	// RecordSettlement writes an order's terminal (or partially matched)
	// state.
	RecordSettlement(ctx context.Context, orderID string, status domain.OrderStatus, matchedSize, matchedPrice float64, matchedAt *time.Time) error

	// RecordOutcome applies a settled bet's signed profit to the order and
	// the daily ledger.
	RecordOutcome(ctx context.Context, orderID string, profit float64, settledAt time.Time) error

	// HasBetOn reports whether any non-FAILED bet exists for the pair.
	HasBetOn(ctx context.Context, marketID string, selectionID int64) (bool, error)

	// OpenOrders returns all non-terminal bet orders, for restart
	// reconciliation.
	OpenOrders(ctx context.Context) ([]domain.BetOrder, error)

	// UnsettledOrders returns matched bets whose profit has not been
	// recorded yet, for the cleared-orders settlement sweep.
	UnsettledOrders(ctx context.Context) ([]domain.BetOrder, error)

	// GetDailyLedger returns the ledger row for a date (zero row if absent)
	// with the lifetime P&L populated.
	GetDailyLedger(ctx context.Context, date time.Time) (domain.DailyRiskLedger, error)

	// GetLedgers returns all daily ledger rows, oldest first.
	GetLedgers(ctx context.Context) ([]domain.DailyRiskLedger, error)

	Close() error
}
