package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
)

// Exchange places, replaces, cancels and monitors lay orders on the betting
// exchange. Every call is a synchronous network round-trip; errors are one of
// the domain error kinds (transport = outcome unknown, rejection = definite no).
type Exchange interface {
	// PlaceOrder submits a new order and returns the exchange's report.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderReport, error)

	// ReplaceOrder atomically swaps an existing order's price, keeping the
	// stake. No window with zero live orders.
	ReplaceOrder(ctx context.Context, marketID, exchangeRef string, newPrice, stake float64) (domain.OrderReport, error)

	// CancelOrder cancels the unmatched portion of an order.
	CancelOrder(ctx context.Context, marketID, exchangeRef string) error

	// GetOrderStatus polls the current state of an order.
	GetOrderStatus(ctx context.Context, marketID, exchangeRef string) (domain.OrderReport, error)

	// ListCurrentOrders returns all live orders on a market for this account.
	// Used to reconcile after a call whose outcome is unknown.
	ListCurrentOrders(ctx context.Context, marketID string) ([]domain.CurrentOrder, error)

	// ClearedOrders returns settled bets with their signed profit, for
	// orders settled at or after the given instant.
	ClearedOrders(ctx context.Context, settledSince time.Time) ([]domain.ClearedOrder, error)

	// GetBalance returns the available account balance.
	GetBalance(ctx context.Context) (float64, error)
}

// MarketCatalogue lists the exchange's own race markets for a date, so the
// schedule feed can be joined against exchange market ids.
type MarketCatalogue interface {
	ListMarkets(ctx context.Context, date time.Time) ([]domain.CatalogueEntry, error)
}
