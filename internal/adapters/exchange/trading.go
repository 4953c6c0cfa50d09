package exchange

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
)

// wire types for the trading API.

type placeOrderBody struct {
	MarketID    string  `json:"marketId"`
	SelectionID int64   `json:"selectionId"`
	Side        string  `json:"side"`
	OrderType   string  `json:"orderType"`
	Price       float64 `json:"price"`
	Stake       float64 `json:"stake,omitempty"`
	Liability   float64 `json:"liability,omitempty"`
	Persistence string  `json:"persistence,omitempty"`
}

type replaceOrderBody struct {
	Price float64 `json:"price"`
	Stake float64 `json:"stake"`
}

type orderResponse struct {
	OrderID      string  `json:"orderId"`
	Status       string  `json:"status"`
	MatchedSize  float64 `json:"matchedSize"`
	MatchedPrice float64 `json:"matchedPrice"`
}

type currentOrderRow struct {
	OrderID      string  `json:"orderId"`
	SelectionID  int64   `json:"selectionId"`
	Side         string  `json:"side"`
	Price        float64 `json:"price"`
	Stake        float64 `json:"stake"`
	Status       string  `json:"status"`
	MatchedSize  float64 `json:"matchedSize"`
	MatchedPrice float64 `json:"matchedPrice"`
}

type balanceResponse struct {
	Available float64 `json:"available"`
}

type clearedRow struct {
	OrderID   string    `json:"orderId"`
	Profit    float64   `json:"profit"`
	SettledAt time.Time `json:"settledAt"`
}

type marketRow struct {
	MarketID   string    `json:"marketId"`
	Venue      string    `json:"venue"`
	Country    string    `json:"countryCode"`
	MarketName string    `json:"marketName"`
	StartTime  time.Time `json:"startTime"`
}

type bookRunner struct {
	SelectionID int64    `json:"selectionId"`
	Name        string   `json:"runnerName"`
	Barrier     int      `json:"sortPriority"`
	BestLay     *float64 `json:"bestLayPrice"`
	BestLaySize *float64 `json:"bestLaySize"`
	BestBack    *float64 `json:"bestBackPrice"`
	Projection  *float64 `json:"nearPrice"`
}

type bookResponse struct {
	MarketID string       `json:"marketId"`
	Runners  []bookRunner `json:"runners"`
}

// PlaceOrder submits a new order. The price must already sit on the tick
// ladder: an off-tick price is a caller bug, returned as an error rather
// than silently corrected.
func (c *Client) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderReport, error) {
	if !domain.OnTick(req.Price) {
		return domain.OrderReport{}, fmt.Errorf("exchange.PlaceOrder: price %.4f is off the tick ladder (caller bug)", req.Price)
	}

	body := placeOrderBody{
		MarketID:    req.MarketID,
		SelectionID: req.SelectionID,
		Side:        req.Side,
		OrderType:   string(req.OrderType),
		Price:       req.Price,
		Stake:       req.Stake,
		Liability:   req.Liability,
		Persistence: string(req.Persistence),
	}

	var resp orderResponse
	if err := c.mutate(ctx, "exchange.PlaceOrder", "POST", c.base+"/orders", body, &resp); err != nil {
		return domain.OrderReport{}, err
	}
	return reportFrom(resp), nil
}

// ReplaceOrder atomically swaps the order's price, keeping the stake.
func (c *Client) ReplaceOrder(ctx context.Context, marketID, exchangeRef string, newPrice, stake float64) (domain.OrderReport, error) {
	if !domain.OnTick(newPrice) {
		return domain.OrderReport{}, fmt.Errorf("exchange.ReplaceOrder: price %.4f is off the tick ladder (caller bug)", newPrice)
	}

	u := fmt.Sprintf("%s/markets/%s/orders/%s", c.base, url.PathEscape(marketID), url.PathEscape(exchangeRef))
	var resp orderResponse
	if err := c.mutate(ctx, "exchange.ReplaceOrder", "PUT", u, replaceOrderBody{Price: newPrice, Stake: stake}, &resp); err != nil {
		return domain.OrderReport{}, err
	}
	return reportFrom(resp), nil
}

// CancelOrder cancels the unmatched portion of an order.
func (c *Client) CancelOrder(ctx context.Context, marketID, exchangeRef string) error {
	u := fmt.Sprintf("%s/markets/%s/orders/%s", c.base, url.PathEscape(marketID), url.PathEscape(exchangeRef))
	return c.mutate(ctx, "exchange.CancelOrder", "DELETE", u, nil, nil)
}

// GetOrderStatus polls an order's current state.
func (c *Client) GetOrderStatus(ctx context.Context, marketID, exchangeRef string) (domain.OrderReport, error) {
	u := fmt.Sprintf("%s/markets/%s/orders/%s", c.base, url.PathEscape(marketID), url.PathEscape(exchangeRef))
	var resp orderResponse
	if err := c.get(ctx, "exchange.GetOrderStatus", u, &resp); err != nil {
		return domain.OrderReport{}, err
	}
	return reportFrom(resp), nil
}

// ListCurrentOrders returns all live orders for this account on a market.
func (c *Client) ListCurrentOrders(ctx context.Context, marketID string) ([]domain.CurrentOrder, error) {
	u := fmt.Sprintf("%s/markets/%s/orders", c.base, url.PathEscape(marketID))
	var rows []currentOrderRow
	if err := c.get(ctx, "exchange.ListCurrentOrders", u, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.CurrentOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CurrentOrder{
			ExchangeRef:  r.OrderID,
			SelectionID:  r.SelectionID,
			Side:         r.Side,
			Price:        r.Price,
			Stake:        r.Stake,
			Status:       r.Status,
			MatchedSize:  r.MatchedSize,
			MatchedPrice: r.MatchedPrice,
		})
	}
	return out, nil
}

// ClearedOrders returns settled bets with signed profit since the given
// instant.
func (c *Client) ClearedOrders(ctx context.Context, settledSince time.Time) ([]domain.ClearedOrder, error) {
	u := fmt.Sprintf("%s/account/cleared?from=%s", c.base, url.QueryEscape(settledSince.UTC().Format(time.RFC3339)))
	var rows []clearedRow
	if err := c.get(ctx, "exchange.ClearedOrders", u, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.ClearedOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ClearedOrder{
			ExchangeRef: r.OrderID,
			Profit:      r.Profit,
			SettledAt:   r.SettledAt,
		})
	}
	return out, nil
}

// GetBalance returns the available account balance.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.get(ctx, "exchange.GetBalance", c.base+"/account/balance", &resp); err != nil {
		return 0, err
	}
	return resp.Available, nil
}

// ListMarkets returns the exchange's race markets for a date.
func (c *Client) ListMarkets(ctx context.Context, date time.Time) ([]domain.CatalogueEntry, error) {
	u := fmt.Sprintf("%s/markets?type=WIN&date=%s", c.base, date.UTC().Format("2006-01-02"))
	var rows []marketRow
	if err := c.get(ctx, "exchange.ListMarkets", u, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.CatalogueEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CatalogueEntry{
			MarketID:   r.MarketID,
			Venue:      r.Venue,
			Country:    r.Country,
			MarketName: r.MarketName,
			StartAt:    r.StartTime,
		})
	}
	return out, nil
}

// Snapshot fetches the current best prices for every runner in a market.
func (c *Client) Snapshot(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	u := fmt.Sprintf("%s/markets/%s/book", c.base, url.PathEscape(marketID))
	var resp bookResponse
	if err := c.get(ctx, "exchange.Snapshot", u, &resp); err != nil {
		return domain.OddsSnapshot{}, err
	}

	snap := domain.OddsSnapshot{
		MarketID: resp.MarketID,
		TakenAt:  time.Now().UTC(),
	}
	for _, r := range resp.Runners {
		snap.Runners = append(snap.Runners, domain.RunnerOdds{
			SelectionID: r.SelectionID,
			Name:        r.Name,
			Barrier:     r.Barrier,
			LayPrice:    r.BestLay,
			LaySize:     r.BestLaySize,
			BackPrice:   r.BestBack,
			Projection:  r.Projection,
		})
	}
	return snap, nil
}

func reportFrom(r orderResponse) domain.OrderReport {
	return domain.OrderReport{
		ExchangeRef:  r.OrderID,
		Status:       r.Status,
		MatchedSize:  r.MatchedSize,
		MatchedPrice: r.MatchedPrice,
	}
}
