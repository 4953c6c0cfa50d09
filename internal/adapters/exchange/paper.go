package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	"github.com/alejandrodnm/laybot/internal/ports"
	"github.com/google/uuid"
)

// Paper is an in-memory exchange for dry runs: no network, no money. A lay
// limit order matches when its price is at or above the market's current
// best lay (there is back money willing to take it); close-price orders
// match immediately at the lower of cap and current price.
type Paper struct {
	odds ports.OddsProvider

	mu     sync.Mutex
	orders map[string]*paperOrder
}

type paperOrder struct {
	ref     string
	market  string
	sel     int64
	price   float64
	stake   float64
	matched float64
	avg     float64
	live    bool
}

// NewPaper creates a simulated exchange that prices fills off the given
// odds provider.
func NewPaper(odds ports.OddsProvider) *Paper {
	return &Paper{odds: odds, orders: make(map[string]*paperOrder)}
}

func (p *Paper) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderReport, error) {
	if !domain.OnTick(req.Price) {
		return domain.OrderReport{}, fmt.Errorf("paper.PlaceOrder: price %.4f is off the tick ladder (caller bug)", req.Price)
	}

	stake := req.Stake
	if req.OrderType != domain.OrderLimit && stake == 0 && req.Price > 1 {
		stake = req.Liability / (req.Price - 1)
	}

	o := &paperOrder{
		ref:    uuid.New().String(),
		market: req.MarketID,
		sel:    req.SelectionID,
		price:  req.Price,
		stake:  stake,
		live:   true,
	}

	best := p.bestLay(ctx, req.MarketID, req.SelectionID)
	switch req.OrderType {
	case domain.OrderLimit:
		if best > 0 && o.price >= best {
			o.matched = o.stake
			o.avg = o.price
			o.live = false
		}
	default:
		// Close-price order: settle right away at the lower of cap and market.
		fill := o.price
		if best > 0 && best < fill {
			fill = best
		}
		o.matched = o.stake
		o.avg = fill
		o.live = false
	}

	p.mu.Lock()
	p.orders[o.ref] = o
	p.mu.Unlock()

	slog.Debug("paper: order placed",
		"market", o.market, "selection", o.sel,
		"price", o.price, "stake", o.stake, "matched", o.matched)
	return o.report(), nil
}

func (p *Paper) ReplaceOrder(ctx context.Context, marketID, exchangeRef string, newPrice, stake float64) (domain.OrderReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[exchangeRef]
	if !ok {
		return domain.OrderReport{}, &domain.RejectionError{Op: "paper.ReplaceOrder", Code: "ORDER_NOT_FOUND", Message: exchangeRef}
	}
	if !o.live {
		return o.report(), nil
	}
	o.price = newPrice
	if best := p.bestLay(ctx, marketID, o.sel); best > 0 && o.price >= best {
		o.matched = o.stake
		o.avg = o.price
		o.live = false
	}
	return o.report(), nil
}

func (p *Paper) CancelOrder(_ context.Context, _, exchangeRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[exchangeRef]
	if !ok {
		return &domain.RejectionError{Op: "paper.CancelOrder", Code: "ORDER_NOT_FOUND", Message: exchangeRef}
	}
	o.live = false
	return nil
}

func (p *Paper) GetOrderStatus(_ context.Context, _, exchangeRef string) (domain.OrderReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[exchangeRef]
	if !ok {
		return domain.OrderReport{}, &domain.RejectionError{Op: "paper.GetOrderStatus", Code: "ORDER_NOT_FOUND", Message: exchangeRef}
	}
	return o.report(), nil
}

func (p *Paper) ListCurrentOrders(_ context.Context, marketID string) ([]domain.CurrentOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.CurrentOrder
	for _, o := range p.orders {
		if o.market != marketID || !o.live {
			continue
		}
		out = append(out, domain.CurrentOrder{
			ExchangeRef: o.ref,
			SelectionID: o.sel,
			Side:        "LAY",
			Price:       o.price,
			Stake:       o.stake,
			Status:      "EXECUTABLE",
			MatchedSize: o.matched,
		})
	}
	return out, nil
}

// ClearedOrders settles every matched paper order optimistically: the laid
// runner is assumed beaten, so the profit is the matched stake. Race results
// are not simulated; dry-run P&L is an upper bound, not a forecast.
func (p *Paper) ClearedOrders(_ context.Context, settledSince time.Time) ([]domain.ClearedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.ClearedOrder
	for _, o := range p.orders {
		if o.live || o.matched <= 0 {
			continue
		}
		out = append(out, domain.ClearedOrder{
			ExchangeRef: o.ref,
			Profit:      o.matched,
			SettledAt:   settledSince,
		})
	}
	return out, nil
}

func (p *Paper) GetBalance(context.Context) (float64, error) {
	return 1000, nil
}

func (p *Paper) bestLay(ctx context.Context, marketID string, selectionID int64) float64 {
	snap, err := p.odds.Snapshot(ctx, marketID)
	if err != nil {
		return 0
	}
	if r, ok := snap.Runner(selectionID); ok && r.HasValidLay() {
		return *r.LayPrice
	}
	return 0
}

func (o *paperOrder) report() domain.OrderReport {
	status := "EXECUTABLE"
	if !o.live {
		status = "EXECUTION_COMPLETE"
	}
	return domain.OrderReport{
		ExchangeRef:  o.ref,
		Status:       status,
		MatchedSize:  o.matched,
		MatchedPrice: o.avg,
	}
}
