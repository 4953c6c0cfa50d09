package exchange

import (
	"context"
	"testing"

	"github.com/alejandrodnm/laybot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOdds struct {
	lay float64
}

func (s stubOdds) Snapshot(_ context.Context, marketID string) (domain.OddsSnapshot, error) {
	lay := s.lay
	return domain.OddsSnapshot{
		MarketID: marketID,
		Runners:  []domain.RunnerOdds{{SelectionID: 7, Name: "Dust Devil", LayPrice: &lay}},
	}, nil
}

func TestPaperLimitRestsBelowBestAndFillsOnReplace(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(stubOdds{lay: 10.0})

	rep, err := p.PlaceOrder(ctx, domain.PlaceOrderRequest{
		MarketID: "1.234", SelectionID: 7, Side: "LAY",
		OrderType: domain.OrderLimit, Price: 9.6, Stake: 2,
	})
	require.NoError(t, err)
	assert.False(t, rep.HasMatch(), "a lay under the best price has no taker")

	live, err := p.ListCurrentOrders(ctx, "1.234")
	require.NoError(t, err)
	require.Len(t, live, 1)

	rep, err = p.ReplaceOrder(ctx, "1.234", rep.ExchangeRef, 10.0, 2)
	require.NoError(t, err)
	assert.True(t, rep.FullyMatched(2))
	assert.InDelta(t, 10.0, rep.MatchedPrice, 1e-9)

	live, err = p.ListCurrentOrders(ctx, "1.234")
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestPaperCloseOrderFillsUnderTheCap(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(stubOdds{lay: 14.0})

	rep, err := p.PlaceOrder(ctx, domain.PlaceOrderRequest{
		MarketID: "1.234", SelectionID: 7, Side: "LAY",
		OrderType: domain.OrderLimitOnClose, Price: 28, Liability: 54,
	})
	require.NoError(t, err)

	// Sized by liability: 54 / (28-1) = 2, filled at the market, not the cap.
	assert.InDelta(t, 2.0, rep.MatchedSize, 1e-9)
	assert.InDelta(t, 14.0, rep.MatchedPrice, 1e-9)
}

func TestPaperCancelRemovesRestingOrder(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(stubOdds{lay: 10.0})

	rep, err := p.PlaceOrder(ctx, domain.PlaceOrderRequest{
		MarketID: "1.234", SelectionID: 7, Side: "LAY",
		OrderType: domain.OrderLimit, Price: 9.6, Stake: 2,
	})
	require.NoError(t, err)

	require.NoError(t, p.CancelOrder(ctx, "1.234", rep.ExchangeRef))
	live, err := p.ListCurrentOrders(ctx, "1.234")
	require.NoError(t, err)
	assert.Empty(t, live)

	err = p.CancelOrder(ctx, "1.234", "missing")
	assert.True(t, domain.IsRejection(err))
}
