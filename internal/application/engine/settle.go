package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// settleOutcomes applies signed profits from the exchange's cleared-orders
// report to matched bets that have none recorded yet. Runs on the feed
// refresh cadence: settlement lags the race by minutes, polling faster buys
// nothing. The daily ledger this feeds is what the loss-limit guards read.
func (e *Engine) settleOutcomes(ctx context.Context, now time.Time) {
	if !e.lastSettleSweep.IsZero() && now.Sub(e.lastSettleSweep) < e.cfg.FeedRefresh {
		return
	}
	e.lastSettleSweep = now

	unsettled, err := e.store.UnsettledOrders(ctx)
	if err != nil {
		slog.Warn("engine: unsettled lookup failed", "err", err)
		return
	}
	if len(unsettled) == 0 {
		return
	}

	cleared, err := e.exch.ClearedOrders(ctx, unsettled[0].PlacedAt)
	if err != nil {
		slog.Warn("engine: cleared-orders fetch failed", "err", err)
		return
	}

	profits := make(map[string]int, len(cleared))
	for i, co := range cleared {
		profits[co.ExchangeRef] = i
	}

	settled := 0
	for _, o := range unsettled {
		i, ok := profits[o.ExchangeRef]
		if !ok {
			continue // not settled yet
		}
		co := cleared[i]
		if err := e.store.RecordOutcome(ctx, o.ID, co.Profit, co.SettledAt); err != nil {
			slog.Error("engine: could not record outcome",
				"id", o.ID, "profit", fmt.Sprintf("%.2f", co.Profit), "err", err)
			continue
		}
		settled++
		slog.Info("engine: bet settled",
			"market", o.MarketID, "selection", o.SelectionID, "runner", o.Runner,
			"profit", fmt.Sprintf("%+.2f", co.Profit))
	}

	if settled > 0 {
		slog.Info("engine: settlement sweep done",
			"settled", settled, "pending", len(unsettled)-settled)
	}
}
