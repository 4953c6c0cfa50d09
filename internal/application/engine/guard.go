package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// authorize gates every new placement. Checks run in order; the first
// failing one refuses. The duplicate check goes to durable storage, not the
// in-memory set: the process may have restarted mid-window. A lifetime
// stop-loss breach halts the whole engine, not just this race.
func (e *Engine) authorize(ctx context.Context, now time.Time, marketID string, selectionID int64) (ok bool, reason string, err error) {
	has, err := e.store.HasBetOn(ctx, marketID, selectionID)
	if err != nil {
		return false, "", fmt.Errorf("engine.authorize: duplicate check: %w", err)
	}
	if has {
		mtxGuardRefusals.WithLabelValues("duplicate").Inc()
		return false, fmt.Sprintf("already bet on market %s selection %d", marketID, selectionID), nil
	}

	ledger, err := e.store.GetDailyLedger(ctx, now)
	if err != nil {
		return false, "", fmt.Errorf("engine.authorize: daily ledger: %w", err)
	}
	mtxDailyPnL.Set(ledger.ProfitLoss)

	if e.cfg.MaxDailyBets > 0 && ledger.BetsPlaced >= e.cfg.MaxDailyBets {
		mtxGuardRefusals.WithLabelValues("daily_bets").Inc()
		return false, fmt.Sprintf("daily bet limit reached: %d >= %d", ledger.BetsPlaced, e.cfg.MaxDailyBets), nil
	}

	// Signed net: winning bets offset losing ones. Only a negative net
	// beyond the magnitude stops betting.
	if e.cfg.MaxDailyLoss > 0 && ledger.ProfitLoss < 0 && -ledger.ProfitLoss >= e.cfg.MaxDailyLoss {
		mtxGuardRefusals.WithLabelValues("daily_loss").Inc()
		return false, fmt.Sprintf("daily net loss %.2f exceeds limit %.2f", ledger.ProfitLoss, e.cfg.MaxDailyLoss), nil
	}

	if e.cfg.LifetimeStopLoss > 0 && ledger.LifetimePnL < 0 && -ledger.LifetimePnL >= e.cfg.LifetimeStopLoss {
		mtxGuardRefusals.WithLabelValues("stop_loss").Inc()
		e.halted = true
		slog.Error("engine: EMERGENCY STOP-LOSS BREACHED: halting process",
			"lifetime_pnl", fmt.Sprintf("%.2f", ledger.LifetimePnL),
			"limit", fmt.Sprintf("%.2f", e.cfg.LifetimeStopLoss))
		return false, fmt.Sprintf("lifetime stop-loss breached: %.2f", ledger.LifetimePnL), nil
	}

	return true, "", nil
}
