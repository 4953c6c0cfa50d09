package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	"github.com/google/uuid"
)

// cascadeState is the controller's position in the staged placement
// protocol. Terminal states are sinks.
type cascadeState int

const (
	stateNotStarted cascadeState = iota
	stateStage1Placed
	stateStage2Replaced
	stateStage3Placed
	stateMatched
	stateCancelled
	stateFailed
)

// verifyKind marks an exchange call whose outcome is unknown (transport
// error). The next tick reconciles with a live-order listing before any
// further action: never a blind re-placement.
type verifyKind int

const (
	verifyNone verifyKind = iota
	verifyPlace
	verifyReplace
	verifyCancel
)

// cascade is one in-flight staged bet on a (market, selection) pair. The
// engine holds the only authoritative in-memory copy of its stage; every
// transition is reconciled with storage.
type cascade struct {
	order      domain.BetOrder
	race       domain.Race
	state      cascadeState
	verify     verifyKind
	noTouch    bool // partial match: never replace or cancel the remainder
	recorded   bool // RecordPlacement has been durably written
	cancelDone bool // stage 3 cancel succeeded, capped order still pending
	recovery   bool // adopted from storage after restart; race timing unknown
	deadline   time.Time
}

func (c *cascade) terminal() bool {
	return c.state == stateMatched || c.state == stateCancelled || c.state == stateFailed
}

func newRecoveryCascade(order domain.BetOrder, now time.Time) *cascade {
	state := stateStage1Placed
	if order.Stage == domain.StageCapped {
		state = stateStage3Placed
	}
	return &cascade{
		order:    order,
		state:    state,
		recovery: true,
		recorded: true,
		noTouch:  order.MatchedSize > 0,
		deadline: now.Add(2 * time.Minute),
	}
}

// startCascade enters the staged protocol at whichever stage matches the
// remaining time to the off.
func (e *Engine) startCascade(ctx context.Context, w domain.RaceWindow, target domain.RunnerOdds, now time.Time) {
	key := pairKey(w.MarketID, target.SelectionID)
	e.attempted[key] = true

	best := *target.LayPrice
	c := &cascade{
		order: domain.BetOrder{
			ID:          uuid.New().String(),
			MarketID:    w.MarketID,
			SelectionID: target.SelectionID,
			Runner:      target.Name,
			Stake:       e.cfg.Stake,
			Status:      domain.StatusUnmatched,
			PlacedAt:    now,
		},
		race: w.Race,
	}

	slog.Info("engine: starting cascade",
		"market", w.MarketID, "selection", target.SelectionID, "runner", target.Name,
		"best_lay", fmt.Sprintf("%.2f", best),
		"seconds_to_start", fmt.Sprintf("%.0f", w.SecondsToStart),
	)

	switch {
	case w.SecondsToStart >= float64(e.cfg.Stage1Seconds):
		e.placeStage1(ctx, c, best)
	case w.SecondsToStart > float64(e.cfg.Stage3Seconds):
		// Mid-window entry: no discount, straight to a current-price limit.
		e.placeFreshLimit(ctx, c, best)
	default:
		e.placeCappedDirect(ctx, c, best)
	}

	if !c.terminal() {
		e.cascades[key] = c
	}
}

// advance moves an in-flight cascade one step, gated by remaining time.
func (e *Engine) advance(ctx context.Context, c *cascade, now time.Time) {
	if c.terminal() {
		return
	}
	if c.recovery {
		e.advanceRecovery(ctx, c, now)
		return
	}
	if c.verify != verifyNone {
		e.verifyOutstanding(ctx, c, now)
		return
	}

	secs := c.race.SecondsToStart(now)
	switch c.state {
	case stateStage1Placed:
		if secs <= float64(e.cfg.Stage2Seconds) {
			e.toStage2(ctx, c)
		}
	case stateStage2Replaced:
		if c.cancelDone {
			e.placeCapped(ctx, c)
			return
		}
		if secs <= float64(e.cfg.Stage3Seconds) {
			e.toStage3(ctx, c, secs)
		}
	case stateStage3Placed:
		e.pollClose(ctx, c, secs)
	}
}

// --- Stage 1: aggressive limit ---

// placeStage1 places a limit order 5% under the current best lay, biased
// toward getting matched early, lapsing at market close.
func (e *Engine) placeStage1(ctx context.Context, c *cascade, best float64) {
	price := domain.RoundToTick(math.Max(best*0.95, e.cfg.MinOdds))
	c.order.Stage = domain.StageLimit
	c.order.Price = price

	if !e.recordAttempt(ctx, c) {
		return
	}

	rep, err := e.exch.PlaceOrder(ctx, e.layLimit(c, price))
	switch {
	case err == nil:
		e.adoptReport(ctx, c, rep, stateStage1Placed)
	case domain.IsTransport(err):
		slog.Warn("engine: stage 1 placement outcome unknown: will verify",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
		c.verify = verifyPlace
		c.state = stateStage1Placed
	default:
		// Hard rejection on stage 1 falls through to stage 2 logic at
		// current odds; a second rejection fails the cascade.
		slog.Warn("engine: stage 1 rejected: falling through to stage 2 pricing",
			"market", c.order.MarketID, "selection", c.order.SelectionID,
			"price", fmt.Sprintf("%.2f", price), "err", err)
		e.placeFreshLimit(ctx, c, best)
	}
}

// placeFreshLimit places a limit at the current best price: stage 2
// semantics without a prior order to replace.
func (e *Engine) placeFreshLimit(ctx context.Context, c *cascade, best float64) {
	price := domain.RoundToTick(math.Max(best, e.cfg.MinOdds))
	c.order.Stage = domain.StageReplace
	c.order.Price = price

	if !e.recordAttempt(ctx, c) {
		return
	}

	rep, err := e.exch.PlaceOrder(ctx, e.layLimit(c, price))
	switch {
	case err == nil:
		e.adoptReport(ctx, c, rep, stateStage2Replaced)
	case domain.IsTransport(err):
		c.verify = verifyPlace
		c.state = stateStage2Replaced
	default:
		slog.Warn("engine: limit placement rejected",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
		e.finalize(ctx, c, stateFailed, 0, 0)
	}
}

// --- Stage 2: replace to current price ---

// toStage2 polls the resting order and, if still unmatched, atomically
// replaces it at the current best price. Matched size is authoritative; a
// partial match is left untouched: replacing would forfeit the matched
// portion's price.
func (e *Engine) toStage2(ctx context.Context, c *cascade) {
	rep, err := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef)
	if err != nil {
		if domain.IsTransport(err) {
			return // retry next tick
		}
		slog.Error("engine: stage 2 status poll rejected", "market", c.order.MarketID, "err", err)
		e.finalize(ctx, c, stateFailed, 0, 0)
		return
	}

	if rep.FullyMatched(c.order.Stake) {
		e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
		return
	}
	if rep.HasMatch() {
		e.markPartial(ctx, c, rep)
		c.state = stateStage2Replaced
		return
	}

	snap, err := e.odds.Snapshot(ctx, c.order.MarketID)
	if err != nil {
		return // retry next tick
	}
	runner, ok := snap.Runner(c.order.SelectionID)
	if !ok || !runner.HasValidLay() {
		// Target no longer layable: pull the order rather than replace blind.
		slog.Warn("engine: target runner no longer layable: cancelling",
			"market", c.order.MarketID, "selection", c.order.SelectionID)
		if err := e.exch.CancelOrder(ctx, c.order.MarketID, c.order.ExchangeRef); err != nil {
			if domain.IsTransport(err) {
				c.verify = verifyCancel
				c.state = stateStage2Replaced
				return
			}
			// Cancel rejected: the usual cause is a fill racing the poll.
			// Re-poll before concluding anything.
			if rep, perr := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef); perr == nil {
				if rep.FullyMatched(c.order.Stake) {
					e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
					return
				}
				if rep.HasMatch() {
					e.markPartial(ctx, c, rep)
					c.state = stateStage2Replaced
					return
				}
			}
			slog.Error("engine: cancel rejected with no fill visible: order will lapse at the off",
				"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
			e.finalize(ctx, c, stateFailed, 0, 0)
			return
		}
		e.finalize(ctx, c, stateCancelled, 0, 0)
		return
	}

	// Stage 2 targets the current price, not a further discount.
	newPrice := domain.RoundToTick(math.Max(*runner.LayPrice, e.cfg.MinOdds))
	prevStage, prevPrice := c.order.Stage, c.order.Price
	c.order.Stage = domain.StageReplace
	c.order.Price = newPrice

	rep2, err := e.exch.ReplaceOrder(ctx, c.order.MarketID, c.order.ExchangeRef, newPrice, c.order.Stake)
	switch {
	case err == nil:
		slog.Info("engine: stage 2 replaced",
			"market", c.order.MarketID, "selection", c.order.SelectionID,
			"old_price", fmt.Sprintf("%.2f", prevPrice),
			"new_price", fmt.Sprintf("%.2f", newPrice))
		e.adoptReport(ctx, c, rep2, stateStage2Replaced)
	case domain.IsTransport(err):
		c.verify = verifyReplace
		c.state = stateStage2Replaced
	default:
		// Replace rejected: the original order is still resting at the old
		// price. Keep it: stage 3 will cancel or cap it anyway.
		slog.Warn("engine: stage 2 replace rejected: keeping resting order",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
		c.order.Stage, c.order.Price = prevStage, prevPrice
		c.state = stateStage2Replaced
	}
}

// --- Stage 3: price-capped close-price order ---

// toStage3 cancels the still-unmatched order and places a close-price order
// capped at twice the current price (bounded by MaxOdds), guaranteeing
// participation while bounding worst-case loss.
func (e *Engine) toStage3(ctx context.Context, c *cascade, secs float64) {
	if c.noTouch {
		e.pollNoTouch(ctx, c, secs)
		return
	}

	rep, err := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef)
	if err != nil {
		if domain.IsTransport(err) {
			return
		}
		e.finalize(ctx, c, stateFailed, 0, 0)
		return
	}
	if rep.FullyMatched(c.order.Stake) {
		e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
		return
	}
	if rep.HasMatch() {
		e.markPartial(ctx, c, rep)
		return
	}

	if err := e.exch.CancelOrder(ctx, c.order.MarketID, c.order.ExchangeRef); err != nil {
		if domain.IsTransport(err) {
			c.verify = verifyCancel
			return
		}
		// Cancel rejected: re-poll before concluding anything.
		if rep, perr := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef); perr == nil {
			if rep.FullyMatched(c.order.Stake) {
				e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
				return
			}
			if rep.HasMatch() {
				e.markPartial(ctx, c, rep)
				return
			}
		}
		slog.Error("engine: stage 3 cancel rejected: order will lapse at the off",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
		e.finalize(ctx, c, stateFailed, 0, 0)
		return
	}

	c.cancelDone = true
	e.placeCapped(ctx, c)
}

// placeCapped submits the price-capped close-price order. Sizing is by
// liability: liability = stake * (cap - 1).
func (e *Engine) placeCapped(ctx context.Context, c *cascade) {
	snap, err := e.odds.Snapshot(ctx, c.order.MarketID)
	if err != nil {
		return // cancel already done; retry the placement next tick
	}
	runner, ok := snap.Runner(c.order.SelectionID)
	if !ok || !runner.HasValidLay() {
		slog.Warn("engine: no layable price for capped order: abandoning",
			"market", c.order.MarketID, "selection", c.order.SelectionID)
		e.finalize(ctx, c, stateCancelled, c.order.MatchedSize, c.order.MatchedPrice)
		return
	}

	capPrice := domain.RoundToTick(math.Min(*runner.LayPrice*2.0, e.cfg.MaxOdds))
	liability := domain.Liability(c.order.Stake, capPrice)
	c.order.Stage = domain.StageCapped
	c.order.Price = capPrice
	c.cancelDone = false

	slog.Info("engine: stage 3 capped close order",
		"market", c.order.MarketID, "selection", c.order.SelectionID,
		"cap", fmt.Sprintf("%.2f", capPrice),
		"liability", fmt.Sprintf("%.2f", liability))

	rep, err := e.exch.PlaceOrder(ctx, domain.PlaceOrderRequest{
		MarketID:    c.order.MarketID,
		SelectionID: c.order.SelectionID,
		Side:        "LAY",
		OrderType:   domain.OrderLimitOnClose,
		Price:       capPrice,
		Liability:   liability,
	})
	switch {
	case err == nil:
		e.adoptReport(ctx, c, rep, stateStage3Placed)
	case domain.IsTransport(err):
		c.verify = verifyPlace
		c.state = stateStage3Placed
	default:
		slog.Warn("engine: capped order rejected",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
		e.finalize(ctx, c, stateFailed, 0, 0)
	}
}

// pollClose waits for a close-price order to settle at the off.
func (e *Engine) pollClose(ctx context.Context, c *cascade, secs float64) {
	if secs > 0 {
		return // nothing to do until the market closes
	}
	rep, err := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef)
	if err != nil {
		// Outcome unknown: only a confirmed report may lapse the order.
		// Keep polling past the grace period, up to the hard limit.
		if secs < -postOffHardLimit {
			slog.Error("engine: close order still unresolved past hard limit",
				"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
			e.finalize(ctx, c, stateFailed, c.order.MatchedSize, c.order.MatchedPrice)
		}
		return
	}
	if rep.HasMatch() {
		e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
		return
	}
	if secs < -postOffGrace {
		// Close price came in above the cap; the order lapsed unmatched.
		e.finalize(ctx, c, stateCancelled, 0, 0)
	}
}

// pollNoTouch rides out a partially matched order: never replace, never
// cancel. Finalized with whatever matched once the market is off.
func (e *Engine) pollNoTouch(ctx context.Context, c *cascade, secs float64) {
	rep, err := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef)
	if err == nil {
		if rep.FullyMatched(c.order.Stake) {
			e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
			return
		}
		if rep.MatchedSize > c.order.MatchedSize {
			e.markPartial(ctx, c, rep)
		}
	}
	if secs < -postOffGrace {
		e.finalize(ctx, c, stateMatched, c.order.MatchedSize, c.order.MatchedPrice)
	}
}

// --- shared helpers ---

// recordAttempt durably records the bet attempt before the exchange sees
// it. A failed write means no bet: the step is treated as not-happened.
func (e *Engine) recordAttempt(ctx context.Context, c *cascade) bool {
	if c.recorded {
		if err := e.store.UpdateStage(ctx, c.order.ID, c.order.Stage, c.order.ExchangeRef, c.order.Price); err != nil {
			slog.Error("engine: stage write failed: skipping step",
				"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
			return false
		}
		return true
	}
	if err := e.store.RecordPlacement(ctx, c.order); err != nil {
		slog.Error("engine: could not record placement: refusing to bet",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
		c.state = stateFailed
		mtxCascades.WithLabelValues("failed").Inc()
		return false
	}
	c.recorded = true
	return true
}

// adoptReport persists the accepted order's exchange reference and applies
// the report's match state. A persistence failure here is escalated: the
// order is cancelled so no phantom live order survives a write gap.
func (e *Engine) adoptReport(ctx context.Context, c *cascade, rep domain.OrderReport, next cascadeState) {
	c.order.ExchangeRef = rep.ExchangeRef

	if err := e.store.UpdateStage(ctx, c.order.ID, c.order.Stage, rep.ExchangeRef, c.order.Price); err != nil {
		slog.Error("engine: could not persist exchange ref: cancelling order",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "err", err)
		if cerr := e.exch.CancelOrder(ctx, c.order.MarketID, rep.ExchangeRef); cerr != nil {
			slog.Error("engine: cancel after write failure also failed", "err", cerr)
		}
		e.finalize(ctx, c, stateFailed, rep.MatchedSize, rep.MatchedPrice)
		return
	}

	mtxPlacements.WithLabelValues(c.order.Stage.String()).Inc()
	slog.Info("engine: order live",
		"market", c.order.MarketID, "selection", c.order.SelectionID,
		"stage", c.order.Stage.String(),
		"price", fmt.Sprintf("%.2f", c.order.Price),
		"stake", fmt.Sprintf("%.2f", c.order.Stake),
		"ref", rep.ExchangeRef)

	if rep.FullyMatched(c.order.Stake) {
		e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
		return
	}
	if rep.HasMatch() {
		e.markPartial(ctx, c, rep)
	}
	c.state = next
}

// markPartial records a partial match and arms the no-touch rule.
func (e *Engine) markPartial(ctx context.Context, c *cascade, rep domain.OrderReport) {
	c.noTouch = true
	c.order.Status = domain.StatusPartial
	c.order.MatchedSize = rep.MatchedSize
	c.order.MatchedPrice = rep.MatchedPrice
	if err := e.store.RecordSettlement(ctx, c.order.ID, domain.StatusPartial, rep.MatchedSize, rep.MatchedPrice, nil); err != nil {
		slog.Error("engine: could not record partial match", "id", c.order.ID, "err", err)
	}
	slog.Info("engine: partial match: no further touch",
		"market", c.order.MarketID, "selection", c.order.SelectionID,
		"matched", fmt.Sprintf("%.2f/%.2f", rep.MatchedSize, c.order.Stake))
}

// finalize drives the cascade into a terminal state and records it.
func (e *Engine) finalize(ctx context.Context, c *cascade, state cascadeState, matchedSize, matchedPrice float64) {
	c.state = state

	var status domain.OrderStatus
	outcome := ""
	switch state {
	case stateMatched:
		status = domain.StatusMatched
		outcome = "matched"
		if matchedSize > 0 && matchedSize < c.order.Stake*0.999 {
			outcome = "partial"
		}
	case stateCancelled:
		status = domain.StatusCancelled
		outcome = "cancelled"
	default:
		status = domain.StatusFailed
		outcome = "failed"
	}

	var matchedAt *time.Time
	if matchedSize > 0 {
		now := e.clock.Now()
		matchedAt = &now
	}

	if c.recorded {
		if err := e.store.RecordSettlement(ctx, c.order.ID, status, matchedSize, matchedPrice, matchedAt); err != nil {
			slog.Error("engine: could not record settlement",
				"id", c.order.ID, "status", status, "err", err)
		}
	}

	c.order.Status = status
	c.order.MatchedSize = matchedSize
	c.order.MatchedPrice = matchedPrice
	mtxCascades.WithLabelValues(outcome).Inc()

	slog.Info("engine: cascade finished",
		"market", c.order.MarketID, "selection", c.order.SelectionID,
		"runner", c.order.Runner,
		"status", string(status),
		"stage", c.order.Stage.String(),
		"matched", fmt.Sprintf("%.2f@%.2f", matchedSize, matchedPrice))
}

// verifyOutstanding resolves an exchange call with an unknown outcome by
// listing the market's live orders, before any further placement.
func (e *Engine) verifyOutstanding(ctx context.Context, c *cascade, now time.Time) {
	orders, err := e.exch.ListCurrentOrders(ctx, c.order.MarketID)
	if err != nil {
		return // still unknown; retry next tick
	}

	var found *domain.CurrentOrder
	for i := range orders {
		if orders[i].SelectionID == c.order.SelectionID && orders[i].Side == "LAY" {
			found = &orders[i]
			break
		}
	}

	kind := c.verify
	c.verify = verifyNone

	if found != nil {
		// The call landed after all: adopt the live order.
		c.order.ExchangeRef = found.ExchangeRef
		c.order.Price = found.Price
		if err := e.store.UpdateStage(ctx, c.order.ID, c.order.Stage, found.ExchangeRef, found.Price); err != nil {
			slog.Error("engine: could not persist verified order", "id", c.order.ID, "err", err)
		}
		slog.Info("engine: verified order is live",
			"market", c.order.MarketID, "selection", c.order.SelectionID, "ref", found.ExchangeRef)
		if found.MatchedSize > 0 {
			e.markPartial(ctx, c, domain.OrderReport{
				ExchangeRef: found.ExchangeRef, MatchedSize: found.MatchedSize, MatchedPrice: found.MatchedPrice,
			})
		}
		return
	}

	// Nothing live. A fully matched order also leaves the list: check.
	if c.order.ExchangeRef != "" {
		if rep, perr := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef); perr == nil && rep.HasMatch() {
			if rep.FullyMatched(c.order.Stake) {
				e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
			} else {
				e.markPartial(ctx, c, rep)
			}
			return
		}
	}

	secs := c.race.SecondsToStart(now)
	switch kind {
	case verifyPlace:
		// The placement never landed; resume at whichever stage fits now.
		e.resumePlacement(ctx, c, secs)
	case verifyReplace:
		// Neither the original nor the replacement survived.
		e.finalize(ctx, c, stateCancelled, 0, 0)
	case verifyCancel:
		// Cancel landed; continue with the capped close order.
		c.cancelDone = true
		c.state = stateStage2Replaced
	}
}

// resumePlacement re-enters the protocol after a verified-not-placed call.
func (e *Engine) resumePlacement(ctx context.Context, c *cascade, secs float64) {
	if secs <= 0 {
		e.finalize(ctx, c, stateCancelled, 0, 0)
		return
	}
	snap, err := e.odds.Snapshot(ctx, c.order.MarketID)
	if err != nil {
		c.verify = verifyPlace // try again next tick
		return
	}
	runner, ok := snap.Runner(c.order.SelectionID)
	if !ok || !runner.HasValidLay() {
		e.finalize(ctx, c, stateCancelled, 0, 0)
		return
	}

	if secs > float64(e.cfg.Stage3Seconds) {
		e.placeFreshLimit(ctx, c, *runner.LayPrice)
	} else {
		c.cancelDone = true
		c.state = stateStage2Replaced // placeCapped runs on the next advance
		e.placeCapped(ctx, c)
	}
}

// placeCappedDirect enters directly at stage 3 for a very late window entry.
func (e *Engine) placeCappedDirect(ctx context.Context, c *cascade, best float64) {
	capPrice := domain.RoundToTick(math.Min(best*2.0, e.cfg.MaxOdds))
	c.order.Stage = domain.StageCapped
	c.order.Price = capPrice
	if !e.recordAttempt(ctx, c) {
		return
	}
	// Park in the stage-2 retry slot so a failed odds read is retried on
	// the next tick; placeCapped re-reads odds and persists the accepted ref.
	c.state = stateStage2Replaced
	c.cancelDone = true
	e.placeCapped(ctx, c)
}

// advanceRecovery drives a cascade adopted from storage after a restart:
// poll only, cancel anything that is not a close order, never re-place.
func (e *Engine) advanceRecovery(ctx context.Context, c *cascade, now time.Time) {
	rep, err := e.exch.GetOrderStatus(ctx, c.order.MarketID, c.order.ExchangeRef)
	if err == nil {
		if rep.FullyMatched(c.order.Stake) {
			e.finalize(ctx, c, stateMatched, rep.MatchedSize, rep.MatchedPrice)
			return
		}
		if rep.HasMatch() {
			if rep.MatchedSize > c.order.MatchedSize {
				e.markPartial(ctx, c, rep)
			}
		} else if c.order.Stage != domain.StageCapped {
			// Timing context is lost; pull the resting order.
			if cerr := e.exch.CancelOrder(ctx, c.order.MarketID, c.order.ExchangeRef); cerr == nil {
				e.finalize(ctx, c, stateCancelled, 0, 0)
				return
			}
		}
	}
	if now.After(c.deadline) {
		if c.order.MatchedSize > 0 {
			e.finalize(ctx, c, stateMatched, c.order.MatchedSize, c.order.MatchedPrice)
		} else {
			e.finalize(ctx, c, stateCancelled, 0, 0)
		}
	}
}

// layLimit builds the standard lay limit request for this cascade.
func (e *Engine) layLimit(c *cascade, price float64) domain.PlaceOrderRequest {
	return domain.PlaceOrderRequest{
		MarketID:    c.order.MarketID,
		SelectionID: c.order.SelectionID,
		Side:        "LAY",
		OrderType:   domain.OrderLimit,
		Price:       price,
		Stake:       c.order.Stake,
		Persistence: domain.PersistLapse,
	}
}
