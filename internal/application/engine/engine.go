package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	"github.com/alejandrodnm/laybot/internal/ports"
)

const (
	defaultWindowMin     = 5
	defaultWindowMax     = 50
	defaultStage1Seconds = 40
	defaultStage2Seconds = 20
	defaultStage3Seconds = 10
	defaultMinFieldSize  = 6
	defaultReferenceSize = 12
	defaultTickInterval  = time.Second
	defaultFeedRefresh   = 10 * time.Minute

	// How long after the off a close-price order may stay unresolved before
	// the cascade is finalized with whatever matched.
	postOffGrace = 60.0 // seconds

	// Hard limit for a close order whose status polls keep failing after
	// the off. Expiry without a confirmed report finalizes FAILED, never
	// CANCELLED: the fill may simply be invisible.
	postOffHardLimit = 180.0 // seconds

	stopFile = "STOP_LAYBOT"
)

// ErrHalted is returned by Run when the lifetime stop-loss is breached.
// It terminates the whole process, not just the current race.
var ErrHalted = errors.New("lifetime stop-loss breached: engine halted")

// Config holds the engine's betting and scheduling parameters.
type Config struct {
	Stake              float64
	MinOdds            float64
	MaxOdds            float64
	WindowMin          int // actionable window lower bound, seconds to start
	WindowMax          int // actionable window upper bound
	Stage1Seconds      int // discounted opening limit requires at least this long to the off
	Stage2Seconds      int // replace-to-current trigger
	Stage3Seconds      int // price-capped close-order trigger
	MinFieldSize       int
	BaseDispersion     float64 // odds stddev threshold at the reference field size
	BaseCeiling        float64 // longshot odds ceiling at the reference field size
	ReferenceFieldSize int
	MaxDailyBets       int
	MaxDailyLoss       float64 // positive magnitude; compared against signed net
	LifetimeStopLoss   float64 // positive magnitude; breach halts the process
	RequireProjection  bool    // refuse eligibility without a projected starting price
	TickInterval       time.Duration
	FeedRefresh        time.Duration
}

// Engine owns all process-local mutable state: the FieldSplit cache, the
// in-flight cascade map and the attempted set: and the handles to every
// collaborator. No package-level singletons; everything flows through here.
type Engine struct {
	feed      ports.ScheduleFeed
	odds      ports.OddsProvider
	exch      ports.Exchange
	catalogue ports.MarketCatalogue
	store     ports.Storage
	cfg       Config
	clock     Clock

	splitsMu sync.Mutex
	splits   map[string]*domain.FieldSplit

	cascades  map[string]*cascade // pairKey → in-flight cascade
	attempted map[string]bool     // pairs tried this run; durable check still applies

	schedule         []domain.Race
	resolved         map[string]string // race key → market id
	unresolvedLogged map[string]bool
	lastFeedRead     time.Time
	lastSettleSweep  time.Time

	halted bool
}

// New creates an Engine. A nil clock means wall-clock time.
func New(
	feed ports.ScheduleFeed,
	odds ports.OddsProvider,
	exch ports.Exchange,
	catalogue ports.MarketCatalogue,
	store ports.Storage,
	cfg Config,
	clock Clock,
) *Engine {
	if cfg.WindowMin <= 0 {
		cfg.WindowMin = defaultWindowMin
	}
	if cfg.WindowMax <= 0 {
		cfg.WindowMax = defaultWindowMax
	}
	if cfg.Stage1Seconds <= 0 {
		cfg.Stage1Seconds = defaultStage1Seconds
	}
	if cfg.Stage2Seconds <= 0 {
		cfg.Stage2Seconds = defaultStage2Seconds
	}
	if cfg.Stage3Seconds <= 0 {
		cfg.Stage3Seconds = defaultStage3Seconds
	}
	if cfg.MinFieldSize <= 0 {
		cfg.MinFieldSize = defaultMinFieldSize
	}
	if cfg.ReferenceFieldSize <= 0 {
		cfg.ReferenceFieldSize = defaultReferenceSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.FeedRefresh <= 0 {
		cfg.FeedRefresh = defaultFeedRefresh
	}
	if cfg.MinOdds < domain.MinPrice {
		cfg.MinOdds = domain.MinPrice
	}
	if clock == nil {
		clock = realClock{}
	}

	return &Engine{
		feed:             feed,
		odds:             odds,
		exch:             exch,
		catalogue:        catalogue,
		store:            store,
		cfg:              cfg,
		clock:            clock,
		splits:           make(map[string]*domain.FieldSplit),
		cascades:         make(map[string]*cascade),
		attempted:        make(map[string]bool),
		resolved:         make(map[string]string),
		unresolvedLogged: make(map[string]bool),
	}
}

// Run drives the polling loop: one tick per interval, advancing in-flight
// cascades and scanning for newly-actionable races. Exits cleanly on ctx
// cancellation or the stop file; exits with ErrHalted on a stop-loss breach.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Reconcile(ctx); err != nil {
		return fmt.Errorf("engine.Run: reconcile: %w", err)
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	slog.Info("engine: started",
		"window", fmt.Sprintf("%d-%ds", e.cfg.WindowMin, e.cfg.WindowMax),
		"stake", e.cfg.Stake,
		"tick", e.cfg.TickInterval,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopped (signal)", "in_flight", len(e.cascades))
			return nil
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info("engine: stop file detected: shutting down", "file", stopFile)
				os.Remove(stopFile)
				return nil
			}
			if err := e.RunTick(ctx); err != nil {
				if errors.Is(err, ErrHalted) {
					return err
				}
				slog.Warn("engine: tick error", "err", err)
			}
		}
	}
}

// RunTick evaluates one polling cycle. Errors inside a single cascade step
// never escape: they terminate only that cascade.
func (e *Engine) RunTick(ctx context.Context) error {
	if e.halted {
		return ErrHalted
	}
	now := e.clock.Now()

	if err := e.refreshSchedule(ctx, now); err != nil {
		slog.Warn("engine: schedule refresh failed", "err", err)
	}
	e.settleOutcomes(ctx, now)

	// In-flight cascades first: an order already on the exchange matters
	// more than a new entry.
	for key, c := range e.cascades {
		e.advance(ctx, c, now)
		if c.terminal() {
			delete(e.cascades, key)
		}
	}
	e.pruneSplits(now)

	for _, w := range e.actionableRaces(now) {
		e.evaluateWindow(ctx, w, now)
		if e.halted {
			return ErrHalted
		}
	}
	return nil
}

// Reconcile loads non-terminal bet orders from storage at startup, seeds the
// attempted set so a restarted process never re-bets a pair, and adopts any
// order that is still live on the exchange as a recovery cascade.
func (e *Engine) Reconcile(ctx context.Context) error {
	open, err := e.store.OpenOrders(ctx)
	if err != nil {
		return err
	}

	for _, o := range open {
		key := pairKey(o.MarketID, o.SelectionID)
		e.attempted[key] = true

		if o.ExchangeRef == "" {
			// Recorded but never confirmed on the exchange; nothing to adopt.
			_ = e.store.RecordSettlement(ctx, o.ID, domain.StatusCancelled, o.MatchedSize, o.MatchedPrice, nil)
			slog.Warn("engine: reconcile closed orphan attempt",
				"market", o.MarketID, "selection", o.SelectionID)
			continue
		}

		e.cascades[key] = newRecoveryCascade(o, e.clock.Now())
		slog.Info("engine: reconcile adopted open order",
			"market", o.MarketID, "selection", o.SelectionID,
			"stage", o.Stage.String(), "ref", o.ExchangeRef)
	}

	if len(open) > 0 {
		slog.Info("engine: reconciled persisted state", "open_orders", len(open))
	}
	return nil
}

// evaluateWindow runs the eligibility → guard → cascade pipeline for one
// actionable race.
func (e *Engine) evaluateWindow(ctx context.Context, w domain.RaceWindow, now time.Time) {
	snap, err := e.snapshotWithProjections(ctx, w.MarketID)
	if err != nil {
		slog.Warn("engine: odds snapshot failed",
			"market", w.MarketID, "venue", w.Race.Venue, "err", err)
		return
	}

	eligible, reason, targets := e.analyze(w.MarketID, snap)
	if !eligible {
		slog.Debug("engine: market not eligible",
			"market", w.MarketID, "venue", w.Race.Venue, "reason", reason)
		return
	}

	for _, target := range targets {
		key := pairKey(w.MarketID, target.SelectionID)
		if e.attempted[key] {
			continue
		}

		ok, guardReason, err := e.authorize(ctx, now, w.MarketID, target.SelectionID)
		if err != nil {
			slog.Error("engine: guard check failed", "market", w.MarketID, "err", err)
			return
		}
		if !ok {
			// A guard refusal is a deliberate no-op, not an error.
			slog.Info("engine: placement refused",
				"market", w.MarketID, "selection", target.SelectionID, "reason", guardReason)
			if e.halted {
				return
			}
			continue
		}

		e.startCascade(ctx, w, target, now)
	}
}

// snapshotWithProjections fetches the odds snapshot, retrying once when the
// projection source is required but absent. Without a projection after the
// retry the snapshot is returned as-is and the analyzer refuses eligibility.
func (e *Engine) snapshotWithProjections(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	snap, err := e.odds.Snapshot(ctx, marketID)
	if err != nil {
		return snap, err
	}
	if e.cfg.RequireProjection && !snap.HasProjections() {
		retry, err := e.odds.Snapshot(ctx, marketID)
		if err == nil && retry.HasProjections() {
			return retry, nil
		}
	}
	return snap, nil
}

// pruneSplits discards cached FieldSplits for markets whose betting window
// has long passed and that have no cascade in flight. A split must never be
// dropped while its market can still start cascades: recreating it could
// change the classification.
func (e *Engine) pruneSplits(now time.Time) {
	inFlight := make(map[string]bool, len(e.cascades))
	for _, c := range e.cascades {
		inFlight[c.order.MarketID] = true
	}

	maxAge := time.Duration(e.cfg.WindowMax+120) * time.Second
	e.splitsMu.Lock()
	defer e.splitsMu.Unlock()
	for marketID, split := range e.splits {
		if inFlight[marketID] {
			continue
		}
		if now.Sub(split.CreatedAt) > maxAge {
			delete(e.splits, marketID)
		}
	}
}

func pairKey(marketID string, selectionID int64) string {
	return fmt.Sprintf("%s:%d", marketID, selectionID)
}
