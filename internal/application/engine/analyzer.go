package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/laybot/internal/domain"
)

// analyze decides which runners in a market qualify for a lay. The
// favorite/longshot split is computed once per market and cached; repeated
// calls during the betting window return the identical split even as live
// prices drift runners across the boundary.
func (e *Engine) analyze(marketID string, snap domain.OddsSnapshot) (eligible bool, reason string, targets []domain.RunnerOdds) {
	valid := snap.ValidRunners()
	if len(valid) < e.cfg.MinFieldSize {
		return false, fmt.Sprintf("field too small: %d valid runners < %d", len(valid), e.cfg.MinFieldSize), nil
	}

	if e.cfg.RequireProjection && !snap.HasProjections() {
		// Never bet on an un-vetted classification.
		return false, "no starting-price projection available", nil
	}

	fieldSize := len(valid)
	scale := float64(fieldSize) / float64(e.cfg.ReferenceFieldSize)
	threshold := e.cfg.BaseDispersion * scale
	ceiling := e.cfg.BaseCeiling * scale

	prices := make([]float64, len(valid))
	for i, r := range valid {
		prices[i] = r.ClassificationPrice()
	}
	dispersion := domain.StdDev(prices)
	if dispersion < threshold {
		return false, fmt.Sprintf("odds dispersion %.2f below threshold %.2f (field %d)", dispersion, threshold, fieldSize), nil
	}

	split := e.getOrCreateSplit(marketID, valid, ceiling, dispersion, threshold, snap)

	// Targets come from the cached longshot half, priced off the live
	// snapshot but bounded by the ceiling frozen at split creation.
	for _, r := range valid {
		if !split.IsLongshot(r.SelectionID) {
			continue
		}
		if r.ClassificationPrice() <= split.Ceiling {
			targets = append(targets, r)
		}
	}
	if len(targets) == 0 {
		return false, fmt.Sprintf("no longshot under ceiling %.2f", split.Ceiling), nil
	}

	return true, "", targets
}

// getOrCreateSplit returns the market's FieldSplit, computing it on first
// call. Insert-once under the mutex: two ticks can never race to create two
// different splits for the same market.
func (e *Engine) getOrCreateSplit(marketID string, valid []domain.RunnerOdds, ceiling, dispersion, threshold float64, snap domain.OddsSnapshot) *domain.FieldSplit {
	e.splitsMu.Lock()
	defer e.splitsMu.Unlock()

	if split, ok := e.splits[marketID]; ok {
		return split
	}

	ranked := make([]domain.RunnerOdds, len(valid))
	copy(ranked, valid)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].ClassificationPrice() < ranked[j].ClassificationPrice()
	})

	// Lowest-priced half are the favorites; the remainder the longshots.
	// Odd fields round the extra runner into the favorites: laying fewer
	// longshots is the safer side of the ambiguity.
	favCount := (len(ranked) + 1) / 2
	split := &domain.FieldSplit{
		MarketID:   marketID,
		Favorites:  make(map[int64]bool, favCount),
		Longshots:  make(map[int64]bool, len(ranked)-favCount),
		Ceiling:    ceiling,
		Dispersion: dispersion,
		Threshold:  threshold,
		FieldSize:  len(ranked),
		CreatedAt:  snap.TakenAt,
	}
	for i, r := range ranked {
		if i < favCount {
			split.Favorites[r.SelectionID] = true
		} else {
			split.Longshots[r.SelectionID] = true
		}
	}
	e.splits[marketID] = split

	slog.Info("engine: field split created",
		"market", marketID,
		"field", split.FieldSize,
		"favorites", favCount,
		"longshots", split.FieldSize-favCount,
		"ceiling", fmt.Sprintf("%.2f", ceiling),
		"dispersion", fmt.Sprintf("%.2f", dispersion),
		"threshold", fmt.Sprintf("%.2f", threshold),
	)
	return split
}
