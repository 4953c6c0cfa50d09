package domain

import (
	"math"
	"time"
)

// RunnerOdds is one runner's best available prices in a snapshot.
// Prices are pointers: nil means no money on that side, which is not the
// same thing as odds of zero.
type RunnerOdds struct {
	SelectionID int64
	Name        string
	Barrier     int
	LayPrice    *float64
	LaySize     *float64
	BackPrice   *float64
	Projection  *float64 // projected starting price, when the exchange publishes one
}

// HasValidLay reports whether the runner has a layable price (decimal odds > 1.0).
func (r RunnerOdds) HasValidLay() bool {
	return r.LayPrice != nil && *r.LayPrice > 1.0
}

// ClassificationPrice is the price used for the favorite/longshot split:
// the starting-price projection when available (less noisy), the live lay
// price otherwise. Returns 0 when neither exists.
func (r RunnerOdds) ClassificationPrice() float64 {
	if r.Projection != nil && *r.Projection > 1.0 {
		return *r.Projection
	}
	if r.HasValidLay() {
		return *r.LayPrice
	}
	return 0
}

// OddsSnapshot is a point-in-time view of best prices for every runner in a
// market. Ephemeral: re-fetched on every poll, never persisted.
type OddsSnapshot struct {
	MarketID string
	TakenAt  time.Time
	Runners  []RunnerOdds
}

// ValidRunners returns the runners with a layable price.
func (s OddsSnapshot) ValidRunners() []RunnerOdds {
	var out []RunnerOdds
	for _, r := range s.Runners {
		if r.HasValidLay() {
			out = append(out, r)
		}
	}
	return out
}

// Runner returns the runner with the given selection id, if present.
func (s OddsSnapshot) Runner(selectionID int64) (RunnerOdds, bool) {
	for _, r := range s.Runners {
		if r.SelectionID == selectionID {
			return r, true
		}
	}
	return RunnerOdds{}, false
}

// HasProjections reports whether at least one runner carries a starting-price
// projection. A snapshot without any is considered un-vetted for classification.
func (s OddsSnapshot) HasProjections() bool {
	for _, r := range s.Runners {
		if r.Projection != nil && *r.Projection > 1.0 {
			return true
		}
	}
	return false
}

// StdDev returns the population standard deviation of the given prices.
func StdDev(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))

	variance := 0.0
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(prices))
	return math.Sqrt(variance)
}
