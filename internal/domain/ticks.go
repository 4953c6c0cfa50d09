package domain

import "math"

// The exchange price ladder: tick size grows with price magnitude. Each band
// runs from the previous band's limit (inclusive) up to Limit (exclusive).
type tickBand struct {
	Limit float64
	Tick  float64
}

var ladder = []tickBand{
	{2, 0.01},
	{3, 0.02},
	{4, 0.05},
	{6, 0.1},
	{10, 0.2},
	{20, 0.5},
	{30, 1},
	{50, 2},
	{100, 5},
	{math.Inf(1), 10},
}

// MinPrice is the lowest valid decimal odds on the ladder.
const MinPrice = 1.01

// TickSize returns the ladder increment at the given price.
func TickSize(price float64) float64 {
	for _, b := range ladder {
		if price < b.Limit {
			return b.Tick
		}
	}
	return 10
}

// RoundToTick snaps a price to the nearest rung of the ladder. Idempotent:
// rounding an already-rounded price returns it unchanged.
func RoundToTick(price float64) float64 {
	if price < MinPrice {
		return MinPrice
	}
	base := 1.0
	for _, b := range ladder {
		if price < b.Limit {
			steps := math.Round((price - base) / b.Tick)
			p := base + steps*b.Tick
			// Snap to two decimals so repeated rounding is stable.
			p = math.Round(p*100) / 100
			if p < MinPrice {
				p = MinPrice
			}
			return p
		}
		base = b.Limit
	}
	return math.Round(price/10) * 10
}

// OnTick reports whether a price already sits exactly on the ladder.
// Submitting an off-tick price is a caller bug, not something the exchange
// silently corrects.
func OnTick(price float64) bool {
	return math.Abs(RoundToTick(price)-price) < 1e-9
}
