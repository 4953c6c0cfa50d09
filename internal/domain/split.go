package domain

import "time"

// FieldSplit is the cached favorite/longshot classification for a market.
// Computed once on the first eligibility check and never recomputed, so the
// classification cannot flicker as live odds drift during the betting window.
type FieldSplit struct {
	MarketID   string
	Favorites  map[int64]bool
	Longshots  map[int64]bool
	Ceiling    float64 // field-size-scaled odds ceiling used at creation
	Dispersion float64 // odds stddev measured at creation
	Threshold  float64 // field-size-scaled dispersion threshold used at creation
	FieldSize  int
	CreatedAt  time.Time
}

// IsLongshot reports whether the selection was classified in the longshot half.
func (fs *FieldSplit) IsLongshot(selectionID int64) bool {
	return fs.Longshots[selectionID]
}
