package domain

import (
	"fmt"
	"time"
)

// Race is one scheduled race from the schedule feed. Immutable once scheduled;
// the start instant is already timezone-resolved to an absolute time.
type Race struct {
	Venue    string
	Country  string
	Number   int
	StartAt  time.Time
	MarketID string // resolved against the exchange catalogue, empty until matched
}

// Key identifies a race independently of market resolution.
func (r Race) Key() string {
	return fmt.Sprintf("%s-R%d-%s", r.Venue, r.Number, r.StartAt.UTC().Format("2006-01-02"))
}

// SecondsToStart returns the remaining time to the scheduled off, in seconds.
// Negative once the race has started.
func (r Race) SecondsToStart(now time.Time) float64 {
	return r.StartAt.Sub(now).Seconds()
}

// RaceWindow is a race currently inside the actionable pre-start window.
type RaceWindow struct {
	Race           Race
	MarketID       string
	SecondsToStart float64
}

// CatalogueEntry is one market from the exchange's own market catalogue,
// used to join the schedule feed against exchange market ids.
type CatalogueEntry struct {
	MarketID   string
	Venue      string
	Country    string
	MarketName string // e.g. "R4 1400m Pace"
	StartAt    time.Time
}
