package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
)

// ScheduleFeed supplies the day's race schedule with timezone-resolved start
// instants. Read-only; rows with unknown venues or timezones are skipped by
// the feed with a logged warning, never guessed.
type ScheduleFeed interface {
	Races(ctx context.Context, date time.Time) ([]domain.Race, error)
}

// OddsProvider fetches the current best-price snapshot for a market.
type OddsProvider interface {
	Snapshot(ctx context.Context, marketID string) (domain.OddsSnapshot, error)
}
