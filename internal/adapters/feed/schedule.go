package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	"github.com/go-resty/resty/v2"
)

// ScheduleClient reads the external race schedule feed: per-date rows of
// venue, race number and local start time. The feed is read-only; the engine
// re-reads it on a refresh cadence, never per tick.
type ScheduleClient struct {
	client *resty.Client
}

// scheduleRow is one row from the feed. Start times come as local wall-clock
// strings plus an IANA timezone name.
type scheduleRow struct {
	Venue      string `json:"venue"`
	Country    string `json:"country"`
	RaceNumber int    `json:"race_number"`
	Date       string `json:"date"`       // 2006-01-02
	LocalTime  string `json:"local_time"` // 15:04
	Timezone   string `json:"timezone"`   // e.g. Australia/Sydney
}

// NewScheduleClient creates a feed reader for the given base URL.
func NewScheduleClient(base string) *ScheduleClient {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(base, "/")).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)
	return &ScheduleClient{client: client}
}

// Races returns the schedule for a date with start instants resolved to
// absolute time. Rows with unknown timezones or unparsable times are skipped
// with a logged warning: guessing a timezone would corrupt every window
// computation downstream.
func (c *ScheduleClient) Races(ctx context.Context, date time.Time) ([]domain.Race, error) {
	var rows []scheduleRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("date", date.UTC().Format("2006-01-02")).
		SetResult(&rows).
		Get("/races")
	if err != nil {
		return nil, &domain.TransportError{Op: "feed.Races", Err: err}
	}
	if resp.IsError() {
		return nil, &domain.TransportError{
			Op:  "feed.Races",
			Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String()),
		}
	}

	races := make([]domain.Race, 0, len(rows))
	for _, row := range rows {
		startAt, err := resolveStart(row)
		if err != nil {
			slog.Warn("feed: skipping race with unresolvable start time",
				"venue", row.Venue, "race", row.RaceNumber, "tz", row.Timezone, "err", err)
			continue
		}
		races = append(races, domain.Race{
			Venue:   row.Venue,
			Country: row.Country,
			Number:  row.RaceNumber,
			StartAt: startAt,
		})
	}
	return races, nil
}

func resolveStart(row scheduleRow) (time.Time, error) {
	if row.Timezone == "" {
		return time.Time{}, fmt.Errorf("empty timezone")
	}
	loc, err := time.LoadLocation(row.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown timezone %q: %w", row.Timezone, err)
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", row.Date+" "+row.LocalTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q %q: %w", row.Date, row.LocalTime, err)
	}
	return t.UTC(), nil
}
