package engine

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
)

// How far apart the feed's start time and the catalogue's may drift while
// still being the same race.
const catalogueStartSlack = 5 * time.Minute

// refreshSchedule re-reads the schedule feed on its refresh cadence and
// re-resolves market ids against the exchange catalogue. Races that cannot
// be resolved are logged as errors: they are a correctness gap in the join
// between feed and catalogue, not noise.
func (e *Engine) refreshSchedule(ctx context.Context, now time.Time) error {
	if !e.lastFeedRead.IsZero() && now.Sub(e.lastFeedRead) < e.cfg.FeedRefresh {
		return nil
	}

	races, err := e.feed.Races(ctx, now)
	if err != nil {
		return err
	}

	entries, err := e.catalogue.ListMarkets(ctx, now)
	if err != nil {
		return err
	}

	e.schedule = races
	e.lastFeedRead = now

	resolved := 0
	for _, race := range races {
		key := race.Key()
		if _, ok := e.resolved[key]; ok {
			resolved++
			continue
		}
		marketID := matchCatalogue(race, entries)
		if marketID == "" {
			if !e.unresolvedLogged[key] {
				e.unresolvedLogged[key] = true
				mtxUnresolved.Inc()
				derr := &domain.DataError{
					Op:     "engine.refreshSchedule",
					Detail: "no catalogue market for " + key,
				}
				slog.Error("engine: unresolvable race: skipping",
					"venue", race.Venue, "race", race.Number,
					"start", race.StartAt, "err", derr)
			}
			continue
		}
		e.resolved[key] = marketID
		resolved++
	}

	slog.Info("engine: schedule refreshed",
		"races", len(races), "resolved", resolved, "markets", len(entries))
	return nil
}

// actionableRaces returns the (race, market) pairs currently inside the
// betting window. Recomputed from scratch every tick: start times can be
// corrected upstream and markets can close early, so wall-clock timers are
// never scheduled.
func (e *Engine) actionableRaces(now time.Time) []domain.RaceWindow {
	var windows []domain.RaceWindow
	for _, race := range e.schedule {
		marketID, ok := e.resolved[race.Key()]
		if !ok {
			continue
		}
		secs := race.SecondsToStart(now)
		if secs < float64(e.cfg.WindowMin) || secs > float64(e.cfg.WindowMax) {
			continue
		}
		race.MarketID = marketID
		windows = append(windows, domain.RaceWindow{
			Race:           race,
			MarketID:       marketID,
			SecondsToStart: secs,
		})
	}
	return windows
}

// matchCatalogue fuzzy-joins a schedule race against the exchange catalogue:
// normalized venue equality plus either the race number parsed from the
// market name or a start time within the slack.
func matchCatalogue(race domain.Race, entries []domain.CatalogueEntry) string {
	want := normalizeVenue(race.Venue)
	for _, entry := range entries {
		got := normalizeVenue(entry.Venue)
		// Prefix match tolerates country suffixes like "WENTWORTH-PARK (AUS)".
		if got != want && !strings.HasPrefix(got, want) && !strings.HasPrefix(want, got) {
			continue
		}
		if n, ok := raceNumberFromName(entry.MarketName); ok && n == race.Number {
			return entry.MarketID
		}
		if !entry.StartAt.IsZero() &&
			math.Abs(entry.StartAt.Sub(race.StartAt).Seconds()) <= catalogueStartSlack.Seconds() {
			return entry.MarketID
		}
	}
	return ""
}

var raceNumberRe = regexp.MustCompile(`^R(\d+)\b`)

// raceNumberFromName extracts the race number from a market name like
// "R4 1400m Pace".
func raceNumberFromName(name string) (int, bool) {
	m := raceNumberRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// normalizeVenue lowercases and strips everything but letters, so
// "Wentworth Park" joins against "WENTWORTH-PARK (AUS)".
func normalizeVenue(venue string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(venue) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
