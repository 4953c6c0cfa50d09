package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchCatalogueByRaceNumber(t *testing.T) {
	race := domain.Race{Venue: "Wentworth Park", Number: 4, StartAt: testBase}
	entries := []domain.CatalogueEntry{
		{MarketID: "1.111", Venue: "WENTWORTH-PARK (AUS)", MarketName: "R3 520m Heat"},
		{MarketID: "1.222", Venue: "WENTWORTH-PARK (AUS)", MarketName: "R4 520m Final"},
		{MarketID: "1.333", Venue: "Richmond", MarketName: "R4 400m"},
	}
	assert.Equal(t, "1.222", matchCatalogue(race, entries))
}

func TestMatchCatalogueByStartTimeSlack(t *testing.T) {
	race := domain.Race{Venue: "Addington", Number: 6, StartAt: testBase}
	entries := []domain.CatalogueEntry{
		// No parseable race number, but the start is within the slack.
		{MarketID: "1.444", Venue: "Addington", MarketName: "520m Pace", StartAt: testBase.Add(2 * time.Minute)},
	}
	assert.Equal(t, "1.444", matchCatalogue(race, entries))

	entries[0].StartAt = testBase.Add(10 * time.Minute)
	assert.Equal(t, "", matchCatalogue(race, entries))
}

func TestMatchCatalogueRejectsWrongVenue(t *testing.T) {
	race := domain.Race{Venue: "Albion Park", Number: 2, StartAt: testBase}
	entries := []domain.CatalogueEntry{
		{MarketID: "1.555", Venue: "Angle Park", MarketName: "R2 515m"},
	}
	assert.Equal(t, "", matchCatalogue(race, entries))
}

func TestNormalizeVenue(t *testing.T) {
	assert.Equal(t, normalizeVenue("Wentworth Park"), normalizeVenue("WENTWORTH-PARK"))
	assert.NotEqual(t, normalizeVenue("Albion Park"), normalizeVenue("Angle Park"))
}

func TestRaceNumberFromName(t *testing.T) {
	n, ok := raceNumberFromName("R4 1400m Pace")
	require.True(t, ok)
	assert.Equal(t, 4, n)

	n, ok = raceNumberFromName(" R12 Trot")
	require.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = raceNumberFromName("520m Final")
	assert.False(t, ok)

	// "R40" must not parse as race 4 of some other name shape.
	n, ok = raceNumberFromName("R40 Sprint")
	require.True(t, ok)
	assert.Equal(t, 40, n)
}

func TestActionableRacesWindowBounds(t *testing.T) {
	e := newTestEngine(newFakeClock(testBase), newFakeOdds(), &fakeExchange{}, newFakeStorage(), Config{})

	mk := func(num int, secs int) domain.Race {
		return domain.Race{Venue: "Wentworth Park", Number: num, StartAt: testBase.Add(time.Duration(secs) * time.Second)}
	}
	races := []domain.Race{mk(1, 4), mk(2, 5), mk(3, 30), mk(4, 50), mk(5, 51), mk(6, -3)}
	e.schedule = races
	for _, r := range races {
		e.resolved[r.Key()] = "M" + r.Key()
	}

	windows := e.actionableRaces(testBase)
	require.Len(t, windows, 3)
	nums := []int{windows[0].Race.Number, windows[1].Race.Number, windows[2].Race.Number}
	assert.ElementsMatch(t, []int{2, 3, 4}, nums)
}

func TestRefreshScheduleResolvesAndCaches(t *testing.T) {
	clock := newFakeClock(testBase)
	e := newTestEngine(clock, newFakeOdds(), &fakeExchange{}, newFakeStorage(), Config{})

	race := domain.Race{Venue: "Wentworth Park", Number: 4, StartAt: testBase.Add(30 * time.Minute)}
	ghost := domain.Race{Venue: "Nowhere Downs", Number: 1, StartAt: testBase.Add(time.Hour)}
	e.feed = &fakeFeed{races: []domain.Race{race, ghost}}
	e.catalogue = &fakeCatalogue{entries: []domain.CatalogueEntry{
		{MarketID: "1.222", Venue: "WENTWORTH-PARK", MarketName: "R4 520m"},
	}}

	require.NoError(t, e.refreshSchedule(context.Background(), testBase))
	assert.Equal(t, "1.222", e.resolved[race.Key()])
	_, ok := e.resolved[ghost.Key()]
	assert.False(t, ok, "unresolvable race must be skipped, not guessed")
	assert.True(t, e.unresolvedLogged[ghost.Key()])

	// Within the refresh cadence the feed is not re-read.
	e.feed = &fakeFeed{err: assert.AnError}
	require.NoError(t, e.refreshSchedule(context.Background(), testBase.Add(time.Minute)))
}
