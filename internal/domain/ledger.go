package domain

import "time"

// DailyRiskLedger aggregates betting activity for one calendar day (UTC).
// ProfitLoss is signed net P&L: winning bets offset losing ones.
type DailyRiskLedger struct {
	Date        time.Time
	BetsPlaced  int
	ProfitLoss  float64
	LifetimePnL float64 // cumulative signed P&L across all days
}

// DayKey normalizes a time to its UTC calendar day, the ledger row key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
