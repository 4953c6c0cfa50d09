package engine

// Prometheus metrics updated by the engine:
//   • laybot_placements_total{stage}      – orders submitted per cascade stage
//   • laybot_cascades_total{outcome}      – cascades finished (matched|partial|cancelled|failed)
//   • laybot_guard_refusals_total{reason} – placements vetoed by the risk guard
//   • laybot_unresolved_races_total       – schedule rows with no catalogue match
//   • laybot_daily_pnl                    – signed net P&L for the current day (gauge)
//
// Registered via promauto on the default registry; served by the /metrics
// handler started in cmd/laybot.

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mtxPlacements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laybot_placements_total",
			Help: "Orders submitted to the exchange per cascade stage",
		},
		[]string{"stage"},
	)

	mtxCascades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laybot_cascades_total",
			Help: "Cascades finished, by terminal outcome",
		},
		[]string{"outcome"},
	)

	mtxGuardRefusals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laybot_guard_refusals_total",
			Help: "Placements vetoed by the risk guard, by reason",
		},
		[]string{"reason"},
	)

	mtxUnresolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "laybot_unresolved_races_total",
			Help: "Schedule feed races with no resolvable exchange market",
		},
	)

	mtxDailyPnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "laybot_daily_pnl",
			Help: "Signed net profit/loss for the current UTC day",
		},
	)
)
