package minipool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promMinipoolCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "minipool",
		Name:      "count",
	}, []string{"status"})
	promLiquidStakedTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "minipool",
		Name:      "liquid_staked_total",
	})
	promHeldFunds = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "minipool",
		Name:      "held_funds",
	})
	promSlashTotal = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "minipool",
		Name:      "collateral_slashed_total",
	})
	promRewardsDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "minipool",
		Name:      "rewards_distributed_total",
	})
)

// SetStatusCount is fed by the daemon's periodic sweep.
func SetStatusCount(status MinipoolStatus, n float64) {
	promMinipoolCount.WithLabelValues(status.String()).Set(n)
}

// SetFundGauges is fed by the daemon's periodic sweep.
func SetFundGauges(liquidStakedTotal, heldFunds uint64) {
	promLiquidStakedTotal.Set(float64(liquidStakedTotal))
	promHeldFunds.Set(float64(heldFunds))
}
