// Package metrics accumulates bake statistics from per-frame chain reports.
package metrics

import "github.com/san-kum/springmagic/internal/dynamo"

// SettleTolerance is the deviation below which a chain counts as settled.
const SettleTolerance = 1e-3

// Standard returns the metrics recorded for every bake.
func Standard() []dynamo.Metric {
	return []dynamo.Metric{
		NewPeakDeviation(),
		NewMeanDeviation(),
		NewCollisions(),
		NewSettleFrame(SettleTolerance),
	}
}
