package usecase

import (
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/pkg/num"
)

// ComputeOutcome finds the highest high in the 24h after t. future holds the
// candles with t < openTime <= t+24h in ascending order. The index of the
// maximum is measured on the candle grid, so gaps keep their slot. ok is
// false when fewer than minFuture candles are present.
func ComputeOutcome(t time.Time, entryClose float64, future []models.Candle, minFuture int) (models.Outcome, bool) {
	horizonEnd := t.Add(models.Horizon)
	n := 0
	maxHigh := 0.0
	var maxAt time.Time
	for _, c := range future {
		if !c.OpenTime.After(t) || c.OpenTime.After(horizonEnd) {
			continue
		}
		if n == 0 || c.High > maxHigh {
			maxHigh = c.High
			maxAt = c.OpenTime
		}
		n++
	}
	if n == 0 || n < minFuture {
		return models.Outcome{}, false
	}
	idx := int(maxAt.Sub(t)/models.CandleInterval) - 1
	return models.Outcome{
		MaxProfitPct24h: num.PctChange(maxHigh, entryClose),
		HoursToMax:      num.Round4(float64(idx) / 4),
	}, true
}
