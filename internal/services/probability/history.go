package probability

import (
	"FinPattern/internal/domain/models"
	"FinPattern/pkg/num"
)

// MinHistorySamples is the fewest indicator rows the historical factor needs.
const MinHistorySamples = 8

// HistoricalFactor blends six short-horizon trend signals of ascending
// indicator rows into one multiplier in [0.5, 1.5]. Each signal is neutral
// (1.0) when its inputs are missing. ok is false under MinHistorySamples rows.
func HistoricalFactor(rows []models.IndicatorRow) (float64, bool) {
	if len(rows) < MinHistorySamples {
		return 0, false
	}
	factors := []float64{
		rsiMomentum(rows),
		emaGapTrend(rows),
		oversoldRecovery(rows),
		bollingerPosition(rows[len(rows)-1]),
		atrTrend(rows),
		volumeTrend(rows),
	}
	return num.Round4(num.Clamp(num.Mean(factors), 0.5, 1.5)), true
}

func rsiMomentum(rows []models.IndicatorRow) float64 {
	var rsi []float64
	for _, r := range rows {
		if r.RSI14 != nil {
			rsi = append(rsi, *r.RSI14)
		}
	}
	if len(rsi) < 2 {
		return 1.0
	}
	half := len(rsi) / 2
	x := num.Clamp((num.Mean(rsi[half:])-num.Mean(rsi[:half]))/10, -1, 1)
	return 1 + 0.3*x
}

func emaGapTrend(rows []models.IndicatorRow) float64 {
	var gaps []float64
	for _, r := range rows {
		if r.EMA50 == nil || r.EMA200 == nil || *r.EMA200 == 0 {
			continue
		}
		gaps = append(gaps, (*r.EMA50-*r.EMA200)/(*r.EMA200)*100)
	}
	if len(gaps) < 2 {
		return 1.0
	}
	x := num.Clamp(gaps[len(gaps)-1]-gaps[0], -1, 1)
	return 1 + 0.2*x
}

func oversoldRecovery(rows []models.IndicatorRow) float64 {
	cur := rows[len(rows)-1].RSI14
	if cur == nil || *cur < 30 || *cur > 45 {
		return 1.0
	}
	for _, r := range rows[:len(rows)-1] {
		if r.RSI14 != nil && *r.RSI14 < 30 {
			return 1.2
		}
	}
	return 1.0
}

func bollingerPosition(r models.IndicatorRow) float64 {
	if r.BBUpper == nil || r.BBLower == nil || *r.BBUpper <= *r.BBLower {
		return 1.0
	}
	pos := (r.Price - *r.BBLower) / (*r.BBUpper - *r.BBLower)
	switch {
	case pos < 0.3:
		return 1.15
	case pos > 0.7:
		return 0.9
	default:
		return 1.0
	}
}

func atrTrend(rows []models.IndicatorRow) float64 {
	var first, last *float64
	for _, r := range rows {
		if r.ATR14 == nil {
			continue
		}
		if first == nil {
			first = r.ATR14
		}
		last = r.ATR14
	}
	if first == nil || *first == 0 || first == last {
		return 1.0
	}
	change := (*last - *first) / *first * 100
	switch {
	case change < -10:
		return 1.1
	case change > 20:
		return 0.95
	default:
		return 1.0
	}
}

func volumeTrend(rows []models.IndicatorRow) float64 {
	vols := make([]float64, len(rows))
	for i, r := range rows {
		vols[i] = r.Volume
	}
	half := len(vols) / 2
	early := num.Mean(vols[:half])
	if early == 0 {
		return 1.0
	}
	change := (num.Mean(vols[half:]) - early) / early * 100
	switch {
	case change > 10:
		return 1.1
	case change < -10:
		return 0.95
	default:
		return 1.0
	}
}
