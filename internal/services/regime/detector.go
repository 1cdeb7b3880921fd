package regime

import (
	"math"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/pkg/num"
)

const (
	// WindowCandles is the lookback of full detection (24h).
	WindowCandles = models.HorizonCandles

	FullConditions  = 4
	LightConditions = 3
	// LightConfidenceFloor is the minimum confidence reported by light detection.
	LightConfidenceFloor = 0.3

	consecutiveRun = 8
)

// DetectLight classifies the market from a single snapshot.
// Absent snapshot fields fail their condition.
func DetectLight(s models.Snapshot) models.RegimeResult {
	dist, hasDist := emaDistancePct(s.EMA50, s.EMA200, s.Price)
	bull, hasTrend := s.EMABullish()
	ch, hasCh := value(s.PriceChange1h)
	rsi, hasRSI := value(s.RSI14)

	trend := count(
		hasDist && dist > 1,
		hasCh && hasTrend && ((bull && ch >= 0.3) || (!bull && ch <= -0.3)),
		hasRSI && rsi >= 35 && rsi <= 65,
	)
	rng := count(
		hasDist && dist < 0.5,
		hasCh && math.Abs(ch) < 0.3,
		hasRSI && rsi >= 40 && rsi <= 60,
	)
	hv := count(
		hasDist && dist > 3,
		hasCh && math.Abs(ch) > 1.5,
		hasRSI && (rsi < 25 || rsi > 75),
	)

	res := pick(map[models.MarketRegime]int{
		models.RegimeTrend:          trend,
		models.RegimeRange:          rng,
		models.RegimeHighVolatility: hv,
	}, LightConditions)
	res.Mode = models.DetectionLight
	res.Confidence = num.Round4(math.Max(res.Confidence, LightConfidenceFloor))
	return res
}

// DetectFull classifies the market from the last 96 candles (ascending) and
// their indicator rows. Rows are joined to candles by time; a candle without
// a row fails every per-bar condition. ok is false with fewer than 96 candles.
func DetectFull(candles []models.Candle, rows []models.IndicatorRow) (models.RegimeResult, bool) {
	if len(candles) < WindowCandles {
		return models.RegimeResult{}, false
	}
	candles = candles[len(candles)-WindowCandles:]
	last := candles[len(candles)-1]
	price := last.Close

	byTime := make(map[time.Time]models.IndicatorRow, len(rows))
	var latest *models.IndicatorRow
	var rsiSeries []float64
	for i := range rows {
		r := rows[i]
		if r.Time.Before(candles[0].OpenTime) || r.Time.After(last.OpenTime) {
			continue
		}
		byTime[r.Time] = r
		latest = &rows[i]
		if r.RSI14 != nil {
			rsiSeries = append(rsiSeries, *r.RSI14)
		}
	}

	var snap models.Snapshot
	var atr *float64
	if latest != nil {
		snap = latest.Snapshot
		atr = latest.ATR14
	}
	dist, hasDist := emaDistancePct(snap.EMA50, snap.EMA200, price)
	bull, hasTrend := snap.EMABullish()
	rsi, hasRSI := value(snap.RSI14)
	atrPct, hasATR := 0.0, false
	if atr != nil && price != 0 {
		atrPct, hasATR = *atr/price*100, true
	}

	var inside, outside, bigMoves, wicky int
	for i, c := range candles {
		if r, ok := byTime[c.OpenTime]; ok && r.BBUpper != nil && r.BBLower != nil {
			if c.Close >= *r.BBLower && c.Close <= *r.BBUpper {
				inside++
			} else {
				outside++
			}
		}
		if i > 0 && candles[i-1].Close != 0 {
			if math.Abs(c.Close/candles[i-1].Close-1)*100 > 2 {
				bigMoves++
			}
		}
		body := math.Abs(c.Close - c.Open)
		wick := (c.High - c.Low) - body
		if wick > 2*body {
			wicky++
		}
	}
	n := float64(len(candles))

	trend := count(
		hasDist && dist > 1.5,
		hasTrend && snap.EMA50 != nil && ((bull && price > *snap.EMA50) || (!bull && price < *snap.EMA50)),
		consecutive(candles, consecutiveRun),
		hasRSI && rsi >= 35 && rsi <= 65,
	)
	rng := count(
		float64(inside)/n >= 0.8,
		hasATR && atrPct < 1,
		hasDist && dist < 0.5,
		crossings(rsiSeries, 50) >= 3,
	)
	hv := count(
		hasATR && atrPct > 2,
		bigMoves >= 3,
		float64(outside)/n >= 0.15,
		float64(wicky)/n >= 0.2,
	)

	res := pick(map[models.MarketRegime]int{
		models.RegimeTrend:          trend,
		models.RegimeRange:          rng,
		models.RegimeHighVolatility: hv,
	}, FullConditions)
	res.Mode = models.DetectionFull
	return res, true
}

// pick selects the regime with the most matched conditions. Ties resolve in
// the order HIGH_VOLATILITY, TREND, RANGE.
func pick(scores map[models.MarketRegime]int, total int) models.RegimeResult {
	best := models.RegimeHighVolatility
	for _, r := range models.AllRegimes() {
		if scores[r] > scores[best] {
			best = r
		}
	}
	return models.RegimeResult{
		Regime:            best,
		Confidence:        num.Round4(float64(scores[best]) / float64(total)),
		MatchedConditions: scores[best],
		TotalConditions:   total,
		Scores:            scores,
	}
}

// consecutive reports whether each of the last run candles has a strictly
// higher high, or each has a strictly lower low, than the one before.
func consecutive(candles []models.Candle, run int) bool {
	if len(candles) < run+1 {
		return false
	}
	tail := candles[len(candles)-run-1:]
	up, down := true, true
	for i := 1; i < len(tail); i++ {
		if tail[i].High <= tail[i-1].High {
			up = false
		}
		if tail[i].Low >= tail[i-1].Low {
			down = false
		}
	}
	return up || down
}

// crossings counts how often the series moves across level.
func crossings(xs []float64, level float64) int {
	n := 0
	for i := 1; i < len(xs); i++ {
		if (xs[i-1] < level) != (xs[i] < level) {
			n++
		}
	}
	return n
}

func emaDistancePct(ema50, ema200 *float64, price float64) (float64, bool) {
	if ema50 == nil || ema200 == nil || price == 0 {
		return 0, false
	}
	return math.Abs(*ema50-*ema200) / price * 100, true
}

func value(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func count(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}
