package features

import (
	"math"

	"FinPattern/internal/domain/models"
	"FinPattern/pkg/num"
)

const (
	// MinWindow is the shortest candle window Extract accepts.
	MinWindow = 100
	// MinMACDWindow is the shortest close series MACD is computed for.
	MinMACDWindow = 35

	RSIPeriod       = 14
	ATRPeriod       = 14
	BollingerPeriod = 20
	BollingerK      = 2.0
	VolumePeriod    = 20

	Change1h  = 4
	Change4h  = 16
	Change24h = 96
)

// EMASeries computes the exponential moving average series of values.
// out[i] corresponds to values[i+period-1]. The seed is the simple mean of
// the first period values. Returns nil if there are fewer than period values.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	ema := num.Mean(values[:period])
	out = append(out, ema)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// EMA returns the last value of the EMA series.
func EMA(values []float64, period int) (float64, bool) {
	s := EMASeries(values, period)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// RSI uses the simple mean of gains and losses over the last period deltas.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return num.Round4(100 - 100/(1+rs)), true
}

// MACDResult holds the rounded MACD triple. Histogram is Line-Signal exactly.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD computes the 12/26/9 MACD of closes.
func MACD(closes []float64) (MACDResult, bool) {
	if len(closes) < MinMACDWindow {
		return MACDResult{}, false
	}
	ema12 := EMASeries(closes, 12)
	ema26 := EMASeries(closes, 26)
	// ema12[i+14] and ema26[i] share the same close index.
	offset := 26 - 12
	line := make([]float64, len(ema26))
	for i := range ema26 {
		line[i] = ema12[i+offset] - ema26[i]
	}
	signal := EMASeries(line, 9)
	if len(signal) == 0 {
		return MACDResult{}, false
	}
	l := num.Round4(line[len(line)-1])
	s := num.Round4(signal[len(signal)-1])
	return MACDResult{Line: l, Signal: s, Histogram: num.Sub4(l, s)}, true
}

// VolumeChangePct compares the current volume to the mean of the previous period volumes.
func VolumeChangePct(volumes []float64, period int) (float64, bool) {
	if period <= 0 || len(volumes) < period+1 {
		return 0, false
	}
	cur := volumes[len(volumes)-1]
	mean := num.Mean(volumes[len(volumes)-1-period : len(volumes)-1])
	return num.PctChange(cur, mean), true
}

// PriceChangePct is the percentage change of the last close versus n closes back.
func PriceChangePct(closes []float64, n int) (float64, bool) {
	if n <= 0 || len(closes) < n+1 {
		return 0, false
	}
	return num.PctChange(closes[len(closes)-1], closes[len(closes)-1-n]), true
}

// Bands is a Bollinger band triple.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger uses the SMA of the last period closes plus or minus k population deviations.
func Bollinger(closes []float64, period int, k float64) (Bands, bool) {
	if period <= 0 || len(closes) < period {
		return Bands{}, false
	}
	w := closes[len(closes)-period:]
	mid := num.Mean(w)
	var ss float64
	for _, c := range w {
		ss += (c - mid) * (c - mid)
	}
	sd := math.Sqrt(ss / float64(period))
	return Bands{
		Upper:  num.Round4(mid + k*sd),
		Middle: num.Round4(mid),
		Lower:  num.Round4(mid - k*sd),
	}, true
}

// TrueRange of c given the previous close.
func TrueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR is the simple mean of the last period true ranges.
func ATR(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	return num.Round4(sum / float64(period)), true
}

// Extract derives the snapshot at the last candle of an ascending window.
// It returns false when the window is shorter than MinWindow.
func Extract(window []models.Candle) (models.Snapshot, bool) {
	if len(window) < MinWindow {
		return models.Snapshot{}, false
	}
	last := window[len(window)-1]
	closes := models.Closes(window)
	snap := models.Snapshot{Time: last.OpenTime, Price: last.Close}

	if v, ok := EMA(closes, 50); ok {
		snap.EMA50 = num.Ptr(num.Round4(v))
	}
	if v, ok := EMA(closes, 200); ok {
		snap.EMA200 = num.Ptr(num.Round4(v))
	}
	if v, ok := RSI(closes, RSIPeriod); ok {
		snap.RSI14 = num.Ptr(v)
	}
	if m, ok := MACD(closes); ok {
		snap.MACDLine = num.Ptr(m.Line)
		snap.SignalLine = num.Ptr(m.Signal)
		snap.MACDHistogram = num.Ptr(m.Histogram)
	}
	if v, ok := VolumeChangePct(models.Volumes(window), VolumePeriod); ok {
		snap.VolumeChangePct = num.Ptr(v)
	}
	if v, ok := PriceChangePct(closes, Change1h); ok {
		snap.PriceChange1h = num.Ptr(v)
	}
	if v, ok := PriceChangePct(closes, Change4h); ok {
		snap.PriceChange4h = num.Ptr(v)
	}
	if v, ok := PriceChangePct(closes, Change24h); ok {
		snap.PriceChange24h = num.Ptr(v)
	}
	return snap, true
}

// ExtractRow is Extract plus the Bollinger and ATR columns of the indicator history.
func ExtractRow(window []models.Candle) (models.IndicatorRow, bool) {
	snap, ok := Extract(window)
	if !ok {
		return models.IndicatorRow{}, false
	}
	row := models.IndicatorRow{Snapshot: snap, Volume: window[len(window)-1].Volume}
	if b, ok := Bollinger(models.Closes(window), BollingerPeriod, BollingerK); ok {
		row.BBUpper = num.Ptr(b.Upper)
		row.BBMiddle = num.Ptr(b.Middle)
		row.BBLower = num.Ptr(b.Lower)
	}
	if v, ok := ATR(window, ATRPeriod); ok {
		row.ATR14 = num.Ptr(v)
	}
	return row, true
}
