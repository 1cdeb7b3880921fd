package models

import "time"

// Snapshot is the point-in-time indicator vector derived from the trailing
// candle window. A nil field means its warmup window was not available.
type Snapshot struct {
	Time            time.Time `json:"time"`
	Price           float64   `json:"price"`
	EMA50           *float64  `json:"ema50,omitempty"`
	EMA200          *float64  `json:"ema200,omitempty"`
	RSI14           *float64  `json:"rsi14,omitempty"`
	MACDLine        *float64  `json:"macd_line,omitempty"`
	SignalLine      *float64  `json:"signal_line,omitempty"`
	MACDHistogram   *float64  `json:"macd_histogram,omitempty"`
	VolumeChangePct *float64  `json:"volume_change_pct,omitempty"`
	PriceChange1h   *float64  `json:"price_change_1h,omitempty"`
	PriceChange4h   *float64  `json:"price_change_4h,omitempty"`
	PriceChange24h  *float64  `json:"price_change_24h,omitempty"`
}

// IndicatorRow is the persisted per-candle indicator record. It extends
// Snapshot with the inputs the regime detector and the history factor need.
type IndicatorRow struct {
	Snapshot
	Volume   float64  `json:"volume"`
	BBUpper  *float64 `json:"bb_upper,omitempty"`
	BBMiddle *float64 `json:"bb_middle,omitempty"`
	BBLower  *float64 `json:"bb_lower,omitempty"`
	ATR14    *float64 `json:"atr14,omitempty"`
}

// EMABullish reports whether ema50 >= ema200; ok is false if either is absent.
func (s Snapshot) EMABullish() (bull bool, ok bool) {
	if s.EMA50 == nil || s.EMA200 == nil {
		return false, false
	}
	return *s.EMA50 >= *s.EMA200, true
}
