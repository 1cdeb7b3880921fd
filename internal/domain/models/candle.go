package models

import "time"

const (
	// CandleInterval is the resolution of the series.
	CandleInterval = 15 * time.Minute
	// Horizon is how far ahead a pattern outcome looks.
	Horizon = 24 * time.Hour
	// HorizonCandles is the number of candles inside Horizon.
	HorizonCandles = int(Horizon / CandleInterval)
)

// Candle represents a closed 15-minute OHLCV record.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// AlignTime truncates t to the candle grid.
func AlignTime(t time.Time) time.Time {
	return t.UTC().Truncate(CandleInterval)
}

// Closes extracts close prices in the same order.
func Closes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts volumes in the same order.
func Volumes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}
