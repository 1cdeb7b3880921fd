package models

import "time"

// HistoricalPattern pairs a snapshot with its realized 24h outcome.
// MaxProfitPct24h and HoursToMax stay nil until the pattern is evaluated.
type HistoricalPattern struct {
	CandleTime       time.Time        `json:"candle_time"`
	StrategyBucketID StrategyBucketID `json:"strategy_bucket_id"`
	Price            float64          `json:"price"`
	EMA50            *float64         `json:"ema50,omitempty"`
	EMA200           *float64         `json:"ema200,omitempty"`
	RSI14            *float64         `json:"rsi14,omitempty"`
	MACDHistogram    *float64         `json:"macd_histogram,omitempty"`
	VolumeChangePct  *float64         `json:"volume_change_pct,omitempty"`
	PriceChange1h    *float64         `json:"price_change_1h,omitempty"`
	PriceChange4h    *float64         `json:"price_change_4h,omitempty"`
	PriceChange24h   *float64         `json:"price_change_24h,omitempty"`
	Evaluated        bool             `json:"evaluated"`
	MaxProfitPct24h  *float64         `json:"max_profit_pct_24h,omitempty"`
	HoursToMax       *float64         `json:"hours_to_max,omitempty"`
}

// NewPattern copies the feature subset of a snapshot into an unevaluated pattern.
func NewPattern(s Snapshot, bucket StrategyBucketID) HistoricalPattern {
	return HistoricalPattern{
		CandleTime:       s.Time,
		StrategyBucketID: bucket,
		Price:            s.Price,
		EMA50:            s.EMA50,
		EMA200:           s.EMA200,
		RSI14:            s.RSI14,
		MACDHistogram:    s.MACDHistogram,
		VolumeChangePct:  s.VolumeChangePct,
		PriceChange1h:    s.PriceChange1h,
		PriceChange4h:    s.PriceChange4h,
		PriceChange24h:   s.PriceChange24h,
	}
}

// Outcome is the realized future of a pattern.
type Outcome struct {
	MaxProfitPct24h float64 `json:"max_profit_pct_24h"`
	HoursToMax      float64 `json:"hours_to_max"`
}

// WithOutcome returns a copy marked as evaluated.
func (p HistoricalPattern) WithOutcome(o Outcome) HistoricalPattern {
	profit, hours := o.MaxProfitPct24h, o.HoursToMax
	p.Evaluated = true
	p.MaxProfitPct24h = &profit
	p.HoursToMax = &hours
	return p
}

// BuildMode names a pattern pipeline operation.
type BuildMode string

const (
	ModeFull        BuildMode = "full"
	ModeIncremental BuildMode = "incremental"
	ModeResume      BuildMode = "resume"
	ModeEvaluate    BuildMode = "evaluate"
	ModeLatest      BuildMode = "latest"
	ModeBackfill    BuildMode = "indicator_backfill"
)

type BuildStatus string

const (
	StatusCompleted BuildStatus = "completed"
	StatusBusy      BuildStatus = "busy"
	StatusFailed    BuildStatus = "failed"
)

// BuildReport summarizes one pipeline run. Counters are for observability only.
type BuildReport struct {
	Mode      BuildMode   `json:"mode"`
	Status    BuildStatus `json:"status"`
	Built     int         `json:"built"`
	Skipped   int         `json:"skipped"`
	Errors    int         `json:"errors"`
	Evaluated int         `json:"evaluated"`
	Started   time.Time   `json:"started"`
	Finished  time.Time   `json:"finished"`
	Reason    string      `json:"reason"`
}

// PatternStats is a coarse view of the dataset.
type PatternStats struct {
	Total              int64      `json:"total"`
	Evaluated          int64      `json:"evaluated"`
	MaxCandleTime      *time.Time `json:"max_candle_time,omitempty"`
	MaxEvaluatedTime   *time.Time `json:"max_evaluated_time,omitempty"`
	CachedPatterns     int        `json:"cached_patterns"`
	CacheWindowStarted time.Time  `json:"cache_window_started"`
}
