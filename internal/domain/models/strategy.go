package models

import "time"

const (
	// DefaultStrategyWeight applies to buckets with no recorded predictions.
	DefaultStrategyWeight = 0.5
	MinStrategyWeight     = 0.05
	MaxStrategyWeight     = 1.0
)

// StrategyStats is the adaptive track record of one bucket.
type StrategyStats struct {
	BucketID           StrategyBucketID `json:"bucket_id"`
	TotalPredictions   int              `json:"total_predictions"`
	Successes          int              `json:"successes"`
	Failures           int              `json:"failures"`
	Score              int              `json:"score"`
	SuccessRatePct     float64          `json:"success_rate_pct"`
	Weight             float64          `json:"weight"`
	DegradationAlerted bool             `json:"degradation_alerted"`
	AvgProfitPct       float64          `json:"avg_profit_pct"`
	ProfitSamples      int              `json:"profit_samples"`
	LastUpdated        time.Time        `json:"last_updated"`
}

// NewStrategyStats returns the initial record for a bucket.
func NewStrategyStats(id StrategyBucketID, now time.Time) StrategyStats {
	return StrategyStats{
		BucketID:    id,
		Weight:      DefaultStrategyWeight,
		LastUpdated: now,
	}
}

// StrategyOutcome is one resolved prediction.
type StrategyOutcome struct {
	Success   bool     `json:"success"`
	ProfitPct *float64 `json:"profit_pct,omitempty"`
}
