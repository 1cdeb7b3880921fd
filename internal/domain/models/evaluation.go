package models

import "time"

// PatternMatchStats is the raw outcome of matching patterns against a snapshot.
type PatternMatchStats struct {
	Matched         int     `json:"matched"`
	Profitable      int     `json:"profitable"`
	BaseProbability float64 `json:"base_probability"`
	AvgProfitPct    float64 `json:"avg_profit_pct"`
	AvgHoursToMax   float64 `json:"avg_hours_to_max"`
}

// EvaluationResult is the fully combined outcome of one probability evaluation.
type EvaluationResult struct {
	BucketID          StrategyBucketID  `json:"bucket_id"`
	StrategyType      StrategyType      `json:"strategy_type"`
	Stats             PatternMatchStats `json:"stats"`
	Regime            MarketRegime      `json:"regime"`
	RegimeConfidence  float64           `json:"regime_confidence"`
	RegimeFactor      float64           `json:"regime_factor"`
	TypeAdjustment    float64           `json:"type_adjustment"`
	StrategyWeight    float64           `json:"strategy_weight"`
	HistoricalFactor  *float64          `json:"historical_factor,omitempty"`
	CombinedWeight    float64           `json:"combined_weight"`
	FinalProbability  float64           `json:"final_probability"`
	Suppressed        bool              `json:"suppressed"`
	SuppressionReason string            `json:"suppression_reason"`
}

// StrategyAnalysisResult is the per-bucket slice of a multi-strategy query.
type StrategyAnalysisResult struct {
	EvaluationResult
	PatternCount int `json:"pattern_count"`
}

// MultiStrategyResult aggregates every non-empty bucket.
type MultiStrategyResult struct {
	Time                     time.Time                `json:"time"`
	Snapshot                 Snapshot                 `json:"snapshot"`
	Regime                   RegimeResult             `json:"regime"`
	Results                  []StrategyAnalysisResult `json:"results,omitempty"`
	AvgBaseProbability       float64                  `json:"avg_base_probability"`
	AvgFinalProbability      float64                  `json:"avg_final_probability"`
	WeightedFinalProbability float64                  `json:"weighted_final_probability"`
	Best                     *StrategyAnalysisResult  `json:"best,omitempty"`
}

// SignalRecord is a persisted emitted signal awaiting verification.
type SignalRecord struct {
	ID               string           `json:"id"`
	CandleTime       time.Time        `json:"candle_time"`
	BucketID         StrategyBucketID `json:"bucket_id"`
	FinalProbability float64          `json:"final_probability"`
	EntryPrice       float64          `json:"entry_price"`
	Verified         bool             `json:"verified"`
	Success          bool             `json:"success"`
	CreatedAt        time.Time        `json:"created_at"`
}
