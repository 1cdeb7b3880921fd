package models

import (
	"fmt"
	"time"
)

// MarketRegime is the coarse market-behavior class.
type MarketRegime string

const (
	RegimeTrend          MarketRegime = "TREND"
	RegimeRange          MarketRegime = "RANGE"
	RegimeHighVolatility MarketRegime = "HIGH_VOLATILITY"
)

// Multiplier is the fixed signal multiplier of the regime.
func (r MarketRegime) Multiplier() float64 {
	switch r {
	case RegimeTrend:
		return 1.1
	case RegimeRange:
		return 0.9
	case RegimeHighVolatility:
		return 0.7
	default:
		return 1.0
	}
}

// ParseRegime validates a raw regime name.
func ParseRegime(s string) (MarketRegime, error) {
	switch r := MarketRegime(s); r {
	case RegimeTrend, RegimeRange, RegimeHighVolatility:
		return r, nil
	default:
		return "", fmt.Errorf("unknown regime %q", s)
	}
}

// AllRegimes lists regimes in tie-break priority order.
func AllRegimes() []MarketRegime {
	return []MarketRegime{RegimeHighVolatility, RegimeTrend, RegimeRange}
}

type DetectionMode string

const (
	DetectionFull  DetectionMode = "full"
	DetectionLight DetectionMode = "light"
)

// RegimeResult is the output contract shared by both detection modes.
type RegimeResult struct {
	Regime            MarketRegime         `json:"regime"`
	Confidence        float64              `json:"confidence"`
	MatchedConditions int                  `json:"matched_conditions"`
	TotalConditions   int                  `json:"total_conditions"`
	Scores            map[MarketRegime]int `json:"scores,omitempty"`
	Mode              DetectionMode        `json:"mode"`
}

// RegimeObservation is an appended record of one detection cycle.
type RegimeObservation struct {
	ID                string        `json:"id"`
	Timestamp         time.Time     `json:"timestamp"`
	Regime            MarketRegime  `json:"regime"`
	Confidence        float64       `json:"confidence"`
	MatchedConditions int           `json:"matched_conditions"`
	TotalConditions   int           `json:"total_conditions"`
	Mode              DetectionMode `json:"mode"`
}
