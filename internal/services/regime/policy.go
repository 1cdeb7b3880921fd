package regime

import (
	"fmt"

	"FinPattern/internal/domain/models"
)

type typeRegime struct {
	t models.StrategyType
	r models.MarketRegime
}

var typeAdjustments = map[typeRegime]float64{
	{models.TypeTrendFollowing, models.RegimeTrend}:          1.3,
	{models.TypeTrendFollowing, models.RegimeRange}:          0.8,
	{models.TypeTrendFollowing, models.RegimeHighVolatility}: 0.9,
	{models.TypeMomentum, models.RegimeTrend}:                1.2,
	{models.TypeMomentum, models.RegimeRange}:                0.8,
	{models.TypeMomentum, models.RegimeHighVolatility}:       1.0,
	{models.TypeBreakout, models.RegimeTrend}:                1.1,
	{models.TypeBreakout, models.RegimeRange}:                0.9,
	{models.TypeBreakout, models.RegimeHighVolatility}:       1.2,
	{models.TypeMeanReversion, models.RegimeTrend}:           0.8,
	{models.TypeMeanReversion, models.RegimeRange}:           1.3,
	{models.TypeMeanReversion, models.RegimeHighVolatility}:  0.9,
	{models.TypeReversal, models.RegimeTrend}:                0.7,
	{models.TypeReversal, models.RegimeRange}:                1.1,
	{models.TypeReversal, models.RegimeHighVolatility}:       1.2,
}

var defaultAllowed = map[models.StrategyType][]models.MarketRegime{
	models.TypeTrendFollowing: {models.RegimeTrend},
	models.TypeMomentum:       {models.RegimeTrend, models.RegimeHighVolatility},
	models.TypeBreakout:       {models.RegimeRange, models.RegimeHighVolatility},
	models.TypeMeanReversion:  {models.RegimeRange},
	models.TypeReversal:       {models.RegimeRange, models.RegimeHighVolatility},
}

// TypeAdjustment is the multiplier of a strategy type under a regime.
// Unknown pairs are neutral.
func TypeAdjustment(t models.StrategyType, r models.MarketRegime) float64 {
	if v, ok := typeAdjustments[typeRegime{t, r}]; ok {
		return v
	}
	return 1.0
}

// Policy answers which regimes each strategy type may trade in.
// It is built once and only read afterwards.
type Policy struct {
	allowed map[models.StrategyType]map[models.MarketRegime]bool
}

// NewPolicy starts from the built-in allow-list and replaces the entries of
// every strategy type present in overrides.
func NewPolicy(overrides map[string][]string) (*Policy, error) {
	p := &Policy{allowed: make(map[models.StrategyType]map[models.MarketRegime]bool, len(defaultAllowed))}
	for t, rs := range defaultAllowed {
		p.allowed[t] = toSet(rs)
	}
	for rawType, rawRegimes := range overrides {
		t := models.StrategyType(rawType)
		if _, ok := defaultAllowed[t]; !ok {
			return nil, fmt.Errorf("allowed_regimes: unknown strategy type %q", rawType)
		}
		rs := make([]models.MarketRegime, 0, len(rawRegimes))
		for _, raw := range rawRegimes {
			r, err := models.ParseRegime(raw)
			if err != nil {
				return nil, fmt.Errorf("allowed_regimes[%s]: %w", rawType, err)
			}
			rs = append(rs, r)
		}
		p.allowed[t] = toSet(rs)
	}
	return p, nil
}

// DefaultPolicy returns the built-in allow-list.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(nil)
	return p
}

func (p *Policy) Allowed(t models.StrategyType, r models.MarketRegime) bool {
	return p.allowed[t][r]
}

func toSet(rs []models.MarketRegime) map[models.MarketRegime]bool {
	out := make(map[models.MarketRegime]bool, len(rs))
	for _, r := range rs {
		out[r] = true
	}
	return out
}
