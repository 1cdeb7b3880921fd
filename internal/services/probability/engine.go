package probability

import (
	"fmt"
	"math"
	"sort"

	"FinPattern/internal/domain/models"
	"FinPattern/internal/services/regime"
	"FinPattern/pkg/num"
)

type Config struct {
	RSITolerance       float64
	ProfitThresholdPct float64
	HistoryEnabled     bool
	HistoryBlend       float64
}

func DefaultConfig() Config {
	return Config{
		RSITolerance:       5,
		ProfitThresholdPct: 1.0,
		HistoryEnabled:     true,
		HistoryBlend:       0.3,
	}
}

// Engine scores a live snapshot against cached patterns and turns the base
// probability into a regime and weight adjusted final probability.
type Engine struct {
	cfg    Config
	policy *regime.Policy
}

func New(cfg Config, policy *regime.Policy) *Engine {
	if policy == nil {
		policy = regime.DefaultPolicy()
	}
	return &Engine{cfg: cfg, policy: policy}
}

// Context carries the per-evaluation inputs shared by every bucket.
type Context struct {
	Regime  models.RegimeResult
	Weights map[models.StrategyBucketID]float64
	// History holds ascending indicator rows for the historical factor.
	History []models.IndicatorRow
}

func (c Context) weight(id models.StrategyBucketID) float64 {
	if w, ok := c.Weights[id]; ok {
		return w
	}
	return models.DefaultStrategyWeight
}

// RSIWithin reports whether both RSI values exist and differ by at most tol.
func RSIWithin(live, pattern *float64, tol float64) bool {
	if live == nil || pattern == nil {
		return false
	}
	return math.Abs(*live-*pattern) <= tol
}

// MatchesSingle is the single-strategy predicate: RSI tolerance, same EMA
// trend and same volume bucket. Absent fields never match.
func (e *Engine) MatchesSingle(live models.Snapshot, p models.HistoricalPattern) bool {
	if !RSIWithin(live.RSI14, p.RSI14, e.cfg.RSITolerance) {
		return false
	}
	liveBull, ok := live.EMABullish()
	if !ok || p.EMA50 == nil || p.EMA200 == nil {
		return false
	}
	if liveBull != (*p.EMA50 >= *p.EMA200) {
		return false
	}
	if live.VolumeChangePct == nil || p.VolumeChangePct == nil {
		return false
	}
	return models.VolumeBucketOf(*live.VolumeChangePct) == models.VolumeBucketOf(*p.VolumeChangePct)
}

// Stats summarizes the outcomes of matched patterns. Patterns without an
// outcome are ignored. An empty set yields zero probability.
func (e *Engine) Stats(matched []models.HistoricalPattern) models.PatternMatchStats {
	var n, profitable int
	var profit, hours float64
	for _, p := range matched {
		if p.MaxProfitPct24h == nil || p.HoursToMax == nil {
			continue
		}
		n++
		if *p.MaxProfitPct24h >= e.cfg.ProfitThresholdPct {
			profitable++
		}
		profit += *p.MaxProfitPct24h
		hours += *p.HoursToMax
	}
	if n == 0 {
		return models.PatternMatchStats{}
	}
	return models.PatternMatchStats{
		Matched:         n,
		Profitable:      profitable,
		BaseProbability: num.Round4(float64(profitable) / float64(n) * 100),
		AvgProfitPct:    num.Round4(profit / float64(n)),
		AvgHoursToMax:   num.Round4(hours / float64(n)),
	}
}

// Finalize applies the regime gate and the weight blend to base statistics.
func (e *Engine) Finalize(id models.StrategyBucketID, stats models.PatternMatchStats, ec Context) models.EvaluationResult {
	st := id.Type()
	reg := ec.Regime.Regime
	res := models.EvaluationResult{
		BucketID:         id,
		StrategyType:     st,
		Stats:            stats,
		Regime:           reg,
		RegimeConfidence: ec.Regime.Confidence,
		StrategyWeight:   ec.weight(id),
	}
	if !e.policy.Allowed(st, reg) {
		res.Suppressed = true
		res.SuppressionReason = fmt.Sprintf("%s not allowed in %s", st, reg)
		return res
	}

	res.TypeAdjustment = regime.TypeAdjustment(st, reg)
	factor := reg.Multiplier() * res.TypeAdjustment
	res.RegimeFactor = num.Round4(factor)

	combined := res.StrategyWeight
	if e.cfg.HistoryEnabled {
		if hf, ok := HistoricalFactor(ec.History); ok {
			res.HistoricalFactor = num.Ptr(hf)
			combined = (1-e.cfg.HistoryBlend)*res.StrategyWeight + e.cfg.HistoryBlend*hf
		}
	}
	res.CombinedWeight = num.Round4(combined)

	final := stats.BaseProbability * factor * ec.Regime.Confidence * combined
	res.FinalProbability = num.Round4(num.Clamp(final, 0, 100))
	return res
}

// Single evaluates the live snapshot with the single-strategy predicate.
// ok is false when the snapshot has no bucket.
func (e *Engine) Single(live models.Snapshot, patterns []models.HistoricalPattern, ec Context) (models.EvaluationResult, bool) {
	id, ok := models.BucketOf(live)
	if !ok {
		return models.EvaluationResult{}, false
	}
	var matched []models.HistoricalPattern
	for _, p := range patterns {
		if e.MatchesSingle(live, p) {
			matched = append(matched, p)
		}
	}
	return e.Finalize(id, e.Stats(matched), ec), true
}

// Multi groups patterns by their own bucket, filters each group by RSI
// tolerance and evaluates every non-empty group.
func (e *Engine) Multi(live models.Snapshot, patterns []models.HistoricalPattern, ec Context) models.MultiStrategyResult {
	groups := make(map[models.StrategyBucketID][]models.HistoricalPattern)
	for _, p := range patterns {
		if RSIWithin(live.RSI14, p.RSI14, e.cfg.RSITolerance) {
			groups[p.StrategyBucketID] = append(groups[p.StrategyBucketID], p)
		}
	}
	ids := make([]models.StrategyBucketID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := models.MultiStrategyResult{Time: live.Time, Snapshot: live, Regime: ec.Regime}
	var sumBase, sumFinal, weighted float64
	var count int
	for _, id := range ids {
		stats := e.Stats(groups[id])
		if stats.Matched == 0 {
			continue
		}
		r := models.StrategyAnalysisResult{EvaluationResult: e.Finalize(id, stats, ec), PatternCount: stats.Matched}
		out.Results = append(out.Results, r)
		sumBase += r.Stats.BaseProbability
		sumFinal += r.FinalProbability
		weighted += r.FinalProbability * float64(r.PatternCount)
		count += r.PatternCount
	}
	if len(out.Results) == 0 {
		return out
	}
	n := float64(len(out.Results))
	out.AvgBaseProbability = num.Round4(sumBase / n)
	out.AvgFinalProbability = num.Round4(sumFinal / n)
	out.WeightedFinalProbability = num.Round4(num.SafeDiv(weighted, float64(count)))
	best := 0
	for i, r := range out.Results {
		if r.FinalProbability > out.Results[best].FinalProbability {
			best = i
		}
	}
	b := out.Results[best]
	out.Best = &b
	return out
}
