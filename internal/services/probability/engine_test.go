package probability

import (
	"testing"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/pkg/num"
)

var ts = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func pattern(id models.StrategyBucketID, rsi, ema50, ema200, vol, profit float64) models.HistoricalPattern {
	p := models.HistoricalPattern{
		CandleTime:       ts,
		StrategyBucketID: id,
		RSI14:            num.Ptr(rsi),
		EMA50:            num.Ptr(ema50),
		EMA200:           num.Ptr(ema200),
		VolumeChangePct:  num.Ptr(vol),
	}
	return p.WithOutcome(models.Outcome{MaxProfitPct24h: profit, HoursToMax: 2})
}

func trend(conf float64) models.RegimeResult {
	return models.RegimeResult{Regime: models.RegimeTrend, Confidence: conf}
}

func noHistory() Config {
	c := DefaultConfig()
	c.HistoryEnabled = false
	return c
}

func TestMatchesSingleNullRSI(t *testing.T) {
	e := New(DefaultConfig(), nil)
	live := models.Snapshot{RSI14: nil, EMA50: num.Ptr(2), EMA200: num.Ptr(1), VolumeChangePct: num.Ptr(0)}
	p := pattern("RSI_MID_EMA_BULL_VOL_MED", 50, 2, 1, 0, 1)
	if e.MatchesSingle(live, p) {
		t.Fatalf("nil live RSI must not match")
	}
	live.RSI14 = num.Ptr(50)
	p.RSI14 = nil
	if e.MatchesSingle(live, p) {
		t.Fatalf("nil pattern RSI must not match")
	}
}

func TestMatchesSingle(t *testing.T) {
	e := New(DefaultConfig(), nil)
	live := models.Snapshot{RSI14: num.Ptr(50), EMA50: num.Ptr(2), EMA200: num.Ptr(1), VolumeChangePct: num.Ptr(10)}
	cases := []struct {
		name string
		p    models.HistoricalPattern
		want bool
	}{
		{"inside tolerance", pattern("x", 55, 3, 1, 40, 1), true},
		{"outside tolerance", pattern("x", 55.01, 3, 1, 40, 1), false},
		{"opposite trend", pattern("x", 50, 1, 2, 10, 1), false},
		{"other volume bucket", pattern("x", 50, 2, 1, 51, 1), false},
	}
	for _, c := range cases {
		if got := e.MatchesSingle(live, c.p); got != c.want {
			t.Errorf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestStatsEmpty(t *testing.T) {
	s := New(DefaultConfig(), nil).Stats(nil)
	if s.BaseProbability != 0 || s.Matched != 0 {
		t.Fatalf("expected zero stats, got %+v", s)
	}
}

func TestStats(t *testing.T) {
	e := New(DefaultConfig(), nil)
	s := e.Stats([]models.HistoricalPattern{
		pattern("x", 50, 1, 1, 0, 2),
		pattern("x", 50, 1, 1, 0, 1),
		pattern("x", 50, 1, 1, 0, 0.5),
		{RSI14: num.Ptr(50)},
	})
	if s.Matched != 3 || s.Profitable != 2 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.BaseProbability != 66.6667 || s.AvgProfitPct != 1.1667 || s.AvgHoursToMax != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestFinalizeDisallowedType(t *testing.T) {
	e := New(noHistory(), nil)
	stats := models.PatternMatchStats{Matched: 10, Profitable: 10, BaseProbability: 100}
	res := e.Finalize("RSI_LOW_EMA_BULL_VOL_MED", stats, Context{Regime: trend(1)})
	if res.FinalProbability != 0 || !res.Suppressed {
		t.Fatalf("mean reversion in a trend must be suppressed, got %+v", res)
	}
}

func TestFinalizeFormula(t *testing.T) {
	id := models.StrategyBucketID("RSI_MID_EMA_BULL_VOL_MED")
	stats := models.PatternMatchStats{Matched: 2, Profitable: 1, BaseProbability: 50}
	cases := []struct {
		name    string
		cfg     Config
		weights map[models.StrategyBucketID]float64
		history []models.IndicatorRow
		base    float64
		want    float64
	}{
		{"default weight without history", noHistory(), nil, nil, 50, 35.75},
		{"short history is ignored", DefaultConfig(), nil, flatRows(7), 50, 35.75},
		{"history blend", DefaultConfig(), nil, flatRows(24), 50, 46.475},
		{"clamped to 100", noHistory(), map[models.StrategyBucketID]float64{id: 1}, nil, 100, 100},
	}
	for _, c := range cases {
		e := New(c.cfg, nil)
		s := stats
		s.BaseProbability = c.base
		res := e.Finalize(id, s, Context{Regime: trend(1), Weights: c.weights, History: c.history})
		if res.FinalProbability != c.want {
			t.Errorf("%s: got %v want %v", c.name, res.FinalProbability, c.want)
		}
		if res.RegimeFactor != 1.43 || res.TypeAdjustment != 1.3 {
			t.Errorf("%s: unexpected factors %+v", c.name, res)
		}
	}
}

func TestMultiAggregate(t *testing.T) {
	a := models.StrategyBucketID("RSI_MID_EMA_BULL_VOL_MED")
	b := models.StrategyBucketID("RSI_MID_EMA_BULL_VOL_HIGH")
	patterns := []models.HistoricalPattern{
		pattern(a, 48, 2, 1, 0, 2),
		pattern(a, 49, 2, 1, 0, 0.5),
		pattern(a, 51, 2, 1, 0, 3),
		pattern(a, 52, 2, 1, 0, 1),
		pattern(b, 52, 2, 1, 60, 5),
		pattern("RSI_HIGH_EMA_BULL_VOL_MED", 72, 2, 1, 0, 5),
	}
	live := models.Snapshot{Time: ts, RSI14: num.Ptr(50), EMA50: num.Ptr(2), EMA200: num.Ptr(1), VolumeChangePct: num.Ptr(0)}
	e := New(noHistory(), nil)
	res := e.Multi(live, patterns, Context{Regime: trend(0.5), Weights: map[models.StrategyBucketID]float64{a: 1}})

	if len(res.Results) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(res.Results))
	}
	if res.Results[0].BucketID != b || res.Results[1].BucketID != a {
		t.Fatalf("unexpected order %s %s", res.Results[0].BucketID, res.Results[1].BucketID)
	}
	if res.Results[0].FinalProbability != 0 || !res.Results[0].Suppressed {
		t.Fatalf("breakout must be suppressed in a trend")
	}
	if res.Results[1].FinalProbability != 53.625 || res.Results[1].PatternCount != 4 {
		t.Fatalf("unexpected bucket result %+v", res.Results[1])
	}
	if res.AvgBaseProbability != 87.5 || res.AvgFinalProbability != 26.8125 || res.WeightedFinalProbability != 42.9 {
		t.Fatalf("unexpected aggregate %+v", res)
	}
	if res.Best == nil || res.Best.BucketID != a {
		t.Fatalf("unexpected best %+v", res.Best)
	}
}

func TestMultiEmpty(t *testing.T) {
	res := New(DefaultConfig(), nil).Multi(models.Snapshot{}, []models.HistoricalPattern{pattern("x", 50, 1, 1, 0, 1)}, Context{Regime: trend(1)})
	if len(res.Results) != 0 || res.Best != nil {
		t.Fatalf("nil live RSI must yield no results")
	}
}

func TestSingleNeedsBucket(t *testing.T) {
	if _, ok := New(DefaultConfig(), nil).Single(models.Snapshot{}, nil, Context{}); ok {
		t.Fatalf("expected no result without a bucket")
	}
}
