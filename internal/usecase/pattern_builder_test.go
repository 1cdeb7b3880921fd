package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/internal/service/buildgate"
	"FinPattern/internal/service/cache"
	"FinPattern/internal/services/features"
	"FinPattern/pkg/logger"
)

type builderFixture struct {
	b          *PatternBuilder
	candles    *memCandles
	patterns   *memPatterns
	indicators *memIndicators
	gate       *buildgate.Local
	cache      *cache.PatternCache
}

func newBuilderFixture(cs []models.Candle, pageSize int) *builderFixture {
	now := cs[len(cs)-1].OpenTime.Add(time.Hour)
	clock := func() time.Time { return now }
	f := &builderFixture{
		candles:    newMemCandles(cs),
		patterns:   newMemPatterns(),
		indicators: newMemIndicators(),
		gate:       buildgate.NewLocal(),
		cache:      cache.NewPatternCache(30, cache.WithPatternClock(clock)),
	}
	cfg := DefaultPatternBuilderConfig()
	cfg.EvaluatePageSize = pageSize
	f.b = NewPatternBuilder(f.candles, f.indicators, f.patterns, f.cache, f.gate, nopMetrics{}, logger.NewNop(), cfg, WithBuilderClock(clock))
	return f
}

func TestFullBuild(t *testing.T) {
	f := newBuilderFixture(waveSeries(400), 500)
	r, err := f.b.FullBuild(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// steps 200..303: lookback of 200 and a full 24h future
	if r.Status != models.StatusCompleted || r.Built != 104 || r.Evaluated != 104 || r.Skipped != 0 || r.Errors != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if f.cache.Len() != 104 {
		t.Fatalf("cache got %d", f.cache.Len())
	}
	if _, ok := f.patterns.rows[at(199)]; ok {
		t.Fatalf("pattern before the lookback must not exist")
	}
	if _, ok := f.patterns.rows[at(304)]; ok {
		t.Fatalf("pattern inside the horizon must not exist")
	}
}

func TestIncrementalIsIdempotent(t *testing.T) {
	f := newBuilderFixture(waveSeries(400), 500)
	ctx := context.Background()
	first, err := f.b.IncrementalBuild(ctx)
	if err != nil || first.Built != 104 {
		t.Fatalf("first pass %+v %v", first, err)
	}
	upserts := f.patterns.upserts
	again, err := f.b.IncrementalBuild(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Built != 0 || f.patterns.upserts != upserts {
		t.Fatalf("second pass inserted: %+v", again)
	}

	// walking the complete range again only skips
	var r models.BuildReport
	if err := f.b.walk(ctx, "test", at(200), at(303), &r); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if r.Built != 0 || r.Skipped != 104 || f.patterns.upserts != upserts {
		t.Fatalf("re-walk inserted: %+v", r)
	}
}

func TestBuildBusy(t *testing.T) {
	f := newBuilderFixture(waveSeries(400), 500)
	f.gate.TryAcquire(context.Background())
	r, err := f.b.FullBuild(context.Background())
	if err != nil {
		t.Fatalf("busy must not be an error: %v", err)
	}
	if r.Status != models.StatusBusy || f.patterns.deletes != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestBuildSystemicFailure(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(f *builderFixture)
		reason string
	}{
		{"bounds", func(f *builderFixture) { f.candles.minErr = errBoo }, "cannot determine candle time bounds"},
		{"delete", func(f *builderFixture) { f.patterns.deleteErr = errBoo }, "cannot delete existing patterns"},
	}
	for _, c := range cases {
		f := newBuilderFixture(waveSeries(400), 500)
		old := models.HistoricalPattern{CandleTime: at(300)}.WithOutcome(models.Outcome{MaxProfitPct24h: 1})
		f.patterns.rows[old.CandleTime] = old
		f.cache.Replace([]models.HistoricalPattern{old})
		c.setup(f)

		r, err := f.b.FullBuild(context.Background())
		var be *BuildError
		if !errors.As(err, &be) || be.Reason != c.reason || !errors.Is(err, errBoo) {
			t.Fatalf("%s: unexpected error %v", c.name, err)
		}
		if r.Status != models.StatusFailed {
			t.Fatalf("%s: unexpected status %s", c.name, r.Status)
		}
		if len(f.patterns.rows) != 1 || f.cache.Len() != 1 {
			t.Fatalf("%s: existing data touched", c.name)
		}
		if f.gate.Busy() {
			t.Fatalf("%s: gate not released", c.name)
		}
	}
}

func TestBuildStepErrorsAreCounted(t *testing.T) {
	f := newBuilderFixture(waveSeries(400), 500)
	f.patterns.failAt[at(250)] = true
	r, err := f.b.FullBuild(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Errors != 1 || r.Built != 103 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestBuildSkipsGaps(t *testing.T) {
	cs := waveSeries(400)
	cs = append(cs[:250], cs[251:]...)
	f := newBuilderFixture(cs, 500)
	r, err := f.b.FullBuild(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the missing candle and every step whose ema200 window spans it
	if r.Built != 50 || r.Skipped != 54 || r.Errors != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestComputeOutcomeFlatScenario(t *testing.T) {
	cs := make([]models.Candle, 196)
	for i := range cs {
		cs[i] = models.Candle{OpenTime: at(i), Open: 100, High: 100, Low: 100, Close: 100}
	}
	cs[100].High = 105
	entry := at(99)
	o, ok := ComputeOutcome(entry, 100, cs[100:], 86)
	if !ok {
		t.Fatalf("expected outcome")
	}
	if o.MaxProfitPct24h != 5 || o.HoursToMax != 0 {
		t.Fatalf("got %+v want 5.0000 / 0", o)
	}
	if _, ok := ComputeOutcome(entry, 100, cs[100:185], 86); ok {
		t.Fatalf("85 future candles must not be enough")
	}
}

func TestComputeOutcomeKeepsGridIndex(t *testing.T) {
	var future []models.Candle
	for i := 2; i <= 96; i++ {
		future = append(future, models.Candle{OpenTime: at(i), High: 100})
	}
	future[8].High = 110 // at(10)
	o, ok := ComputeOutcome(at(0), 100, future, 86)
	if !ok {
		t.Fatalf("expected outcome")
	}
	if o.HoursToMax != 2.25 || o.MaxProfitPct24h != 10 {
		t.Fatalf("got %+v", o)
	}
}

func seedIndicators(t *testing.T, f *builderFixture, cs []models.Candle, from int) {
	t.Helper()
	for i := from; i < len(cs); i++ {
		row, ok := features.ExtractRow(cs[i-199 : i+1])
		if !ok {
			t.Fatalf("no row at %d", i)
		}
		_ = f.indicators.Upsert(context.Background(), row)
	}
}

func TestResumeThenEvaluate(t *testing.T) {
	cs := waveSeries(400)
	f := newBuilderFixture(cs, 5)
	seedIndicators(t, f, cs, 200)
	ctx := context.Background()

	r, err := f.b.ResumeFromIndicators(ctx)
	if err != nil || r.Built != 200 {
		t.Fatalf("resume %+v %v", r, err)
	}
	if n, _ := f.patterns.CountEvaluated(ctx); n != 0 {
		t.Fatalf("resume must not evaluate, got %d", n)
	}

	// horizon elapsed for steps 200..307
	r, err = f.b.EvaluatePending(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r.Evaluated != 108 || r.Errors != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if f.cache.Len() != 108 {
		t.Fatalf("cache got %d", f.cache.Len())
	}
	again, _ := f.b.EvaluatePending(ctx)
	if again.Evaluated != 0 {
		t.Fatalf("second pass evaluated %d", again.Evaluated)
	}

	resumed, _ := f.b.ResumeFromIndicators(ctx)
	if resumed.Built != 0 {
		t.Fatalf("resume must continue after the newest pattern, built %d", resumed.Built)
	}
}

func TestEvaluatePatternIdempotent(t *testing.T) {
	cs := waveSeries(400)
	f := newBuilderFixture(cs, 500)
	snap, _ := features.Extract(cs[101:301])
	id, _ := models.BucketOf(snap)
	p := models.NewPattern(snap, id)
	ctx := context.Background()

	done, err := f.b.EvaluatePattern(ctx, &p)
	if err != nil || !done {
		t.Fatalf("first evaluation %v %v", done, err)
	}
	upserts := f.patterns.upserts
	done, err = f.b.EvaluatePattern(ctx, &p)
	if err != nil || done {
		t.Fatalf("second evaluation must be a no-op, got %v %v", done, err)
	}
	if f.patterns.upserts != upserts || !p.Evaluated || p.MaxProfitPct24h == nil {
		t.Fatalf("unexpected state %+v", p)
	}
}

func TestBuildLatestAppendsToCache(t *testing.T) {
	f := newBuilderFixture(waveSeries(400), 500)
	ctx := context.Background()
	r, err := f.b.BuildLatest(ctx, at(303))
	if err != nil || r.Built != 1 || r.Evaluated != 1 {
		t.Fatalf("unexpected report %+v %v", r, err)
	}
	if f.cache.Len() != 1 {
		t.Fatalf("expected cached pattern")
	}
	r, _ = f.b.BuildLatest(ctx, at(390))
	if r.Built != 1 || r.Evaluated != 0 || f.cache.Len() != 1 {
		t.Fatalf("pattern without outcome must not be cached: %+v", r)
	}

	stats, err := f.b.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Evaluated != 1 || stats.CachedPatterns != 1 || !stats.MaxCandleTime.Equal(at(390)) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestBuildLatestEvaluatesResumedRow(t *testing.T) {
	cs := waveSeries(400)
	f := newBuilderFixture(cs, 500)
	seedIndicators(t, f, cs, 200)
	ctx := context.Background()
	if _, err := f.b.ResumeFromIndicators(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}

	r, err := f.b.BuildLatest(ctx, at(303))
	if err != nil || r.Built != 0 || r.Evaluated != 1 || r.Errors != 0 {
		t.Fatalf("unexpected report %+v %v", r, err)
	}
	if f.cache.Len() != 1 {
		t.Fatalf("cache got %d", f.cache.Len())
	}
	if p := f.patterns.rows[at(303)]; !p.Evaluated || p.MaxProfitPct24h == nil {
		t.Fatalf("stored pattern not evaluated: %+v", p)
	}

	r, _ = f.b.BuildLatest(ctx, at(303))
	if r.Evaluated != 0 || r.Skipped != 1 || f.cache.Len() != 1 {
		t.Fatalf("second call must be a no-op: %+v", r)
	}
}
