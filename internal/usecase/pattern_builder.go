package usecase

import (
	"context"
	"fmt"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	"FinPattern/internal/service/buildgate"
	"FinPattern/internal/service/cache"
	"FinPattern/internal/services/features"
	"FinPattern/pkg/logger"
)

type PatternBuilderConfig struct {
	LookbackCandles  int
	MinFutureCandles int
	EvaluatePageSize int
}

func DefaultPatternBuilderConfig() PatternBuilderConfig {
	return PatternBuilderConfig{
		LookbackCandles:  200,
		MinFutureCandles: 86,
		EvaluatePageSize: 500,
	}
}

// PatternBuilder maintains the historical pattern dataset one candle step at
// a time. Every run holds only the candles of the current step.
type PatternBuilder struct {
	pipeline
	candles    domrepo.CandleSource
	indicators domrepo.IndicatorSource
	patterns   domrepo.PatternRepository
	cache      *cache.PatternCache
	cfg        PatternBuilderConfig
}

type PatternBuilderOption func(*PatternBuilder)

func WithBuilderClock(now func() time.Time) PatternBuilderOption {
	return func(b *PatternBuilder) { b.pipeline.now = now }
}

func NewPatternBuilder(
	candles domrepo.CandleSource,
	indicators domrepo.IndicatorSource,
	patterns domrepo.PatternRepository,
	patternCache *cache.PatternCache,
	gate buildgate.Gate,
	metrics domrepo.Metrics,
	log *logger.Logger,
	cfg PatternBuilderConfig,
	opts ...PatternBuilderOption,
) *PatternBuilder {
	def := DefaultPatternBuilderConfig()
	if cfg.LookbackCandles < features.MinWindow {
		cfg.LookbackCandles = def.LookbackCandles
	}
	if cfg.MinFutureCandles <= 0 || cfg.MinFutureCandles > models.HorizonCandles {
		cfg.MinFutureCandles = def.MinFutureCandles
	}
	if cfg.EvaluatePageSize <= 0 {
		cfg.EvaluatePageSize = def.EvaluatePageSize
	}
	b := &PatternBuilder{
		pipeline:   newPipeline(gate, metrics, log),
		candles:    candles,
		indicators: indicators,
		patterns:   patterns,
		cache:      patternCache,
		cfg:        cfg,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// bounds returns the first and last step of a build over the candle series.
// ok is false when the series is empty.
func (b *PatternBuilder) bounds(ctx context.Context, op string) (first, last time.Time, ok bool, err error) {
	minT, hasMin, err := b.candles.MinOpenTime(ctx)
	if err != nil {
		return first, last, false, &BuildError{Op: op, Reason: "cannot determine candle time bounds", Err: err}
	}
	maxT, hasMax, err := b.candles.MaxOpenTime(ctx)
	if err != nil {
		return first, last, false, &BuildError{Op: op, Reason: "cannot determine candle time bounds", Err: err}
	}
	if !hasMin || !hasMax {
		return first, last, false, nil
	}
	first = minT.Add(time.Duration(b.cfg.LookbackCandles) * models.CandleInterval)
	last = maxT.Add(-models.Horizon)
	return first, last, true, nil
}

// FullBuild deletes every pattern and rebuilds the dataset from the candle series.
func (b *PatternBuilder) FullBuild(ctx context.Context) (models.BuildReport, error) {
	return b.run(ctx, models.ModeFull, func(r *models.BuildReport) error {
		first, last, ok, err := b.bounds(ctx, "full build")
		if err != nil {
			return err
		}
		if !ok {
			r.Reason = "no candles"
			return nil
		}
		if err := b.patterns.DeleteAll(ctx); err != nil {
			return &BuildError{Op: "full build", Reason: "cannot delete existing patterns", Err: err}
		}
		if err := b.walk(ctx, "full build", first, last, r); err != nil {
			return err
		}
		b.reloadCache(ctx)
		return nil
	})
}

// IncrementalBuild continues after the newest pattern without touching existing rows.
func (b *PatternBuilder) IncrementalBuild(ctx context.Context) (models.BuildReport, error) {
	return b.run(ctx, models.ModeIncremental, func(r *models.BuildReport) error {
		first, last, ok, err := b.bounds(ctx, "incremental build")
		if err != nil {
			return err
		}
		if !ok {
			r.Reason = "no candles"
			return nil
		}
		newest, has, err := b.patterns.MaxCandleTime(ctx)
		if err != nil {
			return &BuildError{Op: "incremental build", Reason: "cannot determine newest pattern", Err: err}
		}
		if has && newest.Add(models.CandleInterval).After(first) {
			first = newest.Add(models.CandleInterval)
		}
		if err := b.walk(ctx, "incremental build", first, last, r); err != nil {
			return err
		}
		b.reloadCache(ctx)
		return nil
	})
}

func (b *PatternBuilder) walk(ctx context.Context, op string, first, last time.Time, r *models.BuildReport) error {
	for t := first; !t.After(last); t = t.Add(models.CandleInterval) {
		if err := ctx.Err(); err != nil {
			return &BuildError{Op: op, Reason: "interrupted", Err: err}
		}
		b.step(ctx, t, r)
	}
	return nil
}

// step builds and stores the pattern at t, outcome included when the future
// window is available. It returns the stored pattern, if any.
func (b *PatternBuilder) step(ctx context.Context, t time.Time, r *models.BuildReport) (models.HistoricalPattern, bool) {
	exists, err := b.patterns.ExistsAt(ctx, t)
	if err != nil {
		b.stepError(r, t, "exists check", err)
		return models.HistoricalPattern{}, false
	}
	if exists {
		r.Skipped++
		return models.HistoricalPattern{}, false
	}

	start := t.Add(-time.Duration(b.cfg.LookbackCandles-1) * models.CandleInterval)
	window, err := b.candles.CandlesBetween(ctx, start, t.Add(models.Horizon))
	if err != nil {
		b.stepError(r, t, "load candles", err)
		return models.HistoricalPattern{}, false
	}
	split := 0
	for split < len(window) && !window[split].OpenTime.After(t) {
		split++
	}
	lookback, future := window[:split], window[split:]
	if len(lookback) == 0 || !lookback[len(lookback)-1].OpenTime.Equal(t) {
		r.Skipped++
		return models.HistoricalPattern{}, false
	}
	snap, ok := features.Extract(lookback)
	if !ok {
		r.Skipped++
		return models.HistoricalPattern{}, false
	}
	bucket, ok := models.BucketOf(snap)
	if !ok {
		r.Skipped++
		return models.HistoricalPattern{}, false
	}

	p := models.NewPattern(snap, bucket)
	if o, ok := ComputeOutcome(t, snap.Price, future, b.cfg.MinFutureCandles); ok {
		p = p.WithOutcome(o)
	}
	if err := b.patterns.Upsert(ctx, p); err != nil {
		b.stepError(r, t, "upsert", err)
		return models.HistoricalPattern{}, false
	}
	r.Built++
	if p.Evaluated {
		r.Evaluated++
	}
	return p, true
}

func (b *PatternBuilder) stepError(r *models.BuildReport, t time.Time, what string, err error) {
	r.Errors++
	b.metrics.RecordError("pattern_step")
	b.logger.Warn("pattern step failed",
		logger.String("stage", what),
		logger.Time("candle_time", t),
		logger.Error(err),
	)
}

// ResumeFromIndicators stores structural patterns, without outcomes, up to
// the newest indicator row.
func (b *PatternBuilder) ResumeFromIndicators(ctx context.Context) (models.BuildReport, error) {
	return b.run(ctx, models.ModeResume, func(r *models.BuildReport) error {
		last, ok, err := b.indicators.MaxTime(ctx)
		if err != nil {
			return &BuildError{Op: "resume", Reason: "cannot determine newest indicator", Err: err}
		}
		if !ok {
			r.Reason = "no indicators"
			return nil
		}
		newest, has, err := b.patterns.MaxCandleTime(ctx)
		if err != nil {
			return &BuildError{Op: "resume", Reason: "cannot determine newest pattern", Err: err}
		}
		var first time.Time
		if has {
			first = newest.Add(models.CandleInterval)
		} else {
			minT, hasMin, err := b.candles.MinOpenTime(ctx)
			if err != nil {
				return &BuildError{Op: "resume", Reason: "cannot determine candle time bounds", Err: err}
			}
			if !hasMin {
				r.Reason = "no candles"
				return nil
			}
			first = minT.Add(time.Duration(b.cfg.LookbackCandles) * models.CandleInterval)
		}

		for t := first; !t.After(last); t = t.Add(models.CandleInterval) {
			if err := ctx.Err(); err != nil {
				return &BuildError{Op: "resume", Reason: "interrupted", Err: err}
			}
			exists, err := b.patterns.ExistsAt(ctx, t)
			if err != nil {
				b.stepError(r, t, "exists check", err)
				continue
			}
			if exists {
				r.Skipped++
				continue
			}
			row, found, err := b.indicators.At(ctx, t)
			if err != nil {
				b.stepError(r, t, "load indicators", err)
				continue
			}
			if !found {
				r.Skipped++
				continue
			}
			bucket, ok := models.BucketOf(row.Snapshot)
			if !ok {
				r.Skipped++
				continue
			}
			if err := b.patterns.Upsert(ctx, models.NewPattern(row.Snapshot, bucket)); err != nil {
				b.stepError(r, t, "upsert", err)
				continue
			}
			r.Built++
		}
		return nil
	})
}

// EvaluatePending pages through unevaluated patterns whose horizon has
// elapsed and evaluates each one independently.
func (b *PatternBuilder) EvaluatePending(ctx context.Context) (models.BuildReport, error) {
	return b.run(ctx, models.ModeEvaluate, func(r *models.BuildReport) error {
		before := b.now().Add(-models.Horizon)
		after := time.Unix(0, 0).UTC()
		for {
			if err := ctx.Err(); err != nil {
				return &BuildError{Op: "evaluate", Reason: "interrupted", Err: err}
			}
			page, err := b.patterns.UnevaluatedBefore(ctx, before, after, b.cfg.EvaluatePageSize)
			if err != nil {
				if r.Evaluated+r.Skipped+r.Errors == 0 {
					return &BuildError{Op: "evaluate", Reason: "cannot list unevaluated patterns", Err: err}
				}
				b.stepError(r, after, "list unevaluated", err)
				break
			}
			for i := range page {
				done, err := b.EvaluatePattern(ctx, &page[i])
				switch {
				case err != nil:
					b.stepError(r, page[i].CandleTime, "evaluate", err)
				case done:
					r.Evaluated++
				default:
					r.Skipped++
				}
			}
			if len(page) < b.cfg.EvaluatePageSize {
				break
			}
			after = page[len(page)-1].CandleTime
		}
		if r.Evaluated > 0 {
			b.reloadCache(ctx)
		}
		return nil
	})
}

// EvaluatePattern computes and stores the outcome of p and marks it evaluated
// in place. It is a no-op returning false for an evaluated pattern or when
// the future window is still incomplete.
func (b *PatternBuilder) EvaluatePattern(ctx context.Context, p *models.HistoricalPattern) (bool, error) {
	if p == nil || p.Evaluated {
		return false, nil
	}
	future, err := b.candles.CandlesBetween(ctx, p.CandleTime.Add(models.CandleInterval), p.CandleTime.Add(models.Horizon))
	if err != nil {
		return false, fmt.Errorf("load future candles: %w", err)
	}
	o, ok := ComputeOutcome(p.CandleTime, p.Price, future, b.cfg.MinFutureCandles)
	if !ok {
		return false, nil
	}
	next := p.WithOutcome(o)
	if err := b.patterns.Upsert(ctx, next); err != nil {
		return false, fmt.Errorf("store outcome: %w", err)
	}
	*p = next
	return true, nil
}

// BuildLatest builds the single pattern at t and appends it to the cache
// when its outcome is already known. A structural row left by a resume pass
// is evaluated in place instead.
func (b *PatternBuilder) BuildLatest(ctx context.Context, t time.Time) (models.BuildReport, error) {
	t = models.AlignTime(t)
	return b.run(ctx, models.ModeLatest, func(r *models.BuildReport) error {
		p, found, err := b.patterns.At(ctx, t)
		if err != nil {
			b.stepError(r, t, "load pattern", err)
			return nil
		}
		if found {
			done, err := b.EvaluatePattern(ctx, &p)
			switch {
			case err != nil:
				b.stepError(r, t, "evaluate", err)
				return nil
			case done:
				r.Evaluated++
			default:
				r.Skipped++
			}
		} else if p, found = b.step(ctx, t, r); !found {
			return nil
		}
		if p.Evaluated && b.cache.Append(p) {
			b.metrics.RecordCacheSize(b.cache.Len())
		}
		return nil
	})
}

// LoadCache fills the read cache from storage.
func (b *PatternBuilder) LoadCache(ctx context.Context) error {
	ps, err := b.patterns.EvaluatedSince(ctx, b.cache.Since())
	if err != nil {
		return fmt.Errorf("load evaluated patterns: %w", err)
	}
	b.cache.Replace(ps)
	b.metrics.RecordCacheSize(b.cache.Len())
	return nil
}

// reloadCache keeps the previous content when storage cannot be read.
func (b *PatternBuilder) reloadCache(ctx context.Context) {
	if err := b.LoadCache(ctx); err != nil {
		b.metrics.RecordError("pattern_cache_reload")
		b.logger.Warn("pattern cache reload failed", logger.Error(err))
	}
}

// Stats reports dataset counters and the cache size.
func (b *PatternBuilder) Stats(ctx context.Context) (models.PatternStats, error) {
	var s models.PatternStats
	var err error
	if s.Total, err = b.patterns.Count(ctx); err != nil {
		return s, fmt.Errorf("count patterns: %w", err)
	}
	if s.Evaluated, err = b.patterns.CountEvaluated(ctx); err != nil {
		return s, fmt.Errorf("count evaluated patterns: %w", err)
	}
	if t, ok, err := b.patterns.MaxCandleTime(ctx); err != nil {
		return s, fmt.Errorf("newest pattern: %w", err)
	} else if ok {
		s.MaxCandleTime = &t
	}
	if t, ok, err := b.patterns.MaxEvaluatedCandleTime(ctx); err != nil {
		return s, fmt.Errorf("newest evaluated pattern: %w", err)
	} else if ok {
		s.MaxEvaluatedTime = &t
	}
	s.CachedPatterns = b.cache.Len()
	s.CacheWindowStarted = b.cache.Since()
	return s, nil
}

// Cache exposes the read cache to evaluators.
func (b *PatternBuilder) Cache() *cache.PatternCache { return b.cache }
