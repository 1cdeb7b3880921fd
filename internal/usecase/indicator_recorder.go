package usecase

import (
	"context"
	"fmt"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	"FinPattern/internal/service/buildgate"
	"FinPattern/internal/services/features"
	"FinPattern/pkg/logger"
)

// IndicatorRecorder keeps the indicator history in step with the candle series.
type IndicatorRecorder struct {
	pipeline
	candles    domrepo.CandleSource
	indicators domrepo.IndicatorSource
	lookback   int
}

func NewIndicatorRecorder(
	candles domrepo.CandleSource,
	indicators domrepo.IndicatorSource,
	gate buildgate.Gate,
	metrics domrepo.Metrics,
	log *logger.Logger,
	lookback int,
) *IndicatorRecorder {
	if lookback < features.MinWindow {
		lookback = DefaultPatternBuilderConfig().LookbackCandles
	}
	return &IndicatorRecorder{
		pipeline:   newPipeline(gate, metrics, log),
		candles:    candles,
		indicators: indicators,
		lookback:   lookback,
	}
}

// RecordAt computes and stores the indicator row of the candle at t.
// ok is false when the candle is missing or the window is too short.
func (r *IndicatorRecorder) RecordAt(ctx context.Context, t time.Time) (models.IndicatorRow, bool, error) {
	desc, err := r.candles.LastNCandlesBefore(ctx, t, r.lookback)
	if err != nil {
		return models.IndicatorRow{}, false, fmt.Errorf("load candles: %w", err)
	}
	if len(desc) == 0 || !desc[0].OpenTime.Equal(t) {
		return models.IndicatorRow{}, false, nil
	}
	window := make([]models.Candle, len(desc))
	for i, c := range desc {
		window[len(desc)-1-i] = c
	}
	row, ok := features.ExtractRow(window)
	if !ok {
		return models.IndicatorRow{}, false, nil
	}
	if err := r.indicators.Upsert(ctx, row); err != nil {
		return models.IndicatorRow{}, false, fmt.Errorf("store indicators: %w", err)
	}
	return row, true, nil
}

// RecordLatest records the row of the newest candle.
func (r *IndicatorRecorder) RecordLatest(ctx context.Context) (models.IndicatorRow, bool, error) {
	t, ok, err := r.candles.MaxOpenTime(ctx)
	if err != nil {
		return models.IndicatorRow{}, false, fmt.Errorf("newest candle: %w", err)
	}
	if !ok {
		return models.IndicatorRow{}, false, nil
	}
	return r.RecordAt(ctx, t)
}

// Backfill records every missing row from from up to the newest candle.
// It shares the dataset gate with the pattern builder.
func (r *IndicatorRecorder) Backfill(ctx context.Context, from time.Time) (models.BuildReport, error) {
	return r.run(ctx, models.ModeBackfill, func(rep *models.BuildReport) error {
		minT, hasMin, err := r.candles.MinOpenTime(ctx)
		if err != nil {
			return &BuildError{Op: "indicator backfill", Reason: "cannot determine candle time bounds", Err: err}
		}
		maxT, hasMax, err := r.candles.MaxOpenTime(ctx)
		if err != nil {
			return &BuildError{Op: "indicator backfill", Reason: "cannot determine candle time bounds", Err: err}
		}
		if !hasMin || !hasMax {
			rep.Reason = "no candles"
			return nil
		}
		first := minT.Add(time.Duration(features.MinWindow-1) * models.CandleInterval)
		if from = models.AlignTime(from); from.After(first) {
			first = from
		}
		for t := first; !t.After(maxT); t = t.Add(models.CandleInterval) {
			if err := ctx.Err(); err != nil {
				return &BuildError{Op: "indicator backfill", Reason: "interrupted", Err: err}
			}
			if _, found, err := r.indicators.At(ctx, t); err != nil {
				r.backfillError(rep, t, err)
				continue
			} else if found {
				rep.Skipped++
				continue
			}
			if _, ok, err := r.RecordAt(ctx, t); err != nil {
				r.backfillError(rep, t, err)
			} else if ok {
				rep.Built++
			} else {
				rep.Skipped++
			}
		}
		return nil
	})
}

func (r *IndicatorRecorder) backfillError(rep *models.BuildReport, t time.Time, err error) {
	rep.Errors++
	r.metrics.RecordError("indicator_step")
	r.logger.Warn("indicator step failed", logger.Time("candle_time", t), logger.Error(err))
}
