package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	"FinPattern/internal/services/regime"
	"FinPattern/pkg/logger"
)

// RegimeMonitor runs full regime detection and keeps the observation log.
type RegimeMonitor struct {
	candles    domrepo.CandleSource
	indicators domrepo.IndicatorSource
	regimes    domrepo.RegimeRepository
	notifier   domrepo.Notifier
	metrics    domrepo.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

func NewRegimeMonitor(
	candles domrepo.CandleSource,
	indicators domrepo.IndicatorSource,
	regimes domrepo.RegimeRepository,
	notifier domrepo.Notifier,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *RegimeMonitor {
	return &RegimeMonitor{
		candles:    candles,
		indicators: indicators,
		regimes:    regimes,
		notifier:   notifier,
		metrics:    metrics,
		logger:     log,
		now:        time.Now,
	}
}

// Detect classifies the last day of candles, appends the observation and
// announces a change of regime. ok is false without a full window.
func (m *RegimeMonitor) Detect(ctx context.Context) (models.RegimeObservation, bool, error) {
	newest, found, err := m.candles.MaxOpenTime(ctx)
	if err != nil {
		return models.RegimeObservation{}, false, fmt.Errorf("newest candle: %w", err)
	}
	if !found {
		return models.RegimeObservation{}, false, nil
	}
	desc, err := m.candles.LastNCandlesBefore(ctx, newest, regime.WindowCandles)
	if err != nil {
		return models.RegimeObservation{}, false, fmt.Errorf("load candles: %w", err)
	}
	if len(desc) < regime.WindowCandles {
		return models.RegimeObservation{}, false, nil
	}
	window := make([]models.Candle, len(desc))
	for i, c := range desc {
		window[len(desc)-1-i] = c
	}
	rows, err := m.indicators.Between(ctx, window[0].OpenTime, newest)
	if err != nil {
		return models.RegimeObservation{}, false, fmt.Errorf("load indicators: %w", err)
	}
	res, ok := regime.DetectFull(window, rows)
	if !ok {
		return models.RegimeObservation{}, false, nil
	}

	obs := models.RegimeObservation{
		ID:                uuid.NewString(),
		Timestamp:         m.now(),
		Regime:            res.Regime,
		Confidence:        res.Confidence,
		MatchedConditions: res.MatchedConditions,
		TotalConditions:   res.TotalConditions,
		Mode:              res.Mode,
	}
	prev, hasPrev, err := m.regimes.MostRecent(ctx)
	if err != nil {
		m.logger.Warn("previous regime unavailable", logger.Error(err))
		hasPrev = false
	}
	if err := m.regimes.Append(ctx, obs); err != nil {
		m.metrics.RecordError("regime_append")
		return obs, false, fmt.Errorf("append regime: %w", err)
	}
	m.metrics.RecordRegime(string(obs.Regime), obs.Confidence)

	if hasPrev && prev.Regime != obs.Regime {
		m.logger.Info("market regime changed",
			logger.String("from", string(prev.Regime)),
			logger.String("to", string(obs.Regime)),
			logger.Float64("confidence", obs.Confidence),
		)
		if err := m.notifier.PublishRegimeChange(ctx, prev, obs); err != nil {
			m.metrics.RecordError("regime_publish")
			m.logger.Warn("publish regime change failed", logger.Error(err))
		}
	}
	return obs, true, nil
}

// Latest returns the newest stored observation.
func (m *RegimeMonitor) Latest(ctx context.Context) (models.RegimeObservation, bool, error) {
	return m.regimes.MostRecent(ctx)
}

// History returns up to n observations, newest first.
func (m *RegimeMonitor) History(ctx context.Context, n int) ([]models.RegimeObservation, error) {
	if n <= 0 {
		n = 96
	}
	return m.regimes.RecentN(ctx, n)
}
