package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	"FinPattern/internal/service/cache"
	"FinPattern/internal/services/features"
	"FinPattern/internal/services/probability"
	"FinPattern/internal/services/regime"
	"FinPattern/pkg/logger"
)

const latestSignalKey = "signal:latest"

type SignalServiceConfig struct {
	Threshold     float64
	HistoryWindow int
	Lookback      int
	ResultTTL     time.Duration
	Timeout       time.Duration
}

func DefaultSignalServiceConfig() SignalServiceConfig {
	return SignalServiceConfig{
		Threshold:     60,
		HistoryWindow: 24,
		Lookback:      200,
		ResultTTL:     15 * time.Minute,
		Timeout:       10 * time.Second,
	}
}

// WeightSource supplies the adaptive per-bucket weights.
type WeightSource interface {
	Weights(ctx context.Context) (map[models.StrategyBucketID]float64, error)
}

// SignalBroadcaster pushes a result to live subscribers.
type SignalBroadcaster interface {
	Broadcast(v any)
}

// SignalService scores the newest market state against the pattern cache.
type SignalService struct {
	candles    domrepo.CandleSource
	indicators domrepo.IndicatorSource
	patterns   *cache.PatternCache
	results    cache.BytesCache
	engine     *probability.Engine
	weights    WeightSource
	signals    domrepo.SignalRepository
	notifier   domrepo.Notifier
	hub        SignalBroadcaster
	metrics    domrepo.Metrics
	logger     *logger.Logger
	cfg        SignalServiceConfig
	now        func() time.Time

	mu         sync.Mutex // serializes emit
	lastSignal time.Time
}

type SignalServiceOption func(*SignalService)

func WithSignalClock(now func() time.Time) SignalServiceOption {
	return func(s *SignalService) { s.now = now }
}

// WithBroadcaster attaches the websocket hub.
func WithBroadcaster(hub SignalBroadcaster) SignalServiceOption {
	return func(s *SignalService) { s.hub = hub }
}

func NewSignalService(
	candles domrepo.CandleSource,
	indicators domrepo.IndicatorSource,
	patterns *cache.PatternCache,
	results cache.BytesCache,
	engine *probability.Engine,
	weights WeightSource,
	signals domrepo.SignalRepository,
	notifier domrepo.Notifier,
	metrics domrepo.Metrics,
	log *logger.Logger,
	cfg SignalServiceConfig,
	opts ...SignalServiceOption,
) *SignalService {
	def := DefaultSignalServiceConfig()
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.Lookback < features.MinWindow {
		cfg.Lookback = def.Lookback
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	s := &SignalService{
		candles:    candles,
		indicators: indicators,
		patterns:   patterns,
		results:    results,
		engine:     engine,
		weights:    weights,
		signals:    signals,
		notifier:   notifier,
		metrics:    metrics,
		logger:     log,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type liveInputs struct {
	snapshot models.Snapshot
	history  []models.IndicatorRow
	weights  map[models.StrategyBucketID]float64
}

// inputs loads the live snapshot, its indicator history and the ledger
// weights. ok is false while there is not enough data for a snapshot.
func (s *SignalService) inputs(ctx context.Context) (liveInputs, bool, error) {
	var (
		in     liveInputs
		rows   []models.IndicatorRow
		newest time.Time
		hasAny bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if rows, err = s.indicators.RecentN(gctx, s.cfg.HistoryWindow); err != nil {
			return fmt.Errorf("recent indicators: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if newest, hasAny, err = s.candles.MaxOpenTime(gctx); err != nil {
			return fmt.Errorf("newest candle: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		w, err := s.weights.Weights(gctx)
		if err != nil {
			// unknown buckets fall back to the default weight
			s.logger.Warn("strategy weights unavailable", logger.Error(err))
			return nil
		}
		in.weights = w
		return nil
	})
	if err := g.Wait(); err != nil {
		return in, false, err
	}
	if !hasAny {
		return in, false, nil
	}

	if len(rows) > 0 && rows[0].Time.Equal(newest) {
		in.snapshot = rows[0].Snapshot
	} else {
		desc, err := s.candles.LastNCandlesBefore(ctx, newest, s.cfg.Lookback)
		if err != nil {
			return in, false, fmt.Errorf("load candles: %w", err)
		}
		window := make([]models.Candle, len(desc))
		for i, c := range desc {
			window[len(desc)-1-i] = c
		}
		snap, ok := features.Extract(window)
		if !ok {
			return in, false, nil
		}
		in.snapshot = snap
	}

	in.history = make([]models.IndicatorRow, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].Time.After(in.snapshot.Time) {
			in.history = append(in.history, rows[i])
		}
	}
	return in, true, nil
}

func (s *SignalService) evalContext(in liveInputs) probability.Context {
	return probability.Context{
		Regime:  regime.DetectLight(in.snapshot),
		Weights: in.weights,
		History: in.history,
	}
}

// Evaluate runs the multi-strategy query for the newest candle, caches the
// result and emits a signal when the best bucket clears the threshold.
func (s *SignalService) Evaluate(ctx context.Context) (models.MultiStrategyResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := s.now()
	in, ok, err := s.inputs(ctx)
	if err != nil {
		s.metrics.RecordError("signal_inputs")
		return models.MultiStrategyResult{}, false, err
	}
	if !ok {
		return models.MultiStrategyResult{}, false, nil
	}

	ec := s.evalContext(in)
	var res models.MultiStrategyResult
	s.patterns.View(func(ps []models.HistoricalPattern) {
		res = s.engine.Multi(in.snapshot, ps, ec)
	})
	for _, r := range res.Results {
		s.metrics.RecordProbability(string(r.BucketID), r.FinalProbability)
	}
	s.metrics.RecordLatency("signal_evaluate_seconds", s.now().Sub(start).Seconds())

	s.storeLatest(ctx, res)
	s.emit(ctx, res)
	return res, true, nil
}

// EvaluateSingle runs the single-strategy query for the newest candle.
func (s *SignalService) EvaluateSingle(ctx context.Context) (models.EvaluationResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	in, ok, err := s.inputs(ctx)
	if err != nil {
		s.metrics.RecordError("signal_inputs")
		return models.EvaluationResult{}, false, err
	}
	if !ok {
		return models.EvaluationResult{}, false, nil
	}
	var (
		res   models.EvaluationResult
		found bool
	)
	ec := s.evalContext(in)
	s.patterns.View(func(ps []models.HistoricalPattern) {
		res, found = s.engine.Single(in.snapshot, ps, ec)
	})
	if found {
		s.metrics.RecordProbability(string(res.BucketID), res.FinalProbability)
	}
	return res, found, nil
}

// Latest returns the most recent cached multi-strategy result.
func (s *SignalService) Latest(ctx context.Context) (models.MultiStrategyResult, bool, error) {
	var res models.MultiStrategyResult
	b, ok, err := s.results.GetBytes(ctx, latestSignalKey)
	if err != nil || !ok {
		return res, false, err
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return res, false, fmt.Errorf("decode cached signal: %w", err)
	}
	return res, true, nil
}

func (s *SignalService) storeLatest(ctx context.Context, res models.MultiStrategyResult) {
	b, err := json.Marshal(res)
	if err == nil {
		err = s.results.SetBytes(ctx, latestSignalKey, b, s.cfg.ResultTTL)
	}
	if err != nil {
		s.metrics.RecordError("signal_cache")
		s.logger.Warn("cache signal failed", logger.Error(err))
	}
}

// emit persists and publishes the best result at most once per candle. A
// candle whose record could not be saved is retried on the next evaluation.
func (s *SignalService) emit(ctx context.Context, res models.MultiStrategyResult) {
	if res.Best == nil || res.Best.FinalProbability < s.cfg.Threshold {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !res.Time.After(s.lastSignal) {
		return
	}

	rec := models.SignalRecord{
		ID:               uuid.NewString(),
		CandleTime:       res.Time,
		BucketID:         res.Best.BucketID,
		FinalProbability: res.Best.FinalProbability,
		EntryPrice:       res.Snapshot.Price,
		CreatedAt:        s.now(),
	}
	if err := s.signals.Save(ctx, rec); err != nil {
		s.metrics.RecordError("signal_save")
		s.logger.Error("save signal failed", logger.String("bucket", string(rec.BucketID)), logger.Error(err))
		return
	}
	s.lastSignal = res.Time
	if err := s.notifier.PublishSignal(ctx, res); err != nil {
		s.metrics.RecordError("signal_publish")
		s.logger.Warn("publish signal failed", logger.Error(err))
	}
	if s.hub != nil {
		s.hub.Broadcast(res)
	}
	s.logger.Info("signal emitted",
		logger.String("bucket", string(rec.BucketID)),
		logger.Float64("final_probability", rec.FinalProbability),
		logger.Time("candle_time", rec.CandleTime),
	)
}
