package usecase

import (
	"context"
	"fmt"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	"FinPattern/pkg/logger"
)

// StrategyRecorder is the ledger side of the verification loop.
type StrategyRecorder interface {
	Record(ctx context.Context, id models.StrategyBucketID, o models.StrategyOutcome) (models.StrategyStats, bool, error)
	AcknowledgeDegradation(ctx context.Context, id models.StrategyBucketID) error
}

type SignalVerifierConfig struct {
	SuccessTargetPct float64
	MinFutureCandles int
	BatchSize        int
}

func DefaultSignalVerifierConfig() SignalVerifierConfig {
	return SignalVerifierConfig{SuccessTargetPct: 1.0, MinFutureCandles: 86, BatchSize: 200}
}

// VerifyReport summarises one verification pass.
type VerifyReport struct {
	Verified  int `json:"verified"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
	Alerts    int `json:"alerts"`
}

// SignalVerifier resolves emitted signals once their horizon has passed and
// feeds the result back into the strategy ledger.
type SignalVerifier struct {
	signals  domrepo.SignalRepository
	candles  domrepo.CandleSource
	ledger   StrategyRecorder
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	logger   *logger.Logger
	cfg      SignalVerifierConfig
	now      func() time.Time
}

type SignalVerifierOption func(*SignalVerifier)

func WithVerifierClock(now func() time.Time) SignalVerifierOption {
	return func(v *SignalVerifier) { v.now = now }
}

func NewSignalVerifier(
	signals domrepo.SignalRepository,
	candles domrepo.CandleSource,
	ledger StrategyRecorder,
	notifier domrepo.Notifier,
	metrics domrepo.Metrics,
	log *logger.Logger,
	cfg SignalVerifierConfig,
	opts ...SignalVerifierOption,
) *SignalVerifier {
	def := DefaultSignalVerifierConfig()
	if cfg.MinFutureCandles <= 0 || cfg.MinFutureCandles > models.HorizonCandles {
		cfg.MinFutureCandles = def.MinFutureCandles
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	v := &SignalVerifier{
		signals:  signals,
		candles:  candles,
		ledger:   ledger,
		notifier: notifier,
		metrics:  metrics,
		logger:   log,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyPending resolves every unverified signal whose 24h horizon ended.
// Signals with too few future candles stay pending for the next pass.
func (v *SignalVerifier) VerifyPending(ctx context.Context) (VerifyReport, error) {
	var rep VerifyReport
	recs, err := v.signals.UnverifiedBefore(ctx, v.now().Add(-models.Horizon), v.cfg.BatchSize)
	if err != nil {
		v.metrics.RecordError("verify_load")
		return rep, fmt.Errorf("load unverified signals: %w", err)
	}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		v.verify(ctx, rec, &rep)
	}
	if len(recs) > 0 {
		v.logger.Info("signals verified",
			logger.Int("verified", rep.Verified),
			logger.Int("successes", rep.Successes),
			logger.Int("pending", rep.Pending),
			logger.Int("errors", rep.Errors),
		)
	}
	return rep, nil
}

func (v *SignalVerifier) verify(ctx context.Context, rec models.SignalRecord, rep *VerifyReport) {
	future, err := v.candles.CandlesBetween(ctx, rec.CandleTime.Add(models.CandleInterval), rec.CandleTime.Add(models.Horizon))
	if err != nil {
		v.verifyError(rep, rec, err)
		return
	}
	o, ok := ComputeOutcome(rec.CandleTime, rec.EntryPrice, future, v.cfg.MinFutureCandles)
	if !ok {
		rep.Pending++
		return
	}
	success := o.MaxProfitPct24h >= v.cfg.SuccessTargetPct

	// marking first keeps a retried signal from being counted twice
	if err := v.signals.MarkVerified(ctx, rec.ID, success); err != nil {
		v.verifyError(rep, rec, err)
		return
	}
	profit := o.MaxProfitPct24h
	stats, alert, err := v.ledger.Record(ctx, rec.BucketID, models.StrategyOutcome{Success: success, ProfitPct: &profit})
	if err != nil {
		v.verifyError(rep, rec, err)
		return
	}
	rep.Verified++
	if success {
		rep.Successes++
	} else {
		rep.Failures++
	}
	if alert {
		rep.Alerts++
		v.alert(ctx, stats)
	}
}

func (v *SignalVerifier) alert(ctx context.Context, stats models.StrategyStats) {
	v.logger.Warn("strategy degraded",
		logger.String("bucket", string(stats.BucketID)),
		logger.Float64("weight", stats.Weight),
		logger.Float64("success_rate_pct", stats.SuccessRatePct),
	)
	if err := v.notifier.PublishDegradation(ctx, stats); err != nil {
		v.metrics.RecordError("degradation_publish")
		v.logger.Warn("publish degradation failed", logger.Error(err))
	}
	if err := v.ledger.AcknowledgeDegradation(ctx, stats.BucketID); err != nil {
		v.logger.Warn("acknowledge degradation failed", logger.String("bucket", string(stats.BucketID)), logger.Error(err))
	}
}

func (v *SignalVerifier) verifyError(rep *VerifyReport, rec models.SignalRecord, err error) {
	rep.Errors++
	v.metrics.RecordError("verify_signal")
	v.logger.Warn("verify signal failed", logger.String("id", rec.ID), logger.Error(err))
}
