package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"FinPattern/internal/domain/models"
	"FinPattern/internal/domain/repository"
	"FinPattern/pkg/logger"
	"FinPattern/pkg/num"
)

// Weight maps a success rate and sample count to the adaptive bucket weight.
// A bucket with no predictions keeps the default weight.
func Weight(successRatePct float64, total int) float64 {
	if total <= 0 {
		return models.DefaultStrategyWeight
	}
	w := 0.1 + successRatePct/100*math.Log(float64(total+1))
	return num.Round4(num.Clamp(w, models.MinStrategyWeight, models.MaxStrategyWeight))
}

// IsDegraded reports whether the weight sits at the floor.
func IsDegraded(s models.StrategyStats) bool {
	return s.TotalPredictions > 0 && s.Weight <= models.MinStrategyWeight
}

// NeedsAlert is true once per degradation until it is acknowledged.
func NeedsAlert(s models.StrategyStats) bool {
	return IsDegraded(s) && !s.DegradationAlerted
}

// Apply folds one outcome into prev and returns the new stats.
func Apply(prev models.StrategyStats, o models.StrategyOutcome, at time.Time) models.StrategyStats {
	next := prev
	next.TotalPredictions++
	if o.Success {
		next.Successes++
		next.Score++
	} else {
		next.Failures++
		next.Score--
	}
	if o.ProfitPct != nil {
		// running mean over outcomes that carried a profit figure
		n := float64(prev.ProfitSamples)
		next.ProfitSamples++
		next.AvgProfitPct = num.Round4((prev.AvgProfitPct*n + *o.ProfitPct) / (n + 1))
	}
	next.SuccessRatePct = num.Round2(float64(next.Successes) / float64(next.TotalPredictions) * 100)
	next.Weight = Weight(next.SuccessRatePct, next.TotalPredictions)
	if !IsDegraded(next) {
		next.DegradationAlerted = false
	}
	next.LastUpdated = at
	return next
}

// Ledger serializes read-modify-write per bucket on top of the stats repository.
type Ledger struct {
	repo   repository.StrategyStatsRepository
	logger *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[models.StrategyBucketID]*sync.Mutex
}

type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(repo repository.StrategyStatsRepository, log *logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		repo:   repo,
		logger: log,
		now:    time.Now,
		locks:  make(map[models.StrategyBucketID]*sync.Mutex),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) lock(id models.StrategyBucketID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// RecordSuccess records a successful prediction for the bucket.
func (l *Ledger) RecordSuccess(ctx context.Context, id models.StrategyBucketID, profitPct *float64) (models.StrategyStats, bool, error) {
	return l.Record(ctx, id, models.StrategyOutcome{Success: true, ProfitPct: profitPct})
}

// RecordFailure records a failed prediction for the bucket.
func (l *Ledger) RecordFailure(ctx context.Context, id models.StrategyBucketID, profitPct *float64) (models.StrategyStats, bool, error) {
	return l.Record(ctx, id, models.StrategyOutcome{Success: false, ProfitPct: profitPct})
}

// Record applies one outcome atomically for the bucket. The returned flag
// is true when the bucket just degraded and has not been alerted yet.
func (l *Ledger) Record(ctx context.Context, id models.StrategyBucketID, o models.StrategyOutcome) (models.StrategyStats, bool, error) {
	unlock := l.lock(id)
	defer unlock()

	prev, err := l.repo.GetOrCreate(ctx, id)
	if err != nil {
		return models.StrategyStats{}, false, fmt.Errorf("load stats %s: %w", id, err)
	}
	next := Apply(prev, o, l.now())
	if err := l.repo.Save(ctx, next); err != nil {
		return models.StrategyStats{}, false, fmt.Errorf("save stats %s: %w", id, err)
	}
	l.logger.Debug("strategy outcome recorded",
		logger.String("bucket", string(id)),
		logger.Bool("success", o.Success),
		logger.Float64("weight", next.Weight),
		logger.Int("total", next.TotalPredictions),
	)
	return next, NeedsAlert(next), nil
}

// AcknowledgeDegradation marks the current degradation as alerted.
func (l *Ledger) AcknowledgeDegradation(ctx context.Context, id models.StrategyBucketID) error {
	unlock := l.lock(id)
	defer unlock()

	s, err := l.repo.GetOrCreate(ctx, id)
	if err != nil {
		return fmt.Errorf("load stats %s: %w", id, err)
	}
	if !IsDegraded(s) || s.DegradationAlerted {
		return nil
	}
	s.DegradationAlerted = true
	if err := l.repo.Save(ctx, s); err != nil {
		return fmt.Errorf("save stats %s: %w", id, err)
	}
	return nil
}

// Weights returns the current weight of every known bucket.
// Buckets missing from the result use models.DefaultStrategyWeight.
func (l *Ledger) Weights(ctx context.Context) (map[models.StrategyBucketID]float64, error) {
	all, err := l.repo.AllOrderedBySuccessRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load strategy stats: %w", err)
	}
	out := make(map[models.StrategyBucketID]float64, len(all))
	for _, s := range all {
		if s.TotalPredictions == 0 {
			out[s.BucketID] = models.DefaultStrategyWeight
			continue
		}
		out[s.BucketID] = s.Weight
	}
	return out, nil
}

// Ranking returns all stats ordered by success rate.
func (l *Ledger) Ranking(ctx context.Context) ([]models.StrategyStats, error) {
	return l.repo.AllOrderedBySuccessRate(ctx)
}
