package repository

import (
	"context"
	"errors"
	"time"

	"FinPattern/internal/domain/models"
)

// ErrNotFound is returned by single-record lookups that find nothing.
var ErrNotFound = errors.New("not found")

type PatternRepository interface {
	ExistsAt(ctx context.Context, t time.Time) (bool, error)
	At(ctx context.Context, t time.Time) (models.HistoricalPattern, bool, error)
	Upsert(ctx context.Context, p models.HistoricalPattern) error
	DeleteAll(ctx context.Context) error
	ByStrategyBucket(ctx context.Context, id models.StrategyBucketID) ([]models.HistoricalPattern, error)
	// UnevaluatedBefore pages through unevaluated patterns with after < candleTime <= before, ascending.
	UnevaluatedBefore(ctx context.Context, before, after time.Time, limit int) ([]models.HistoricalPattern, error)
	// EvaluatedSince returns evaluated patterns with candleTime >= since, ascending.
	EvaluatedSince(ctx context.Context, since time.Time) ([]models.HistoricalPattern, error)
	MaxCandleTime(ctx context.Context) (time.Time, bool, error)
	MaxEvaluatedCandleTime(ctx context.Context) (time.Time, bool, error)
	Count(ctx context.Context) (int64, error)
	CountEvaluated(ctx context.Context) (int64, error)
}

type StrategyStatsRepository interface {
	GetOrCreate(ctx context.Context, id models.StrategyBucketID) (models.StrategyStats, error)
	Save(ctx context.Context, s models.StrategyStats) error
	AllOrderedBySuccessRate(ctx context.Context) ([]models.StrategyStats, error)
}

type RegimeRepository interface {
	Append(ctx context.Context, o models.RegimeObservation) error
	MostRecent(ctx context.Context) (models.RegimeObservation, bool, error)
	RecentN(ctx context.Context, n int) ([]models.RegimeObservation, error)
	Between(ctx context.Context, start, end time.Time) ([]models.RegimeObservation, error)
}

type SignalRepository interface {
	Save(ctx context.Context, s models.SignalRecord) error
	UnverifiedBefore(ctx context.Context, t time.Time, limit int) ([]models.SignalRecord, error)
	MarkVerified(ctx context.Context, id string, success bool) error
}

// Notifier delivers advisory side-channel events. Callers log failures and move on.
type Notifier interface {
	PublishSignal(ctx context.Context, r models.MultiStrategyResult) error
	PublishDegradation(ctx context.Context, s models.StrategyStats) error
	PublishRegimeChange(ctx context.Context, prev, cur models.RegimeObservation) error
}

type Metrics interface {
	RecordBuild(mode, status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordProbability(bucket string, value float64)
	RecordRegime(regime string, confidence float64)
	RecordCacheSize(n int)
}
