package repository

import (
	"context"
	"time"

	"FinPattern/internal/domain/models"
)

// CandleSource provides access to the closed 15-minute candle series.
// Bound queries return (zero, false, nil) when the series is empty.
type CandleSource interface {
	MinOpenTime(ctx context.Context) (time.Time, bool, error)
	MaxOpenTime(ctx context.Context) (time.Time, bool, error)
	// CandlesBetween returns candles with start <= openTime <= end, ascending.
	CandlesBetween(ctx context.Context, start, end time.Time) ([]models.Candle, error)
	// LastNCandlesBefore returns up to n candles with openTime <= t, descending.
	LastNCandlesBefore(ctx context.Context, t time.Time, n int) ([]models.Candle, error)
	CandleAt(ctx context.Context, t time.Time) (models.Candle, bool, error)
	Count(ctx context.Context) (int64, error)
	UpsertCandles(ctx context.Context, candles []models.Candle) error
}

// IndicatorSource holds precomputed per-candle indicator rows.
type IndicatorSource interface {
	// RecentN returns the newest n rows, descending.
	RecentN(ctx context.Context, n int) ([]models.IndicatorRow, error)
	// Between returns rows with start <= time <= end, ascending.
	Between(ctx context.Context, start, end time.Time) ([]models.IndicatorRow, error)
	At(ctx context.Context, t time.Time) (models.IndicatorRow, bool, error)
	MaxTime(ctx context.Context) (time.Time, bool, error)
	Upsert(ctx context.Context, row models.IndicatorRow) error
}
