package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	pkgch "FinPattern/pkg/clickhouse"
	applogger "FinPattern/pkg/logger"
)

var patternCols = []string{
	"candle_time", "strategy_bucket_id", "price", "ema50", "ema200", "rsi14", "macd_histogram",
	"volume_change_pct", "price_change_1h", "price_change_4h", "price_change_24h",
	"evaluated", "max_profit_pct_24h", "hours_to_max",
}

var patternInsertCols = append(append([]string{}, patternCols...), "version")

// CHPatterns implements PatternRepository. Upserts rely on
// ReplacingMergeTree(version) keyed on candle_time.
type CHPatterns struct {
	t       chTable
	selectQ string
}

func NewCHPatterns(ch *pkgch.Client, l *applogger.Logger) *CHPatterns {
	return &CHPatterns{
		t:       newCHTable(ch.DB(), l, pkgch.TablePatterns),
		selectQ: fmt.Sprintf("SELECT %s FROM %s FINAL", strings.Join(patternCols, ", "), pkgch.TablePatterns),
	}
}

func (s *CHPatterns) ExistsAt(ctx context.Context, t time.Time) (bool, error) {
	n, err := s.t.count(ctx, "pattern_exists", "candle_time = ?", t.UTC())
	return n > 0, err
}

func (s *CHPatterns) At(ctx context.Context, t time.Time) (models.HistoricalPattern, bool, error) {
	out, err := s.query(ctx, "pattern_at", s.selectQ+" WHERE candle_time = ? LIMIT 1", t.UTC())
	if err != nil || len(out) == 0 {
		return models.HistoricalPattern{}, false, err
	}
	return out[0], true, nil
}

func (s *CHPatterns) Upsert(ctx context.Context, p models.HistoricalPattern) error {
	row := []interface{}{
		p.CandleTime.UTC(), string(p.StrategyBucketID), p.Price, p.EMA50, p.EMA200, p.RSI14, p.MACDHistogram,
		p.VolumeChangePct, p.PriceChange1h, p.PriceChange4h, p.PriceChange24h,
		p.Evaluated, p.MaxProfitPct24h, p.HoursToMax, version(),
	}
	return s.t.insert(ctx, "upsert_pattern", patternInsertCols, [][]interface{}{row})
}

func (s *CHPatterns) DeleteAll(ctx context.Context) error {
	if _, err := s.t.db.ExecContext(ctx, "TRUNCATE TABLE IF EXISTS "+s.t.table); err != nil {
		return s.t.fail("delete_patterns", err)
	}
	s.t.l.Info("clickhouse patterns truncated", applogger.String("table", s.t.table))
	return nil
}

func (s *CHPatterns) ByStrategyBucket(ctx context.Context, id models.StrategyBucketID) ([]models.HistoricalPattern, error) {
	return s.query(ctx, "patterns_by_bucket", s.selectQ+" WHERE strategy_bucket_id = ? ORDER BY candle_time ASC", string(id))
}

func (s *CHPatterns) UnevaluatedBefore(ctx context.Context, before, after time.Time, limit int) ([]models.HistoricalPattern, error) {
	q := s.selectQ + " WHERE evaluated = false AND candle_time > ? AND candle_time <= ? ORDER BY candle_time ASC LIMIT ?"
	return s.query(ctx, "unevaluated_patterns", q, after.UTC(), before.UTC(), limit)
}

func (s *CHPatterns) EvaluatedSince(ctx context.Context, since time.Time) ([]models.HistoricalPattern, error) {
	return s.query(ctx, "evaluated_patterns", s.selectQ+" WHERE evaluated = true AND candle_time >= ? ORDER BY candle_time ASC", since.UTC())
}

func (s *CHPatterns) MaxCandleTime(ctx context.Context) (time.Time, bool, error) {
	return s.t.bound(ctx, "max_pattern_time", "max", "candle_time", "")
}

func (s *CHPatterns) MaxEvaluatedCandleTime(ctx context.Context) (time.Time, bool, error) {
	return s.t.bound(ctx, "max_evaluated_time", "max", "candle_time", "evaluated = true")
}

func (s *CHPatterns) Count(ctx context.Context) (int64, error) {
	return s.t.count(ctx, "count_patterns", "")
}

func (s *CHPatterns) CountEvaluated(ctx context.Context) (int64, error) {
	return s.t.count(ctx, "count_evaluated", "evaluated = true")
}

func (s *CHPatterns) query(ctx context.Context, op, q string, args ...interface{}) ([]models.HistoricalPattern, error) {
	start := time.Now()
	rows, err := s.t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.t.fail(op, err)
	}
	defer rows.Close()

	var out []models.HistoricalPattern
	for rows.Next() {
		var (
			p      models.HistoricalPattern
			bucket string
		)
		if err := rows.Scan(
			&p.CandleTime, &bucket, &p.Price, &p.EMA50, &p.EMA200, &p.RSI14, &p.MACDHistogram,
			&p.VolumeChangePct, &p.PriceChange1h, &p.PriceChange4h, &p.PriceChange24h,
			&p.Evaluated, &p.MaxProfitPct24h, &p.HoursToMax,
		); err != nil {
			return nil, s.t.fail(op+" scan", err)
		}
		p.CandleTime = p.CandleTime.UTC()
		p.StrategyBucketID = models.StrategyBucketID(bucket)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.t.fail(op+" rows", err)
	}
	s.t.ok(op, start, len(out))
	return out, nil
}

var _ domrepo.PatternRepository = (*CHPatterns)(nil)
