package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	pkgch "FinPattern/pkg/clickhouse"
	applogger "FinPattern/pkg/logger"
)

var indicatorCols = []string{
	"time", "price", "ema50", "ema200", "rsi14", "macd_line", "signal_line", "macd_histogram",
	"volume_change_pct", "price_change_1h", "price_change_4h", "price_change_24h",
	"volume", "bb_upper", "bb_middle", "bb_lower", "atr14",
}

var indicatorInsertCols = append(append([]string{}, indicatorCols...), "version")

// CHIndicators implements IndicatorSource backed by ClickHouse.
type CHIndicators struct {
	t       chTable
	selectQ string
}

func NewCHIndicators(ch *pkgch.Client, l *applogger.Logger) *CHIndicators {
	return &CHIndicators{
		t:       newCHTable(ch.DB(), l, pkgch.TableIndicators),
		selectQ: fmt.Sprintf("SELECT %s FROM %s FINAL", strings.Join(indicatorCols, ", "), pkgch.TableIndicators),
	}
}

func (s *CHIndicators) RecentN(ctx context.Context, n int) ([]models.IndicatorRow, error) {
	return s.query(ctx, "recent_indicators", s.selectQ+" ORDER BY time DESC LIMIT ?", n)
}

func (s *CHIndicators) Between(ctx context.Context, start, end time.Time) ([]models.IndicatorRow, error) {
	return s.query(ctx, "indicators_between", s.selectQ+" WHERE time >= ? AND time <= ? ORDER BY time ASC", start.UTC(), end.UTC())
}

func (s *CHIndicators) At(ctx context.Context, t time.Time) (models.IndicatorRow, bool, error) {
	var r models.IndicatorRow
	err := s.t.db.QueryRowContext(ctx, s.selectQ+" WHERE time = ? LIMIT 1", t.UTC()).Scan(indicatorDest(&r)...)
	if errors.Is(err, sql.ErrNoRows) {
		return r, false, nil
	}
	if err != nil {
		return r, false, s.t.fail("indicator_at", err, applogger.Time("time", t))
	}
	r.Time = r.Time.UTC()
	return r, true, nil
}

func (s *CHIndicators) MaxTime(ctx context.Context) (time.Time, bool, error) {
	return s.t.bound(ctx, "max_indicator_time", "max", "time", "")
}

func (s *CHIndicators) Upsert(ctx context.Context, r models.IndicatorRow) error {
	row := []interface{}{
		r.Time.UTC(), r.Price, r.EMA50, r.EMA200, r.RSI14, r.MACDLine, r.SignalLine, r.MACDHistogram,
		r.VolumeChangePct, r.PriceChange1h, r.PriceChange4h, r.PriceChange24h,
		r.Volume, r.BBUpper, r.BBMiddle, r.BBLower, r.ATR14, version(),
	}
	return s.t.insert(ctx, "upsert_indicator", indicatorInsertCols, [][]interface{}{row})
}

func indicatorDest(r *models.IndicatorRow) []interface{} {
	return []interface{}{
		&r.Time, &r.Price, &r.EMA50, &r.EMA200, &r.RSI14, &r.MACDLine, &r.SignalLine, &r.MACDHistogram,
		&r.VolumeChangePct, &r.PriceChange1h, &r.PriceChange4h, &r.PriceChange24h,
		&r.Volume, &r.BBUpper, &r.BBMiddle, &r.BBLower, &r.ATR14,
	}
}

func (s *CHIndicators) query(ctx context.Context, op, q string, args ...interface{}) ([]models.IndicatorRow, error) {
	start := time.Now()
	rows, err := s.t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.t.fail(op, err)
	}
	defer rows.Close()

	var out []models.IndicatorRow
	for rows.Next() {
		var r models.IndicatorRow
		if err := rows.Scan(indicatorDest(&r)...); err != nil {
			return nil, s.t.fail(op+" scan", err)
		}
		r.Time = r.Time.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.t.fail(op+" rows", err)
	}
	s.t.ok(op, start, len(out))
	return out, nil
}

var _ domrepo.IndicatorSource = (*CHIndicators)(nil)
