package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	pkgch "FinPattern/pkg/clickhouse"
	applogger "FinPattern/pkg/logger"
)

var candleCols = []string{"open_time", "open", "high", "low", "close", "volume", "version"}

const candleSelect = "SELECT open_time, open, high, low, close, volume FROM %s FINAL"

// CHCandles implements CandleSource backed by ClickHouse.
type CHCandles struct {
	t chTable
}

func NewCHCandles(ch *pkgch.Client, l *applogger.Logger) *CHCandles {
	return &CHCandles{t: newCHTable(ch.DB(), l, pkgch.TableCandles)}
}

func (s *CHCandles) MinOpenTime(ctx context.Context) (time.Time, bool, error) {
	return s.t.bound(ctx, "min_open_time", "min", "open_time", "")
}

func (s *CHCandles) MaxOpenTime(ctx context.Context) (time.Time, bool, error) {
	return s.t.bound(ctx, "max_open_time", "max", "open_time", "")
}

func (s *CHCandles) CandlesBetween(ctx context.Context, start, end time.Time) ([]models.Candle, error) {
	q := fmt.Sprintf(candleSelect+" WHERE open_time >= ? AND open_time <= ? ORDER BY open_time ASC", s.t.table)
	return s.query(ctx, "candles_between", q, start.UTC(), end.UTC())
}

func (s *CHCandles) LastNCandlesBefore(ctx context.Context, t time.Time, n int) ([]models.Candle, error) {
	q := fmt.Sprintf(candleSelect+" WHERE open_time <= ? ORDER BY open_time DESC LIMIT ?", s.t.table)
	return s.query(ctx, "last_n_candles", q, t.UTC(), n)
}

func (s *CHCandles) CandleAt(ctx context.Context, t time.Time) (models.Candle, bool, error) {
	q := fmt.Sprintf(candleSelect+" WHERE open_time = ? LIMIT 1", s.t.table)
	var c models.Candle
	err := s.t.db.QueryRowContext(ctx, q, t.UTC()).Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return c, false, s.t.fail("candle_at", err, applogger.Time("open_time", t))
	}
	c.OpenTime = c.OpenTime.UTC()
	return c, true, nil
}

func (s *CHCandles) Count(ctx context.Context) (int64, error) {
	return s.t.count(ctx, "count_candles", "")
}

func (s *CHCandles) UpsertCandles(ctx context.Context, candles []models.Candle) error {
	v := version()
	rows := make([][]interface{}, len(candles))
	for i, c := range candles {
		rows[i] = []interface{}{c.OpenTime.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume, v}
	}
	return s.t.insert(ctx, "upsert_candles", candleCols, rows)
}

func (s *CHCandles) query(ctx context.Context, op, q string, args ...interface{}) ([]models.Candle, error) {
	start := time.Now()
	rows, err := s.t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.t.fail(op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, s.t.fail(op+" scan", err)
		}
		c.OpenTime = c.OpenTime.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.t.fail(op+" rows", err)
	}
	s.t.ok(op, start, len(out))
	return out, nil
}

var _ domrepo.CandleSource = (*CHCandles)(nil)
