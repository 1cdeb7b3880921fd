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

var signalCols = []string{
	"id", "candle_time", "bucket_id", "final_probability", "entry_price",
	"verified", "success", "created_at", "version",
}

const signalSelect = `
        SELECT id, candle_time, bucket_id, final_probability, entry_price, verified, success, created_at
        FROM %s FINAL`

// CHSignals implements SignalRepository. MarkVerified writes a newer
// version of the row.
type CHSignals struct {
	t chTable
}

func NewCHSignals(ch *pkgch.Client, l *applogger.Logger) *CHSignals {
	return &CHSignals{t: newCHTable(ch.DB(), l, pkgch.TableSignals)}
}

func (s *CHSignals) Save(ctx context.Context, r models.SignalRecord) error {
	return s.t.insert(ctx, "save_signal", signalCols, [][]interface{}{signalRow(r)})
}

func (s *CHSignals) UnverifiedBefore(ctx context.Context, t time.Time, limit int) ([]models.SignalRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(signalSelect+" WHERE verified = false AND candle_time <= ? ORDER BY candle_time ASC LIMIT ?", s.t.table)
	rows, err := s.t.db.QueryContext(ctx, q, t.UTC(), limit)
	if err != nil {
		return nil, s.t.fail("unverified_signals", err)
	}
	defer rows.Close()

	var out []models.SignalRecord
	for rows.Next() {
		r, err := scanSignal(rows)
		if err != nil {
			return nil, s.t.fail("unverified_signals scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.t.fail("unverified_signals rows", err)
	}
	s.t.ok("unverified_signals", start, len(out))
	return out, nil
}

func (s *CHSignals) MarkVerified(ctx context.Context, id string, success bool) error {
	q := fmt.Sprintf(signalSelect+" WHERE id = ? LIMIT 1", s.t.table)
	r, err := scanSignal(s.t.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domrepo.ErrNotFound
	}
	if err != nil {
		return s.t.fail("mark_verified", err, applogger.String("id", id))
	}
	r.Verified, r.Success = true, success
	return s.t.insert(ctx, "mark_verified", signalCols, [][]interface{}{signalRow(r)})
}

func signalRow(r models.SignalRecord) []interface{} {
	return []interface{}{
		r.ID, r.CandleTime.UTC(), string(r.BucketID), r.FinalProbability, r.EntryPrice,
		r.Verified, r.Success, r.CreatedAt.UTC(), version(),
	}
}

func scanSignal(sc rowScanner) (models.SignalRecord, error) {
	var (
		r      models.SignalRecord
		bucket string
	)
	err := sc.Scan(&r.ID, &r.CandleTime, &bucket, &r.FinalProbability, &r.EntryPrice, &r.Verified, &r.Success, &r.CreatedAt)
	r.BucketID = models.StrategyBucketID(bucket)
	r.CandleTime, r.CreatedAt = r.CandleTime.UTC(), r.CreatedAt.UTC()
	return r, err
}

var _ domrepo.SignalRepository = (*CHSignals)(nil)
