package repository

import (
	"context"
	"fmt"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	pkgch "FinPattern/pkg/clickhouse"
	applogger "FinPattern/pkg/logger"
)

var regimeCols = []string{"id", "timestamp", "regime", "confidence", "matched_conditions", "total_conditions", "mode"}

const regimeSelect = "SELECT id, timestamp, regime, confidence, matched_conditions, total_conditions, mode FROM %s"

// CHRegimes implements RegimeRepository. The table is append-only.
type CHRegimes struct {
	t chTable
}

func NewCHRegimes(ch *pkgch.Client, l *applogger.Logger) *CHRegimes {
	return &CHRegimes{t: newCHTable(ch.DB(), l, pkgch.TableRegimes)}
}

func (s *CHRegimes) Append(ctx context.Context, o models.RegimeObservation) error {
	row := []interface{}{
		o.ID, o.Timestamp.UTC(), string(o.Regime), o.Confidence,
		uint8(o.MatchedConditions), uint8(o.TotalConditions), string(o.Mode),
	}
	return s.t.insert(ctx, "append_regime", regimeCols, [][]interface{}{row})
}

func (s *CHRegimes) MostRecent(ctx context.Context) (models.RegimeObservation, bool, error) {
	out, err := s.RecentN(ctx, 1)
	if err != nil || len(out) == 0 {
		return models.RegimeObservation{}, false, err
	}
	return out[0], true, nil
}

// RecentN returns the newest n observations, newest first.
func (s *CHRegimes) RecentN(ctx context.Context, n int) ([]models.RegimeObservation, error) {
	q := fmt.Sprintf(regimeSelect+" ORDER BY timestamp DESC, id DESC LIMIT ?", s.t.table)
	return s.query(ctx, "recent_regimes", q, n)
}

func (s *CHRegimes) Between(ctx context.Context, start, end time.Time) ([]models.RegimeObservation, error) {
	q := fmt.Sprintf(regimeSelect+" WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC", s.t.table)
	return s.query(ctx, "regimes_between", q, start.UTC(), end.UTC())
}

func (s *CHRegimes) query(ctx context.Context, op, q string, args ...interface{}) ([]models.RegimeObservation, error) {
	start := time.Now()
	rows, err := s.t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.t.fail(op, err)
	}
	defer rows.Close()

	var out []models.RegimeObservation
	for rows.Next() {
		var (
			o               models.RegimeObservation
			regime, mode    string
			matched, totalC uint8
		)
		if err := rows.Scan(&o.ID, &o.Timestamp, &regime, &o.Confidence, &matched, &totalC, &mode); err != nil {
			return nil, s.t.fail(op+" scan", err)
		}
		o.Timestamp = o.Timestamp.UTC()
		o.Regime = models.MarketRegime(regime)
		o.Mode = models.DetectionMode(mode)
		o.MatchedConditions, o.TotalConditions = int(matched), int(totalC)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, s.t.fail(op+" rows", err)
	}
	s.t.ok(op, start, len(out))
	return out, nil
}

var _ domrepo.RegimeRepository = (*CHRegimes)(nil)
