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

const strategySelect = `
        SELECT bucket_id, total_predictions, successes, failures, score,
               success_rate_pct, weight, degradation_alerted, avg_profit_pct, profit_samples, last_updated
        FROM %s FINAL`

var strategyCols = []string{
	"bucket_id", "total_predictions", "successes", "failures", "score",
	"success_rate_pct", "weight", "degradation_alerted", "avg_profit_pct", "profit_samples", "last_updated", "version",
}

// CHStrategies implements StrategyStatsRepository.
type CHStrategies struct {
	t   chTable
	now func() time.Time
}

func NewCHStrategies(ch *pkgch.Client, l *applogger.Logger) *CHStrategies {
	return &CHStrategies{t: newCHTable(ch.DB(), l, pkgch.TableStrategies), now: time.Now}
}

// GetOrCreate returns the stored row or a fresh default one. The default
// is not persisted until Save.
func (s *CHStrategies) GetOrCreate(ctx context.Context, id models.StrategyBucketID) (models.StrategyStats, error) {
	q := fmt.Sprintf(strategySelect+" WHERE bucket_id = ? LIMIT 1", s.t.table)
	st, err := scanStrategy(s.t.db.QueryRowContext(ctx, q, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewStrategyStats(id, s.now().UTC()), nil
	}
	if err != nil {
		return st, s.t.fail("get_strategy", err, applogger.String("bucket", string(id)))
	}
	return st, nil
}

func (s *CHStrategies) Save(ctx context.Context, st models.StrategyStats) error {
	row := []interface{}{
		string(st.BucketID), uint32(st.TotalPredictions), uint32(st.Successes), uint32(st.Failures), int32(st.Score),
		st.SuccessRatePct, st.Weight, st.DegradationAlerted, st.AvgProfitPct, uint32(st.ProfitSamples), st.LastUpdated.UTC(), version(),
	}
	return s.t.insert(ctx, "save_strategy", strategyCols, [][]interface{}{row})
}

func (s *CHStrategies) AllOrderedBySuccessRate(ctx context.Context) ([]models.StrategyStats, error) {
	start := time.Now()
	q := fmt.Sprintf(strategySelect+" ORDER BY success_rate_pct DESC, bucket_id ASC", s.t.table)
	rows, err := s.t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, s.t.fail("all_strategies", err)
	}
	defer rows.Close()

	var out []models.StrategyStats
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, s.t.fail("all_strategies scan", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, s.t.fail("all_strategies rows", err)
	}
	s.t.ok("all_strategies", start, len(out))
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(r rowScanner) (models.StrategyStats, error) {
	var (
		st                         models.StrategyStats
		bucket                     string
		total, successes, failures uint32
		samples                    uint32
		score                      int32
	)
	err := r.Scan(&bucket, &total, &successes, &failures, &score,
		&st.SuccessRatePct, &st.Weight, &st.DegradationAlerted, &st.AvgProfitPct, &samples, &st.LastUpdated)
	if err != nil {
		return st, err
	}
	st.BucketID = models.StrategyBucketID(bucket)
	st.TotalPredictions, st.Successes, st.Failures = int(total), int(successes), int(failures)
	st.Score = int(score)
	st.ProfitSamples = int(samples)
	st.LastUpdated = st.LastUpdated.UTC()
	return st, nil
}

var _ domrepo.StrategyStatsRepository = (*CHStrategies)(nil)
