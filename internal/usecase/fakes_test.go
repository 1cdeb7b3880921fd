package usecase

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
)

var (
	base   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	errBoo = errors.New("boom")
)

func at(i int) time.Time { return base.Add(time.Duration(i) * models.CandleInterval) }

func waveSeries(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + 4*math.Sin(float64(i)/9) + float64(i)*0.01
		out[i] = models.Candle{OpenTime: at(i), Open: c - 0.1, High: c + 0.6, Low: c - 0.6, Close: c, Volume: 50 + float64(i%17)*4}
	}
	return out
}

type memCandles struct {
	mu      sync.Mutex
	candles []models.Candle
	minErr  error
}

func newMemCandles(cs []models.Candle) *memCandles {
	return &memCandles{candles: append([]models.Candle(nil), cs...)}
}

func (m *memCandles) MinOpenTime(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.minErr != nil {
		return time.Time{}, false, m.minErr
	}
	if len(m.candles) == 0 {
		return time.Time{}, false, nil
	}
	return m.candles[0].OpenTime, true, nil
}

func (m *memCandles) MaxOpenTime(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.candles) == 0 {
		return time.Time{}, false, nil
	}
	return m.candles[len(m.candles)-1].OpenTime, true, nil
}

func (m *memCandles) CandlesBetween(_ context.Context, start, end time.Time) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Candle
	for _, c := range m.candles {
		if !c.OpenTime.Before(start) && !c.OpenTime.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCandles) LastNCandlesBefore(_ context.Context, t time.Time, n int) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Candle
	for i := len(m.candles) - 1; i >= 0 && len(out) < n; i-- {
		if !m.candles[i].OpenTime.After(t) {
			out = append(out, m.candles[i])
		}
	}
	return out, nil
}

func (m *memCandles) CandleAt(_ context.Context, t time.Time) (models.Candle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candles {
		if c.OpenTime.Equal(t) {
			return c, true, nil
		}
	}
	return models.Candle{}, false, nil
}

func (m *memCandles) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.candles)), nil
}

func (m *memCandles) UpsertCandles(_ context.Context, cs []models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTime := make(map[time.Time]models.Candle, len(m.candles)+len(cs))
	for _, c := range m.candles {
		byTime[c.OpenTime] = c
	}
	for _, c := range cs {
		byTime[c.OpenTime] = c
	}
	m.candles = m.candles[:0]
	for _, c := range byTime {
		m.candles = append(m.candles, c)
	}
	sort.Slice(m.candles, func(i, j int) bool { return m.candles[i].OpenTime.Before(m.candles[j].OpenTime) })
	return nil
}

type memIndicators struct {
	mu   sync.Mutex
	rows map[time.Time]models.IndicatorRow
}

func newMemIndicators() *memIndicators {
	return &memIndicators{rows: map[time.Time]models.IndicatorRow{}}
}

func (m *memIndicators) sorted() []models.IndicatorRow {
	out := make([]models.IndicatorRow, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func (m *memIndicators) RecentN(_ context.Context, n int) ([]models.IndicatorRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	var out []models.IndicatorRow
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memIndicators) Between(_ context.Context, start, end time.Time) ([]models.IndicatorRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.IndicatorRow
	for _, r := range m.sorted() {
		if !r.Time.Before(start) && !r.Time.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memIndicators) At(_ context.Context, t time.Time) (models.IndicatorRow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[t]
	return r, ok, nil
}

func (m *memIndicators) MaxTime(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if len(all) == 0 {
		return time.Time{}, false, nil
	}
	return all[len(all)-1].Time, true, nil
}

func (m *memIndicators) Upsert(_ context.Context, r models.IndicatorRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.Time] = r
	return nil
}

type memPatterns struct {
	mu        sync.Mutex
	rows      map[time.Time]models.HistoricalPattern
	upserts   int
	deletes   int
	failAt    map[time.Time]bool
	deleteErr error
}

func newMemPatterns() *memPatterns {
	return &memPatterns{rows: map[time.Time]models.HistoricalPattern{}, failAt: map[time.Time]bool{}}
}

func (m *memPatterns) sorted() []models.HistoricalPattern {
	out := make([]models.HistoricalPattern, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandleTime.Before(out[j].CandleTime) })
	return out
}

func (m *memPatterns) ExistsAt(_ context.Context, t time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[t]
	return ok, nil
}

func (m *memPatterns) At(_ context.Context, t time.Time) (models.HistoricalPattern, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[t]
	return p, ok, nil
}

func (m *memPatterns) Upsert(_ context.Context, p models.HistoricalPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt[p.CandleTime] {
		return errBoo
	}
	m.upserts++
	m.rows[p.CandleTime] = p
	return nil
}

func (m *memPatterns) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes++
	m.rows = map[time.Time]models.HistoricalPattern{}
	return nil
}

func (m *memPatterns) ByStrategyBucket(_ context.Context, id models.StrategyBucketID) ([]models.HistoricalPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoricalPattern
	for _, p := range m.sorted() {
		if p.StrategyBucketID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPatterns) UnevaluatedBefore(_ context.Context, before, after time.Time, limit int) ([]models.HistoricalPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoricalPattern
	for _, p := range m.sorted() {
		if !p.Evaluated && p.CandleTime.After(after) && !p.CandleTime.After(before) {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memPatterns) EvaluatedSince(_ context.Context, since time.Time) ([]models.HistoricalPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoricalPattern
	for _, p := range m.sorted() {
		if p.Evaluated && !p.CandleTime.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPatterns) MaxCandleTime(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if len(all) == 0 {
		return time.Time{}, false, nil
	}
	return all[len(all)-1].CandleTime, true, nil
}

func (m *memPatterns) MaxEvaluatedCandleTime(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out time.Time
	found := false
	for _, p := range m.rows {
		if p.Evaluated && p.CandleTime.After(out) {
			out, found = p.CandleTime, true
		}
	}
	return out, found, nil
}

func (m *memPatterns) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *memPatterns) CountEvaluated(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.rows {
		if p.Evaluated {
			n++
		}
	}
	return n, nil
}

type memStats struct {
	mu sync.Mutex
	m  map[models.StrategyBucketID]models.StrategyStats
}

func newMemStats() *memStats {
	return &memStats{m: map[models.StrategyBucketID]models.StrategyStats{}}
}

func (r *memStats) GetOrCreate(_ context.Context, id models.StrategyBucketID) (models.StrategyStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		return s, nil
	}
	s := models.NewStrategyStats(id, base)
	r.m[id] = s
	return s, nil
}

func (r *memStats) Save(_ context.Context, s models.StrategyStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.BucketID] = s
	return nil
}

func (r *memStats) AllOrderedBySuccessRate(context.Context) ([]models.StrategyStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.StrategyStats, 0, len(r.m))
	for _, s := range r.m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuccessRatePct > out[j].SuccessRatePct })
	return out, nil
}

type memRegimes struct {
	mu  sync.Mutex
	obs []models.RegimeObservation
}

func (m *memRegimes) Append(_ context.Context, o models.RegimeObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = append(m.obs, o)
	return nil
}

func (m *memRegimes) MostRecent(context.Context) (models.RegimeObservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.obs) == 0 {
		return models.RegimeObservation{}, false, nil
	}
	return m.obs[len(m.obs)-1], true, nil
}

func (m *memRegimes) RecentN(_ context.Context, n int) ([]models.RegimeObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegimeObservation
	for i := len(m.obs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.obs[i])
	}
	return out, nil
}

func (m *memRegimes) Between(_ context.Context, start, end time.Time) ([]models.RegimeObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RegimeObservation
	for _, o := range m.obs {
		if !o.Timestamp.Before(start) && !o.Timestamp.After(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

type memSignals struct {
	mu      sync.Mutex
	rows    []models.SignalRecord
	saveErr error
}

func (m *memSignals) Save(_ context.Context, s models.SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rows = append(m.rows, s)
	return nil
}

func (m *memSignals) UnverifiedBefore(_ context.Context, t time.Time, limit int) ([]models.SignalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SignalRecord
	for _, s := range m.rows {
		if !s.Verified && !s.CandleTime.After(t) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSignals) MarkVerified(_ context.Context, id string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Verified = true
			m.rows[i].Success = success
			return nil
		}
	}
	return domrepo.ErrNotFound
}

type fakeNotifier struct {
	mu           sync.Mutex
	signals      []models.MultiStrategyResult
	degradations []models.StrategyStats
	changes      [][2]models.RegimeObservation
	err          error
}

func (f *fakeNotifier) PublishSignal(_ context.Context, r models.MultiStrategyResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, r)
	return f.err
}

func (f *fakeNotifier) PublishDegradation(_ context.Context, s models.StrategyStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degradations = append(f.degradations, s)
	return f.err
}

func (f *fakeNotifier) PublishRegimeChange(_ context.Context, prev, cur models.RegimeObservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, [2]models.RegimeObservation{prev, cur})
	return f.err
}

type nopMetrics struct{}

func (nopMetrics) RecordBuild(string, string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordProbability(string, float64) {}
func (nopMetrics) RecordRegime(string, float64) {}
func (nopMetrics) RecordCacheSize(int) {}

var (
	_ domrepo.CandleSource            = (*memCandles)(nil)
	_ domrepo.IndicatorSource         = (*memIndicators)(nil)
	_ domrepo.PatternRepository       = (*memPatterns)(nil)
	_ domrepo.StrategyStatsRepository = (*memStats)(nil)
	_ domrepo.RegimeRepository        = (*memRegimes)(nil)
	_ domrepo.SignalRepository        = (*memSignals)(nil)
	_ domrepo.Notifier                = (*fakeNotifier)(nil)
	_ domrepo.Metrics                 = nopMetrics{}
)
