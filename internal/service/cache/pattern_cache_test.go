package cache

import (
	"sync"
	"testing"
	"time"

	"FinPattern/internal/domain/models"
)

var now = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func evaluated(t time.Time) models.HistoricalPattern {
	return models.HistoricalPattern{CandleTime: t}.WithOutcome(models.Outcome{MaxProfitPct24h: 1, HoursToMax: 2})
}

func TestPatternCacheReplaceFilters(t *testing.T) {
	c := NewPatternCache(30, WithPatternClock(func() time.Time { return now }))
	c.Replace([]models.HistoricalPattern{
		evaluated(now.AddDate(0, 0, -40)),
		{CandleTime: now.AddDate(0, 0, -5)},
		evaluated(now.AddDate(0, 0, -4)),
		evaluated(now.AddDate(0, 0, -2)),
	})
	if got := c.Len(); got != 2 {
		t.Fatalf("got %d patterns want 2", got)
	}
	if !c.LoadedAt().Equal(now) {
		t.Fatalf("unexpected load time %v", c.LoadedAt())
	}
}

func TestPatternCacheAppend(t *testing.T) {
	clock := now
	c := NewPatternCache(1, WithPatternClock(func() time.Time { return clock }))
	base := now.Add(-12 * time.Hour)
	if !c.Append(evaluated(base)) {
		t.Fatalf("expected append")
	}
	if c.Append(evaluated(base)) {
		t.Fatalf("duplicate time must be rejected")
	}
	if c.Append(models.HistoricalPattern{CandleTime: base.Add(time.Hour)}) {
		t.Fatalf("unevaluated pattern must be rejected")
	}
	clock = now.Add(20 * time.Hour)
	if !c.Append(evaluated(base.Add(20 * time.Hour))) {
		t.Fatalf("expected append")
	}
	var times []time.Time
	c.View(func(ps []models.HistoricalPattern) {
		for _, p := range ps {
			times = append(times, p.CandleTime)
		}
	})
	if len(times) != 1 || !times[0].Equal(base.Add(20*time.Hour)) {
		t.Fatalf("expected the stale entry trimmed, got %v", times)
	}
}

func TestPatternCacheConcurrentReaders(t *testing.T) {
	c := NewPatternCache(30, WithPatternClock(func() time.Time { return now }))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Append(evaluated(now.Add(-time.Duration(100-i) * time.Minute)))
		}(i)
		go func() {
			defer wg.Done()
			c.View(func(ps []models.HistoricalPattern) {
				for i := 1; i < len(ps); i++ {
					if !ps[i].CandleTime.After(ps[i-1].CandleTime) {
						t.Errorf("cache out of order")
					}
				}
			})
		}()
	}
	wg.Wait()
	if c.Len() == 0 {
		t.Fatalf("expected entries")
	}
}
