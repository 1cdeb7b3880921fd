package cache

import (
	"sync"
	"time"

	"FinPattern/internal/domain/models"
)

// PatternCache is a bounded read cache of evaluated patterns from the last
// N days, ordered by candle time. Readers share the lock; Replace and Append
// take it exclusively for the swap only.
type PatternCache struct {
	mu       sync.RWMutex
	patterns []models.HistoricalPattern
	window   time.Duration
	loadedAt time.Time
	now      func() time.Time
}

type PatternCacheOption func(*PatternCache)

// WithPatternClock overrides the time source used for the retention window.
func WithPatternClock(now func() time.Time) PatternCacheOption {
	return func(c *PatternCache) { c.now = now }
}

func NewPatternCache(days int, opts ...PatternCacheOption) *PatternCache {
	if days <= 0 {
		days = 30
	}
	c := &PatternCache{
		window: time.Duration(days) * 24 * time.Hour,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Since is the oldest candle time the cache retains right now.
func (c *PatternCache) Since() time.Time {
	return c.now().Add(-c.window)
}

// Replace swaps the whole content. Unevaluated or out-of-window patterns are dropped.
// The input must be ascending by candle time.
func (c *PatternCache) Replace(ps []models.HistoricalPattern) {
	since := c.Since()
	next := make([]models.HistoricalPattern, 0, len(ps))
	for _, p := range ps {
		if p.Evaluated && !p.CandleTime.Before(since) {
			next = append(next, p)
		}
	}
	c.mu.Lock()
	c.patterns = next
	c.loadedAt = c.now()
	c.mu.Unlock()
}

// Append adds one evaluated pattern newer than the cached tail and drops
// entries that fell out of the window. It reports whether p was added.
func (c *PatternCache) Append(p models.HistoricalPattern) bool {
	if !p.Evaluated {
		return false
	}
	since := c.Since()
	if p.CandleTime.Before(since) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.patterns); n > 0 && !p.CandleTime.After(c.patterns[n-1].CandleTime) {
		return false
	}
	drop := 0
	for drop < len(c.patterns) && c.patterns[drop].CandleTime.Before(since) {
		drop++
	}
	next := make([]models.HistoricalPattern, 0, len(c.patterns)-drop+1)
	next = append(next, c.patterns[drop:]...)
	c.patterns = append(next, p)
	return true
}

// View runs fn with the current content under the read lock.
// fn must not retain or modify the slice.
func (c *PatternCache) View(fn func([]models.HistoricalPattern)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.patterns)
}

func (c *PatternCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.patterns)
}

func (c *PatternCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
