package models

import "testing"

func f(v float64) *float64 { return &v }

func TestBucketOf(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want StrategyBucketID
		ok   bool
	}{
		{"low bull high", Snapshot{RSI14: f(25), EMA50: f(101), EMA200: f(100), VolumeChangePct: f(60)}, "RSI_LOW_EMA_BULL_VOL_HIGH", true},
		{"equal emas are bull", Snapshot{RSI14: f(50), EMA50: f(100), EMA200: f(100), VolumeChangePct: f(0)}, "RSI_MID_EMA_BULL_VOL_MED", true},
		{"boundaries stay mid", Snapshot{RSI14: f(70), EMA50: f(99), EMA200: f(100), VolumeChangePct: f(-20)}, "RSI_MID_EMA_BEAR_VOL_MED", true},
		{"high bear low", Snapshot{RSI14: f(71), EMA50: f(99), EMA200: f(100), VolumeChangePct: f(-21)}, "RSI_HIGH_EMA_BEAR_VOL_LOW", true},
		{"missing rsi", Snapshot{EMA50: f(1), EMA200: f(1), VolumeChangePct: f(1)}, "", false},
		{"missing ema200", Snapshot{RSI14: f(50), EMA50: f(1), VolumeChangePct: f(1)}, "", false},
	}
	for _, c := range cases {
		got, ok := BucketOf(c.snap)
		if ok != c.ok || got != c.want {
			t.Errorf("%s: got %q,%v want %q,%v", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestAllBucketsRoundTrip(t *testing.T) {
	ids := AllBuckets()
	if len(ids) != 18 {
		t.Fatalf("got %d buckets", len(ids))
	}
	seen := map[StrategyBucketID]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate %s", id)
		}
		seen[id] = true
		r, e, v, err := id.Parts()
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if NewBucketID(r, e, v) != id {
			t.Errorf("round trip failed for %s", id)
		}
	}
	if _, _, _, err := StrategyBucketID("RSI_X").Parts(); err == nil {
		t.Fatalf("expected error for malformed id")
	}
}

func TestBucketType(t *testing.T) {
	cases := map[StrategyBucketID]StrategyType{
		"RSI_MID_EMA_BULL_VOL_HIGH": TypeBreakout,
		"RSI_MID_EMA_BEAR_VOL_LOW":  TypeTrendFollowing,
		"RSI_LOW_EMA_BULL_VOL_MED":  TypeMeanReversion,
		"RSI_HIGH_EMA_BULL_VOL_LOW": TypeMomentum,
		"RSI_LOW_EMA_BEAR_VOL_HIGH": TypeReversal,
		"RSI_HIGH_EMA_BEAR_VOL_MED": TypeReversal,
		"garbage":                   TypeTrendFollowing,
	}
	for id, want := range cases {
		if got := id.Type(); got != want {
			t.Errorf("%s: got %s want %s", id, got, want)
		}
	}
}

func TestRegimeMultiplier(t *testing.T) {
	if RegimeTrend.Multiplier() != 1.1 || RegimeRange.Multiplier() != 0.9 || RegimeHighVolatility.Multiplier() != 0.7 {
		t.Fatalf("unexpected multipliers")
	}
	if _, err := ParseRegime("SIDEWAYS"); err == nil {
		t.Fatalf("expected error")
	}
}
