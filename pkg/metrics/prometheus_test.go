package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordBuild("full", "completed")
	r.RecordBuild("full", "completed")
	r.RecordError("signal_save")
	r.RecordProbability("B1", 72.5)
	r.RecordRegime("TREND", 0.8)
	r.RecordRegime("HIGH_VOLATILITY", 0.6)
	r.RecordCacheSize(42)
	r.RecordLatency("signal_evaluate_seconds", 0.01)

	if got := testutil.ToFloat64(r.builds.WithLabelValues("full", "completed")); got != 2 {
		t.Fatalf("builds got %v", got)
	}
	if got := testutil.ToFloat64(r.probability.WithLabelValues("B1")); got != 72.5 {
		t.Fatalf("probability got %v", got)
	}
	if got := testutil.CollectAndCount(r.regime); got != 1 {
		t.Fatalf("regime series got %d", got)
	}
	if got := testutil.ToFloat64(r.cacheSize); got != 42 {
		t.Fatalf("cache size got %v", got)
	}
	if got := testutil.CollectAndCount(r.latency); got != 1 {
		t.Fatalf("latency series got %d", got)
	}
}
