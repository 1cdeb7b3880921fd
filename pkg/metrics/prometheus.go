package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finpattern"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	builds      *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	probability *prometheus.GaugeVec
	regime      *prometheus.GaugeVec
	cacheSize   prometheus.Gauge
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		builds: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pattern_builds_total",
				Help:      "Pattern build runs by mode and final status",
			},
			[]string{"mode", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		probability: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "final_probability",
				Help:      "Last final probability per strategy bucket",
			},
			[]string{"bucket"},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "regime_confidence",
				Help:      "Confidence of the current market regime, zero for the others",
			},
			[]string{"regime"},
		),
		cacheSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pattern_cache_size",
			Help:      "Evaluated patterns held in memory",
		}),
	}
}

func (r *Recorder) RecordBuild(mode, status string) {
	r.builds.WithLabelValues(mode, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordProbability(bucket string, value float64) {
	r.probability.WithLabelValues(bucket).Set(value)
}

// RecordRegime keeps a single non-zero series so dashboards can plot the
// active regime directly.
func (r *Recorder) RecordRegime(regime string, confidence float64) {
	r.regime.Reset()
	r.regime.WithLabelValues(regime).Set(confidence)
}

func (r *Recorder) RecordCacheSize(n int) {
	r.cacheSize.Set(float64(n))
}
