package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobMetrics tracks scheduled job runs.
type JobMetrics struct {
	Latency *prometheus.HistogramVec
	Errors  *prometheus.CounterVec
	Runs    *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	f := promauto.With(reg)
	return &JobMetrics{
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finpattern",
			Subsystem: "scheduler",
			Name:      "job_seconds",
			Help:      "Duration of scheduled jobs",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finpattern",
			Subsystem: "scheduler",
			Name:      "job_errors_total",
			Help:      "Failed scheduled job runs",
		}, []string{"job"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finpattern",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs",
		}, []string{"job"}),
	}
}

// Observe records one run.
func (m *JobMetrics) Observe(job string, seconds float64, err error) {
	m.Runs.WithLabelValues(job).Inc()
	m.Latency.WithLabelValues(job).Observe(seconds)
	if err != nil {
		m.Errors.WithLabelValues(job).Inc()
	}
}
