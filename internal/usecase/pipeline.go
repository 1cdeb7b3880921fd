package usecase

import (
	"context"
	"time"

	"FinPattern/internal/domain/models"
	domrepo "FinPattern/internal/domain/repository"
	"FinPattern/internal/service/buildgate"
	"FinPattern/pkg/logger"
)

// pipeline is the gated runner shared by every dataset mutation.
type pipeline struct {
	gate    buildgate.Gate
	metrics domrepo.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

func newPipeline(gate buildgate.Gate, metrics domrepo.Metrics, log *logger.Logger) pipeline {
	return pipeline{gate: gate, metrics: metrics, logger: log, now: time.Now}
}

// run wraps one gated pipeline operation with reporting, logging and metrics.
func (p *pipeline) run(ctx context.Context, mode models.BuildMode, fn func(r *models.BuildReport) error) (models.BuildReport, error) {
	report := models.BuildReport{Mode: mode, Started: p.now()}
	if !p.gate.TryAcquire(ctx) {
		report.Status = models.StatusBusy
		report.Reason = ErrBuildBusy.Error()
		report.Finished = p.now()
		p.metrics.RecordBuild(string(mode), string(report.Status))
		p.logger.Info("pattern pipeline busy", logger.String("mode", string(mode)))
		return report, nil
	}
	defer p.gate.Release(ctx)

	err := fn(&report)
	report.Finished = p.now()
	p.metrics.RecordLatency("pattern_"+string(mode)+"_seconds", report.Finished.Sub(report.Started).Seconds())
	if err != nil {
		report.Status = models.StatusFailed
		report.Reason = err.Error()
		p.metrics.RecordBuild(string(mode), string(report.Status))
		p.logger.Error("pattern pipeline failed", logger.String("mode", string(mode)), logger.Error(err))
		return report, err
	}
	report.Status = models.StatusCompleted
	p.metrics.RecordBuild(string(mode), string(report.Status))
	p.logger.Info("pattern pipeline completed",
		logger.String("mode", string(mode)),
		logger.Int("built", report.Built),
		logger.Int("skipped", report.Skipped),
		logger.Int("errors", report.Errors),
		logger.Int("evaluated", report.Evaluated),
		logger.Duration("took_ms", report.Finished.Sub(report.Started)),
	)
	return report, nil
}

