package server

import (
	"context"
	"time"

	applogger "FinPattern/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Job is one periodic task. A failing run is logged and retried on the
// next tick; it never stops the other jobs.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// JobObserver receives the outcome of every run.
type JobObserver interface {
	Observe(job string, seconds float64, err error)
}

type Scheduler struct {
	jobs       []Job
	runOnStart bool
	observer   JobObserver
	logger     *applogger.Logger
}

func NewScheduler(log *applogger.Logger, observer JobObserver, runOnStart bool, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, runOnStart: runOnStart, observer: observer, logger: log.With("scheduler")}
}

// Run blocks until ctx is done. Each job has its own goroutine, so a slow
// job delays only its own next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.logger.Warn("job disabled", applogger.String("job", job.Name))
			continue
		}
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	s.logger.Info("scheduler started", applogger.Int("jobs", len(s.jobs)))
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	if s.runOnStart {
		s.once(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.once(ctx, job)
		}
	}
}

func (s *Scheduler) once(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)
	if s.observer != nil {
		s.observer.Observe(job.Name, took.Seconds(), err)
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("job failed", applogger.String("job", job.Name), applogger.Error(err))
		return
	}
	s.logger.Debug("job finished", applogger.String("job", job.Name), applogger.Duration("took_ms", took))
}
