package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	applogger "FinPattern/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived component that returns once ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// Consumer is the subset of the Kafka consumer the app drives.
type Consumer interface {
	Start() error
	Stop(ctx context.Context) error
}

// Closer releases a resource on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	logger          *applogger.Logger
	warmup          func(ctx context.Context) error
	runners         map[string]Runner
	consumer        Consumer
	closers         []Closer
	shutdownTimeout time.Duration
}

// New creates the app. consumer may be nil when ingestion is disabled.
// Closers run in reverse order after every runner has returned.
func New(
	log *applogger.Logger,
	warmup func(ctx context.Context) error,
	runners map[string]Runner,
	consumer Consumer,
	shutdownTimeout time.Duration,
	closers ...Closer,
) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		logger:          log.With("app"),
		warmup:          warmup,
		runners:         runners,
		consumer:        consumer,
		closers:         closers,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	if a.warmup != nil {
		if err := a.warmup(ctx); err != nil {
			a.shutdown()
			return fmt.Errorf("warmup: %w", err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return errors.Join(fmt.Errorf("consumer: %w", err), a.shutdown())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, r := range a.runners {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	if a.consumer != nil {
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()
			return a.consumer.Stop(stopCtx)
		})
	}

	a.logger.Info("app started", applogger.Int("runners", len(a.runners)), applogger.Bool("consumer", a.consumer != nil))
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("app stopped with error", applogger.Error(err))
	} else {
		err = nil
	}
	return errors.Join(err, a.shutdown())
}

func (a *App) shutdown() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", applogger.String("component", c.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
		}
	}
	a.logger.Info("app stopped")
	return errors.Join(errs...)
}
