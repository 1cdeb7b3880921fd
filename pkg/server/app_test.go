package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	applogger "FinPattern/pkg/logger"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

type fakeConsumer struct {
	startErr error
	started  bool
	stopped  bool
}

func (c *fakeConsumer) Start() error {
	c.started = true
	return c.startErr
}

func (c *fakeConsumer) Stop(context.Context) error {
	c.stopped = true
	return nil
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestAppStopsOnCancel(t *testing.T) {
	var order []string
	cons := &fakeConsumer{}
	app := New(applogger.NewNop(), nil,
		map[string]Runner{"http": runnerFunc(blockUntilDone)},
		cons, time.Second,
		Closer{Name: "clickhouse", Close: func() error { order = append(order, "clickhouse"); return nil }},
		Closer{Name: "producer", Close: func() error { order = append(order, "producer"); return nil }},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("app did not stop")
	}
	if !cons.started || !cons.stopped {
		t.Fatalf("consumer lifecycle not driven: %+v", cons)
	}
	if strings.Join(order, ",") != "producer,clickhouse" {
		t.Fatalf("closers must run in reverse order, got %v", order)
	}
}

func TestAppRunnerFailureStopsOthers(t *testing.T) {
	app := New(applogger.NewNop(), nil, map[string]Runner{
		"http":      runnerFunc(func(context.Context) error { return errors.New("bind: address in use") }),
		"scheduler": runnerFunc(blockUntilDone),
	}, nil, time.Second)

	err := app.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "http: bind") {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestAppWarmupFailure(t *testing.T) {
	closed := false
	cons := &fakeConsumer{}
	app := New(applogger.NewNop(),
		func(context.Context) error { return errors.New("clickhouse down") },
		nil, cons, time.Second,
		Closer{Name: "clickhouse", Close: func() error { closed = true; return nil }},
	)
	if err := app.Run(context.Background()); err == nil {
		t.Fatalf("expected warmup error")
	}
	if cons.started || !closed {
		t.Fatalf("consumer must not start and resources must close")
	}
}
