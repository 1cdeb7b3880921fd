package buildgate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FinPattern/pkg/logger"
)

func TestLocalSingleHolder(t *testing.T) {
	g := NewLocal()
	ctx := context.Background()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(ctx) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one holder, got %d", wins.Load())
	}
	if !g.Busy() {
		t.Fatalf("expected busy")
	}
	g.Release(ctx)
	if !g.TryAcquire(ctx) {
		t.Fatalf("expected acquire after release")
	}
}

func TestIndependentInstances(t *testing.T) {
	a, b := NewLocal(), NewLocal()
	if !a.TryAcquire(context.Background()) || !b.TryAcquire(context.Background()) {
		t.Fatalf("gates must not share state")
	}
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	err  error
}

func (f *fakeLocker) TryLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.held[key]; ok {
		return false, nil
	}
	f.held[key] = token
	return true, nil
}

func (f *fakeLocker) Unlock(_ context.Context, key, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] != token {
		return false, nil
	}
	delete(f.held, key)
	return true, nil
}

func (f *fakeLocker) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
}

func TestDistributedSharesLease(t *testing.T) {
	ctx := context.Background()
	store := &fakeLocker{held: map[string]string{}}
	a := NewDistributed(store, "patterns:build", time.Minute, logger.NewNop())
	b := NewDistributed(store, "patterns:build", time.Minute, logger.NewNop())
	if !a.TryAcquire(ctx) {
		t.Fatalf("expected first process to win")
	}
	if b.TryAcquire(ctx) {
		t.Fatalf("second process must be refused")
	}
	if b.Busy() {
		t.Fatalf("refused gate must return to idle")
	}
	a.Release(ctx)
	if !b.TryAcquire(ctx) {
		t.Fatalf("expected acquire after release")
	}
}

func TestDistributedStoreError(t *testing.T) {
	g := NewDistributed(&fakeLocker{held: map[string]string{}, err: errors.New("down")}, "k", time.Minute, logger.NewNop())
	if g.TryAcquire(context.Background()) {
		t.Fatalf("store failure must refuse the build")
	}
	if g.Busy() {
		t.Fatalf("local token must be released")
	}
}

func TestDistributedReleaseKeepsForeignLease(t *testing.T) {
	ctx := context.Background()
	store := &fakeLocker{held: map[string]string{}}
	a := NewDistributed(store, "patterns:build", time.Minute, logger.NewNop())
	b := NewDistributed(store, "patterns:build", time.Minute, logger.NewNop())
	c := NewDistributed(store, "patterns:build", time.Minute, logger.NewNop())

	if !a.TryAcquire(ctx) {
		t.Fatalf("expected first process to win")
	}
	store.expire("patterns:build")
	if !b.TryAcquire(ctx) {
		t.Fatalf("expected acquire after the lease expired")
	}
	a.Release(ctx)
	if a.Busy() {
		t.Fatalf("local token must be released")
	}
	if c.TryAcquire(ctx) {
		t.Fatalf("stale release must not drop the live lease")
	}
	b.Release(ctx)
	if !c.TryAcquire(ctx) {
		t.Fatalf("expected acquire after the owner released")
	}
}
