package buildgate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"FinPattern/pkg/logger"
)

const (
	idle int32 = iota
	building
)

// Gate admits at most one pattern build, resume or evaluate pass at a time.
// Acquisition never blocks: a busy gate answers false immediately.
type Gate interface {
	TryAcquire(ctx context.Context) bool
	Release(ctx context.Context)
	Busy() bool
}

// Local is the in-process Idle/Building token.
type Local struct {
	state atomic.Int32
}

func NewLocal() *Local { return &Local{} }

func (g *Local) TryAcquire(context.Context) bool {
	return g.state.CompareAndSwap(idle, building)
}

func (g *Local) Release(context.Context) {
	g.state.Store(idle)
}

func (g *Local) Busy() bool {
	return g.state.Load() == building
}

// Locker is the subset of a distributed cache used for the cross-process lease.
// A lease is owned by the token it was taken with; Unlock reports false when
// the key is gone or held under another token.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
}

// Distributed takes the local token first, then a lease in a shared store,
// so a second process running the same job is refused too.
type Distributed struct {
	local  *Local
	locker Locker
	key    string
	ttl    time.Duration
	logger *logger.Logger

	// token of the current lease, guarded by the local token
	token string
}

func NewDistributed(locker Locker, key string, ttl time.Duration, log *logger.Logger) *Distributed {
	return &Distributed{local: NewLocal(), locker: locker, key: key, ttl: ttl, logger: log}
}

func (g *Distributed) TryAcquire(ctx context.Context) bool {
	if !g.local.TryAcquire(ctx) {
		return false
	}
	token := uuid.NewString()
	ok, err := g.locker.TryLock(ctx, g.key, token, g.ttl)
	if err != nil {
		g.logger.Warn("build lease unavailable", logger.String("key", g.key), logger.Error(err))
	}
	if err != nil || !ok {
		g.local.Release(ctx)
		return false
	}
	g.token = token
	return true
}

func (g *Distributed) Release(ctx context.Context) {
	released, err := g.locker.Unlock(ctx, g.key, g.token)
	switch {
	case err != nil:
		g.logger.Warn("build lease release failed", logger.String("key", g.key), logger.Error(err))
	case !released:
		g.logger.Warn("build lease expired before release", logger.String("key", g.key), logger.Duration("ttl", g.ttl))
	}
	g.token = ""
	g.local.Release(ctx)
}

func (g *Distributed) Busy() bool {
	return g.local.Busy()
}

var (
	_ Gate = (*Local)(nil)
	_ Gate = (*Distributed)(nil)
)
