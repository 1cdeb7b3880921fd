package cache

import (
	"context"
	"time"

	pkgcache "FinPattern/pkg/cache"
)

// BytesCache stores raw encoded values with a TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

var (
	_ BytesCache = (*TTLCache)(nil)
	_ BytesCache = (*pkgcache.RedisCache)(nil)
)
