package internal

import (
	"context"
	"time"

	"github.com/lychee-technology/eavcache"
	"go.uber.org/zap"
)

var (
	_ eavcache.SecondaryCache = (*disabledSecondaryCache)(nil)
	_ eavcache.SecondaryCache = (*GuardedSecondaryCache)(nil)
)

// disabledSecondaryCache never stores anything.
type disabledSecondaryCache struct{}

// NewDisabledSecondaryCache returns a secondary cache that reports itself disabled.
func NewDisabledSecondaryCache() eavcache.SecondaryCache {
	return disabledSecondaryCache{}
}

func (disabledSecondaryCache) Enabled() bool { return false }

func (disabledSecondaryCache) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (disabledSecondaryCache) Save(context.Context, string, []byte, []string) error { return nil }

func (disabledSecondaryCache) Invalidate(context.Context, ...string) error { return nil }

// GuardedSecondaryCache gates a backend behind the configured enabled flag and a circuit breaker.
// While the breaker is open the cache reports itself disabled. Every call is bounded by timeout.
type GuardedSecondaryCache struct {
	backend eavcache.SecondaryCache
	enabled bool
	breaker *CircuitBreaker
	timeout time.Duration
}

// NewGuardedSecondaryCache wraps backend. A nil breaker never opens and a zero timeout means none.
func NewGuardedSecondaryCache(backend eavcache.SecondaryCache, enabled bool, breaker *CircuitBreaker, timeout time.Duration) *GuardedSecondaryCache {
	return &GuardedSecondaryCache{
		backend: backend,
		enabled: enabled,
		breaker: breaker,
		timeout: timeout,
	}
}

func (g *GuardedSecondaryCache) Enabled() bool {
	return g.enabled && g.backend != nil && g.backend.Enabled() && !g.breaker.IsOpen()
}

func (g *GuardedSecondaryCache) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if !g.Enabled() {
		return nil, false, nil
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	data, ok, err := g.backend.Load(ctx, key)
	g.record(err)
	if err != nil {
		return nil, false, eavcache.NewCacheError("secondary cache load failed", err).WithDetail("key", key)
	}
	return data, ok, nil
}

func (g *GuardedSecondaryCache) Save(ctx context.Context, key string, data []byte, tags []string) error {
	if !g.Enabled() {
		return nil
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	err := g.backend.Save(ctx, key, data, tags)
	g.record(err)
	if err != nil {
		return eavcache.NewCacheError("secondary cache save failed", err).WithDetail("key", key)
	}
	return nil
}

// Invalidate reaches the backend even while the breaker is open so stale snapshots are not
// adopted once it closes.
func (g *GuardedSecondaryCache) Invalidate(ctx context.Context, tags ...string) error {
	if !g.enabled || g.backend == nil {
		return nil
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	err := g.backend.Invalidate(ctx, tags...)
	g.record(err)
	if err != nil {
		return eavcache.NewCacheError("secondary cache invalidation failed", err).WithDetail("tags", tags)
	}
	return nil
}

func (g *GuardedSecondaryCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *GuardedSecondaryCache) record(err error) {
	if err == nil {
		g.breaker.RecordSuccess()
		return
	}
	g.breaker.RecordFailure()
	if g.breaker.IsOpen() {
		zap.S().Warnw("secondary cache circuit breaker open", "error", err)
	}
}
