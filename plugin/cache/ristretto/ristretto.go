// Package ristretto registers the in-process decision cache. Invalidation is
// by epoch: every mutation bumps a counter baked into the cache key, so stale
// decisions simply stop being addressable.
package ristretto

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chirino/ontology/config"
	"github.com/chirino/ontology/metrics"
	registrycache "github.com/chirino/ontology/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "ristretto",
		Loader: func(ctx context.Context) (registrycache.DecisionCache, error) {
			cfg := config.FromContext(ctx)
			inner, err := ristretto.NewCache(&ristretto.Config[string, bool]{
				NumCounters: 1e6,
				MaxCost:     1 << 24,
				BufferItems: 64,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
			}
			ttl := time.Minute
			if cfg != nil && cfg.CacheDecisionTTL > 0 {
				ttl = cfg.CacheDecisionTTL.Std()
			}
			return &decisionCache{inner: inner, ttl: ttl}, nil
		},
	})
}

type decisionCache struct {
	inner *ristretto.Cache[string, bool]
	epoch atomic.Uint64
	ttl   time.Duration
}

func (c *decisionCache) key(source int64, perm string, target int64) string {
	return fmt.Sprintf("%d:%d:%s:%d", c.epoch.Load(), source, perm, target)
}

func (c *decisionCache) Available() bool { return true }

func (c *decisionCache) Get(ctx context.Context, source int64, perm string, target int64) (bool, bool) {
	allowed, ok := c.inner.Get(c.key(source, perm, target))
	if ok {
		if metrics.CacheHitsTotal != nil {
			metrics.CacheHitsTotal.Inc()
		}
	} else if metrics.CacheMissesTotal != nil {
		metrics.CacheMissesTotal.Inc()
	}
	return allowed, ok
}

func (c *decisionCache) Set(ctx context.Context, source int64, perm string, target int64, allowed bool) {
	c.inner.SetWithTTL(c.key(source, perm, target), allowed, 1, c.ttl)
}

func (c *decisionCache) Invalidate(ctx context.Context) {
	c.epoch.Add(1)
}

func (c *decisionCache) Close() error {
	c.inner.Close()
	return nil
}
