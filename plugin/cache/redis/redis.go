// Package redis registers the shared decision cache for multi-reader
// deployments. Invalidation bumps a version key; decision keys embed the
// version, and a TTL bounds staleness for writers on other processes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ontology/config"
	"github.com/chirino/ontology/metrics"
	registrycache "github.com/chirino/ontology/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const versionKey = "ontology:decision:version"

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "redis",
		Loader: func(ctx context.Context) (registrycache.DecisionCache, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.RedisURL == "" {
				return nil, fmt.Errorf("redis cache requires RedisURL")
			}
			opts, err := goredis.ParseURL(cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("invalid redis URL: %w", err)
			}
			client := goredis.NewClient(opts)
			if err := client.Ping(ctx).Err(); err != nil {
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			ttl := time.Minute
			if cfg.CacheDecisionTTL > 0 {
				ttl = cfg.CacheDecisionTTL.Std()
			}
			return &decisionCache{client: client, ttl: ttl}, nil
		},
	})
}

type decisionCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func (c *decisionCache) Available() bool { return true }

func (c *decisionCache) key(ctx context.Context, source int64, perm string, target int64) (string, error) {
	version, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && err != goredis.Nil {
		return "", err
	}
	return fmt.Sprintf("ontology:decision:%d:%d:%s:%d", version, source, perm, target), nil
}

func (c *decisionCache) Get(ctx context.Context, source int64, perm string, target int64) (bool, bool) {
	key, err := c.key(ctx, source, perm, target)
	if err != nil {
		return false, false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		if metrics.CacheMissesTotal != nil {
			metrics.CacheMissesTotal.Inc()
		}
		return false, false
	}
	if err != nil {
		log.Warn("Decision cache read failed", "err", err)
		return false, false
	}
	if metrics.CacheHitsTotal != nil {
		metrics.CacheHitsTotal.Inc()
	}
	return val == "1", true
}

func (c *decisionCache) Set(ctx context.Context, source int64, perm string, target int64, allowed bool) {
	key, err := c.key(ctx, source, perm, target)
	if err != nil {
		return
	}
	val := "0"
	if allowed {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		log.Warn("Decision cache write failed", "err", err)
	}
}

func (c *decisionCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		log.Warn("Decision cache invalidation failed", "err", err)
	}
}

func (c *decisionCache) Close() error {
	return c.client.Close()
}
