package config

import (
	"context"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the authorization engine.
type Config struct {
	// Datastore backend type: "postgres" or "sqlite".
	DatastoreType string `yaml:"datastoreType"`

	// Database connection string. A postgres URL, or a sqlite file path.
	DBURL string `yaml:"dbUrl"`

	// Run datastore migrations when the engine is opened.
	DatastoreMigrateAtStart bool `yaml:"datastoreMigrateAtStart"`

	// DB pool
	DBMaxOpenConns int `yaml:"dbMaxOpenConns"`
	DBMaxIdleConns int `yaml:"dbMaxIdleConns"`

	// StrictCycles controls domain-graph cycle handling on membership adds:
	// true rejects the operation with CycleViolationError, false silently
	// skips the offending addition and logs a warning.
	StrictCycles bool `yaml:"strictCycles"`

	// Decision cache backend type: "none", "ristretto", or "redis".
	CacheType string `yaml:"cacheType"`

	// Redis
	RedisURL string `yaml:"redisUrl"`

	// CacheDecisionTTL bounds how long a cached authorization decision may
	// live. In multi-process redis deployments it also bounds staleness
	// across writers.
	CacheDecisionTTL Duration `yaml:"cacheDecisionTtl"`

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR}
	// expansion.
	MetricsLabels string `yaml:"metricsLabels"`

	// ExpirySweepSchedule is the cron spec for the policy-expiry sweeper.
	// Empty disables the sweep.
	ExpirySweepSchedule string `yaml:"expirySweepSchedule"`

	// ExpirySweepBatchSize bounds how many expired policies one sweep
	// disables.
	ExpirySweepBatchSize int `yaml:"expirySweepBatchSize"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		StrictCycles:            true,
		CacheType:               "none",
		CacheDecisionTTL:        Duration(time.Minute),
		ExpirySweepSchedule:     "",
		ExpirySweepBatchSize:    500,
	}
}
