package cache

import (
	"context"
	"fmt"
)

// DecisionCache caches authorization decisions keyed by
// (source entity, permission string, target entity). Implementations must
// drop (or version away) every cached decision when Invalidate is called;
// the engine invalidates after each successful mutation so a cached answer
// never outlives the causal-consistency guarantee.
type DecisionCache interface {
	Available() bool
	Get(ctx context.Context, source int64, perm string, target int64) (allowed, ok bool)
	Set(ctx context.Context, source int64, perm string, target int64, allowed bool)
	Invalidate(ctx context.Context)
	Close() error
}

// Loader creates a DecisionCache from config.
type Loader func(ctx context.Context) (DecisionCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
