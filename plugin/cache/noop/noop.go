// Package noop registers the disabled decision cache.
package noop

import (
	"context"

	registrycache "github.com/chirino/ontology/registry/cache"
)

func init() {
	loader := func(ctx context.Context) (registrycache.DecisionCache, error) {
		return &noopCache{}, nil
	}
	registrycache.Register(registrycache.Plugin{Name: "none", Loader: loader})
	registrycache.Register(registrycache.Plugin{Name: "noop", Loader: loader})
}

type noopCache struct{}

func (*noopCache) Available() bool { return false }

func (*noopCache) Get(context.Context, int64, string, int64) (bool, bool) { return false, false }

func (*noopCache) Set(context.Context, int64, string, int64, bool) {}

func (*noopCache) Invalidate(context.Context) {}

func (*noopCache) Close() error { return nil }
