// Package ontology is an attribute-based authorization engine built atop an
// entity–component data model. Entities accumulate domain-scoped attributes;
// declarative policies over attribute conjunctions materialize into a
// precomputed entitlement index; authorization checks are a single indexed
// existence query against it.
//
// The engine is a library: hosts select a storage backend by importing the
// matching plugin package for side effect, put a config.Config in the
// context, and call Open.
//
//	import (
//		_ "github.com/chirino/ontology/plugin/cache/noop"
//		_ "github.com/chirino/ontology/plugin/store/postgres"
//	)
//
//	cfg := config.DefaultConfig()
//	cfg.DBURL = "postgres://..."
//	ctx := config.WithContext(ctx, &cfg)
//	engine, err := ontology.Open(ctx)
package ontology

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/ontology/config"
	"github.com/chirino/ontology/metrics"
	"github.com/chirino/ontology/model"
	cachedstore "github.com/chirino/ontology/plugin/store/cached"
	metricsstore "github.com/chirino/ontology/plugin/store/metrics"
	registrycache "github.com/chirino/ontology/registry/cache"
	registrymigrate "github.com/chirino/ontology/registry/migrate"
	registrystore "github.com/chirino/ontology/registry/store"
)

// Engine is the top-level handle: the configured store plus the
// authorization query surface.
type Engine struct {
	store registrystore.Store
	cache registrycache.DecisionCache
}

// Open selects the configured store and cache plugins, runs migrations, and
// wires the metrics and cache-invalidation decorators.
func Open(ctx context.Context) (*Engine, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		def := config.DefaultConfig()
		cfg = &def
		ctx = config.WithContext(ctx, cfg)
	}

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, err
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	st, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	st = metricsstore.Wrap(st)

	cacheType := cfg.CacheType
	if cacheType == "" {
		cacheType = "none"
	}
	cacheLoader, err := registrycache.Select(cacheType)
	if err != nil {
		return nil, err
	}
	decisions, err := cacheLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open decision cache: %w", err)
	}
	if decisions.Available() {
		st = cachedstore.Wrap(st, decisions)
	}

	return &Engine{store: st, cache: decisions}, nil
}

// Store exposes the full data access surface. Mutations performed through it
// invalidate the decision cache.
func (e *Engine) Store() registrystore.Store { return e.store }

// Close releases the store and cache.
func (e *Engine) Close() error {
	if err := e.cache.Close(); err != nil {
		log.Warn("Closing decision cache failed", "err", err)
	}
	return e.store.Close()
}

// EntityID normalizes an authorization endpoint: a component maps to its
// entity, an entity to itself, a raw id passes through. Anything else does
// not resolve.
func EntityID(subject any) (int64, bool) {
	switch v := subject.(type) {
	case nil:
		return 0, false
	case int64:
		return v, true
	case int:
		return int64(v), true
	case model.Entity:
		return v.ID, true
	case *model.Entity:
		if v == nil {
			return 0, false
		}
		return v.ID, true
	case model.Component:
		return v.GetEntityID(), true
	default:
		return 0, false
	}
}

// HasPerm reports whether the subject may exercise the permission (in
// "app_label.codename" form) on the target. Subject and target may be
// components, entities, or entity ids. It never fails: unresolvable
// endpoints and lookup errors answer false.
func (e *Engine) HasPerm(ctx context.Context, subject any, perm string, target any) bool {
	sourceID, ok := EntityID(subject)
	if !ok {
		return false
	}
	targetID, ok := EntityID(target)
	if !ok {
		return false
	}

	if e.cache.Available() {
		if allowed, ok := e.cache.Get(ctx, sourceID, perm, targetID); ok {
			return allowed
		}
	}

	allowed, err := e.store.HasPerm(ctx, sourceID, perm, targetID)
	if err != nil {
		log.Warn("Authorization check failed", "perm", perm, "source", sourceID, "target", targetID, "err", err)
		if metrics.AuthzChecksTotal != nil {
			metrics.AuthzChecksTotal.WithLabelValues("error").Inc()
		}
		return false
	}
	if e.cache.Available() {
		e.cache.Set(ctx, sourceID, perm, targetID, allowed)
	}
	if metrics.AuthzChecksTotal != nil {
		outcome := "deny"
		if allowed {
			outcome = "allow"
		}
		metrics.AuthzChecksTotal.WithLabelValues(outcome).Inc()
	}
	return allowed
}

// EntitlementsFor lists the (permission, target) pairs the subject holds.
func (e *Engine) EntitlementsFor(ctx context.Context, subject any) ([]registrystore.Grant, error) {
	sourceID, ok := EntityID(subject)
	if !ok {
		return nil, &registrystore.ValidationError{Detail: "subject does not resolve to an entity"}
	}
	return e.store.EntitlementsFor(ctx, sourceID)
}
