package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/ontology/config"
	_ "github.com/chirino/ontology/plugin/cache/ristretto"
	registrycache "github.com/chirino/ontology/registry/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) registrycache.DecisionCache {
	t.Helper()
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)
	loader, err := registrycache.Select("ristretto")
	require.NoError(t, err)
	c, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDecisionCacheRoundTrip(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	require.True(t, c.Available())

	_, ok := c.Get(ctx, 1, "testapp.can_use_thing", 2)
	assert.False(t, ok)

	c.Set(ctx, 1, "testapp.can_use_thing", 2, true)
	// Ristretto admits writes asynchronously.
	require.Eventually(t, func() bool {
		allowed, ok := c.Get(ctx, 1, "testapp.can_use_thing", 2)
		return ok && allowed
	}, time.Second, 5*time.Millisecond)
}

func TestDecisionCacheInvalidation(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	c.Set(ctx, 1, "testapp.can_use_thing", 2, true)
	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, 1, "testapp.can_use_thing", 2)
		return ok
	}, time.Second, 5*time.Millisecond)

	// A bump makes every prior decision unaddressable.
	c.Invalidate(ctx)
	_, ok := c.Get(ctx, 1, "testapp.can_use_thing", 2)
	assert.False(t, ok)
}
