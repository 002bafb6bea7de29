package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/ontology/config"
	_ "github.com/chirino/ontology/plugin/store/sqlite"
	registrymigrate "github.com/chirino/ontology/registry/migrate"
	registrystore "github.com/chirino/ontology/registry/store"
	"github.com/chirino/ontology/service"
	"github.com/chirino/ontology/testutil/testapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (registrystore.Store, context.Context) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "ontology.db")
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))
	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	st, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, ctx
}

func TestSweepDisablesExpiredPolicies(t *testing.T) {
	st, ctx := setupStore(t)
	testapp.SeedPermissions(t, ctx, st)

	d, err := st.CreateDomain(ctx, "acme")
	require.NoError(t, err)
	expired, err := st.CreatePolicy(ctx, d.EntityID, "expired", nil, []string{"testapp.can_use_thing"}, nil)
	require.NoError(t, err)
	fresh, err := st.CreatePolicy(ctx, d.EntityID, "fresh", nil, []string{"testapp.can_use_thing"}, nil)
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, st.SetPolicyExpiry(ctx, expired.ID, &past))

	sweeper := service.NewExpiryService(st, "", 10)
	sweeper.Sweep(ctx)

	got, err := st.GetPolicy(ctx, d.EntityID, "expired")
	require.NoError(t, err)
	assert.True(t, got.Disabled)
	got, err = st.GetPolicy(ctx, d.EntityID, "fresh")
	require.NoError(t, err)
	assert.False(t, got.Disabled)
	_ = fresh

	// The sweep query now finds nothing left to disable.
	policies, err := st.FindExpiredPolicies(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestStartWithEmptyScheduleIsNoop(t *testing.T) {
	st, ctx := setupStore(t)
	sweeper := service.NewExpiryService(st, "", 10)
	require.NoError(t, sweeper.Start(ctx))
}

func TestStartWithSchedule(t *testing.T) {
	st, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := service.NewExpiryService(st, "@every 1h", 10)
	require.NoError(t, sweeper.Start(ctx))
	cancel()
}
