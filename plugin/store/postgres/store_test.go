package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chirino/ontology/config"
	"github.com/chirino/ontology/plugin/store/postgres"
	registrymigrate "github.com/chirino/ontology/registry/migrate"
	registrystore "github.com/chirino/ontology/registry/store"
	"github.com/chirino/ontology/testutil/testapp"
	"github.com/chirino/ontology/testutil/testpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.Store, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure postgres store plugin is registered
	_ = postgres.ForceImport

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	st, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, ctx
}

func TestBroadPolicyFlow(t *testing.T) {
	st, ctx := setupTestStore(t)
	testapp.SeedPermissions(t, ctx, st)

	d, err := st.CreateDomain(ctx, "acme")
	require.NoError(t, err)
	policy, err := st.CreatePolicy(ctx, d.EntityID, "members_can_use_things",
		[]string{"role:member"}, []string{"testapp.can_use_thing"}, nil)
	require.NoError(t, err)

	user := &testapp.UserAccount{Username: "u"}
	require.NoError(t, st.CreateComponent(ctx, user, nil))
	thing := &testapp.Thing{Slug: "t"}
	require.NoError(t, st.CreateComponent(ctx, thing, nil))
	uid, tid := user.GetEntityID(), thing.GetEntityID()

	require.NoError(t, st.AddToDomain(ctx, uid, d.EntityID))
	require.NoError(t, st.AddToDomain(ctx, tid, d.EntityID))

	ok, err := st.HasPerm(ctx, uid, "testapp.can_use_thing", tid)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.AddAttr(ctx, uid, d.EntityID, "role", "member")
	require.NoError(t, err)
	ok, err = st.HasPerm(ctx, uid, "testapp.can_use_thing", tid)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.RemoveFromDomain(ctx, tid, d.EntityID))
	ok, err = st.HasPerm(ctx, uid, "testapp.can_use_thing", tid)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.AddToDomain(ctx, tid, d.EntityID))
	ok, err = st.HasPerm(ctx, uid, "testapp.can_use_thing", tid)
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := st.ListEntitlements(ctx, policy.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSoftDeleteLifecycle(t *testing.T) {
	st, ctx := setupTestStore(t)

	thing := &testapp.Thing{Slug: "foo"}
	require.NoError(t, st.CreateComponent(ctx, thing, nil))
	id := thing.GetEntityID()

	require.NoError(t, st.DeleteEntity(ctx, id, false))
	_, err := st.GetEntity(ctx, id, registrystore.DefaultView)
	var nf *registrystore.NotFoundError
	assert.True(t, errors.As(err, &nf))
	_, err = st.GetEntity(ctx, id, registrystore.ArchiveView)
	require.NoError(t, err)

	require.NoError(t, st.UndeleteEntity(ctx, id))
	_, err = st.GetEntity(ctx, id, registrystore.DefaultView)
	require.NoError(t, err)

	require.NoError(t, st.DeleteEntity(ctx, id, true))
	_, err = st.GetEntity(ctx, id, registrystore.ArchiveView)
	assert.True(t, errors.As(err, &nf))
}

func TestUniqueConstraintsSurfaceAsConflicts(t *testing.T) {
	st, ctx := setupTestStore(t)
	testapp.SeedPermissions(t, ctx, st)

	d, err := st.CreateDomain(ctx, "acme")
	require.NoError(t, err)

	_, err = st.CreateDomain(ctx, "acme")
	var conflict *registrystore.ConflictError
	assert.True(t, errors.As(err, &conflict))

	_, err = st.CreatePolicy(ctx, d.EntityID, "p1", nil, []string{"testapp.can_use_thing"}, nil)
	require.NoError(t, err)
	_, err = st.CreatePolicy(ctx, d.EntityID, "p1", nil, []string{"testapp.can_use_thing"}, nil)
	assert.True(t, errors.As(err, &conflict))
}

func TestDomainCycleRejected(t *testing.T) {
	st, ctx := setupTestStore(t)

	p, err := st.CreateDomain(ctx, "p")
	require.NoError(t, err)
	sp, err := st.CreateDomain(ctx, "sp")
	require.NoError(t, err)
	require.NoError(t, st.AddToDomain(ctx, sp.EntityID, p.EntityID))

	var cycle *registrystore.CycleViolationError
	err = st.AddToDomain(ctx, p.EntityID, sp.EntityID)
	assert.True(t, errors.As(err, &cycle))
}
