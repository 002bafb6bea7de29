package ontology_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chirino/ontology"
	"github.com/chirino/ontology/config"
	"github.com/chirino/ontology/model"
	_ "github.com/chirino/ontology/plugin/cache/noop"
	_ "github.com/chirino/ontology/plugin/cache/ristretto"
	_ "github.com/chirino/ontology/plugin/store/sqlite"
	registrystore "github.com/chirino/ontology/registry/store"
	"github.com/chirino/ontology/testutil/testapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openEngine(t *testing.T, cacheType string) (*ontology.Engine, context.Context) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "ontology.db")
	cfg.CacheType = cacheType
	ctx := config.WithContext(context.Background(), &cfg)

	engine, err := ontology.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, ctx
}

func TestEntityIDNormalization(t *testing.T) {
	id, ok := ontology.EntityID(int64(7))
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	id, ok = ontology.EntityID(12)
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	entity := model.Entity{ID: 3}
	id, ok = ontology.EntityID(entity)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
	id, ok = ontology.EntityID(&entity)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	thing := &testapp.Thing{}
	thing.SetEntityID(9)
	id, ok = ontology.EntityID(thing)
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)

	_, ok = ontology.EntityID(nil)
	assert.False(t, ok)
	_, ok = ontology.EntityID("nope")
	assert.False(t, ok)
	var nilEntity *model.Entity
	_, ok = ontology.EntityID(nilEntity)
	assert.False(t, ok)
}

func TestHasPermEndToEnd(t *testing.T) {
	engine, ctx := openEngine(t, "none")
	st := engine.Store()
	testapp.SeedPermissions(t, ctx, st)

	d, err := st.CreateDomain(ctx, "acme")
	require.NoError(t, err)
	_, err = st.CreatePolicy(ctx, d.EntityID, "members_can_use_things",
		[]string{"role:member"}, []string{"testapp.can_use_thing"}, nil)
	require.NoError(t, err)

	user := &testapp.UserAccount{Username: "u"}
	require.NoError(t, st.CreateComponent(ctx, user, nil))
	thing := &testapp.Thing{Slug: "t"}
	require.NoError(t, st.CreateComponent(ctx, thing, nil))

	require.NoError(t, st.AddToDomain(ctx, user.GetEntityID(), d.EntityID))
	require.NoError(t, st.AddToDomain(ctx, thing.GetEntityID(), d.EntityID))

	// Components and raw ids both normalize.
	assert.False(t, engine.HasPerm(ctx, user, "testapp.can_use_thing", thing))

	_, err = st.AddAttr(ctx, user.GetEntityID(), d.EntityID, "role", "member")
	require.NoError(t, err)

	assert.True(t, engine.HasPerm(ctx, user, "testapp.can_use_thing", thing))
	assert.True(t, engine.HasPerm(ctx, user.GetEntityID(), "testapp.can_use_thing", thing.GetEntityID()))

	// Malformed inputs answer false instead of failing.
	assert.False(t, engine.HasPerm(ctx, user, "not-a-permission", thing))
	assert.False(t, engine.HasPerm(ctx, nil, "testapp.can_use_thing", thing))
	assert.False(t, engine.HasPerm(ctx, user, "testapp.can_use_thing", "thing"))

	grants, err := engine.EntitlementsFor(ctx, user)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "can_use_thing", grants[0].Permission.Codename)

	_, err = engine.EntitlementsFor(ctx, "bogus")
	var ve *registrystore.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestHasPermWithDecisionCache(t *testing.T) {
	engine, ctx := openEngine(t, "ristretto")
	st := engine.Store()
	testapp.SeedPermissions(t, ctx, st)

	d, err := st.CreateDomain(ctx, "acme")
	require.NoError(t, err)
	_, err = st.CreatePolicy(ctx, d.EntityID, "members_can_use_things",
		[]string{"role:member"}, []string{"testapp.can_use_thing"}, nil)
	require.NoError(t, err)

	user := &testapp.UserAccount{Username: "u"}
	require.NoError(t, st.CreateComponent(ctx, user, nil))
	thing := &testapp.Thing{Slug: "t"}
	require.NoError(t, st.CreateComponent(ctx, thing, nil))
	require.NoError(t, st.AddToDomain(ctx, user.GetEntityID(), d.EntityID))
	require.NoError(t, st.AddToDomain(ctx, thing.GetEntityID(), d.EntityID))

	// Prime the cache with a deny, then mutate: the invalidation hook must
	// keep the cached answer from outliving the change.
	assert.False(t, engine.HasPerm(ctx, user, "testapp.can_use_thing", thing))

	_, err = st.AddAttr(ctx, user.GetEntityID(), d.EntityID, "role", "member")
	require.NoError(t, err)
	assert.True(t, engine.HasPerm(ctx, user, "testapp.can_use_thing", thing))

	require.NoError(t, st.RemoveAttr(ctx, user.GetEntityID(), d.EntityID, "role", "member"))
	assert.False(t, engine.HasPerm(ctx, user, "testapp.can_use_thing", thing))
}

func TestOpenUnknownDatastore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "voidstore"
	ctx := config.WithContext(context.Background(), &cfg)
	_, err := ontology.Open(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voidstore")
}
