package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/ontology/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, "postgres", cfg.DatastoreType)
	assert.True(t, cfg.DatastoreMigrateAtStart)
	assert.True(t, cfg.StrictCycles)
	assert.Equal(t, "none", cfg.CacheType)
	assert.Equal(t, time.Minute, cfg.CacheDecisionTTL.Std())
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
}

func TestContextRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)
	assert.Same(t, &cfg, config.FromContext(ctx))
	assert.Nil(t, config.FromContext(context.Background()))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ontology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"datastoreType: sqlite\n"+
			"dbUrl: /tmp/ontology.db\n"+
			"strictCycles: false\n"+
			"cacheType: ristretto\n"+
			"cacheDecisionTtl: 30s\n"), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatastoreType)
	assert.Equal(t, "/tmp/ontology.db", cfg.DBURL)
	assert.False(t, cfg.StrictCycles)
	assert.Equal(t, "ristretto", cfg.CacheType)
	assert.Equal(t, 30*time.Second, cfg.CacheDecisionTTL.Std())
	// Untouched keys keep their defaults.
	assert.True(t, cfg.DatastoreMigrateAtStart)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ontology.yaml")
	require.NoError(t, os.WriteFile(path, []byte("datastoerType: sqlite\n"), 0o600))
	_, err := config.LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
