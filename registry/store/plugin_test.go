package store_test

import (
	"errors"
	"testing"

	"github.com/chirino/ontology/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttrSpec(t *testing.T) {
	spec, err := store.ParseAttrSpec("role:member")
	require.NoError(t, err)
	assert.Equal(t, "role", spec.Key)
	assert.Equal(t, "member", spec.Value)

	// Values may contain colons.
	spec, err = store.ParseAttrSpec("url:https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "url", spec.Key)
	assert.Equal(t, "https://example.com", spec.Value)

	// Empty values are allowed; empty keys are not.
	spec, err = store.ParseAttrSpec("flag:")
	require.NoError(t, err)
	assert.Equal(t, "flag", spec.Key)
	assert.Equal(t, "", spec.Value)

	var ve *store.ValidationError
	_, err = store.ParseAttrSpec("no-colon")
	assert.True(t, errors.As(err, &ve))
	_, err = store.ParseAttrSpec(":orphan")
	assert.True(t, errors.As(err, &ve))
}

func TestParsePermSpec(t *testing.T) {
	spec, err := store.ParsePermSpec("testapp.can_use_thing")
	require.NoError(t, err)
	assert.Equal(t, "testapp", spec.AppLabel)
	assert.Equal(t, "can_use_thing", spec.Codename)

	var ve *store.ValidationError
	_, err = store.ParsePermSpec("nodot")
	assert.True(t, errors.As(err, &ve))
	_, err = store.ParsePermSpec(".codename")
	assert.True(t, errors.As(err, &ve))
	_, err = store.ParsePermSpec("app.")
	assert.True(t, errors.As(err, &ve))
}

func TestSelectUnknownStore(t *testing.T) {
	_, err := store.Select("no-such-backend")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-backend")
}
