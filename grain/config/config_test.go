package config_test

import (
	"os"
	"testing"

	"github.com/grainkit/actorhsm/grain/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UsesSpecDefaultsWithNoOverrides(t *testing.T) {
	v, err := config.NewLoader().Load()
	require.NoError(t, err)
	assert.True(t, v.AutoConfirmEvents)
	assert.False(t, v.PublishToStream)
	assert.Equal(t, "StateMachine", v.StreamNamespace)
	assert.True(t, v.EnableIdempotency)
	assert.Equal(t, 1000, v.MaxDedupeKeysInMemory)
	assert.True(t, v.EnableSnapshots)
	assert.Equal(t, 100, v.SnapshotInterval)
}

func TestLoad_EnvVarOverridesDefault(t *testing.T) {
	t.Setenv("HSM_SNAPSHOTINTERVAL", "25")
	t.Setenv("HSM_PUBLISHTOSTREAM", "true")

	v, err := config.NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 25, v.SnapshotInterval)
	assert.True(t, v.PublishToStream)
}

func TestLoad_YAMLFileOverridesDefault(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "hsm-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("snapshotinterval: 7\nstreamnamespace: Custom\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	v, err := config.NewLoader().AddConfigFile(f.Name()).Load()
	require.NoError(t, err)
	assert.Equal(t, 7, v.SnapshotInterval)
	assert.Equal(t, "Custom", v.StreamNamespace)
}

func TestValues_ToOptions(t *testing.T) {
	v, err := config.NewLoader().Load()
	require.NoError(t, err)
	opts := v.ToOptions()
	assert.True(t, opts.AutoConfirmEvents)
	assert.Equal(t, 100, opts.SnapshotInterval)
}
