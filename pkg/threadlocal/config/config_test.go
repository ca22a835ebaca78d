package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.PruneThreshold)
	assert.Equal(t, 128, cfg.VacuumThreshold)
	assert.False(t, cfg.Metrics)
	assert.False(t, cfg.Tracing)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.PruneThreshold = 0
	assert.Error(t, cfg.Validate())
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
prune_threshold: 4
vacuum_threshold: 256
metrics: true
`))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.PruneThreshold)
	assert.Equal(t, 256, cfg.VacuumThreshold)
	assert.True(t, cfg.Metrics)
	assert.False(t, cfg.Tracing)
}

func TestFromYAMLDefaultsKept(t *testing.T) {
	cfg, err := FromYAML([]byte(`metrics: true`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.PruneThreshold)
	assert.Equal(t, 128, cfg.VacuumThreshold)
}

func TestFromYAMLInvalid(t *testing.T) {
	_, err := FromYAML([]byte(`prune_threshold: [`))
	assert.Error(t, err)

	_, err = FromYAML([]byte(`prune_threshold: 0`))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"prune_threshold": 2, "tracing": true}`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.PruneThreshold)
	assert.True(t, cfg.Tracing)
}

func TestFromJSONInvalid(t *testing.T) {
	_, err := FromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("vacuum_threshold: 64\n"), 0o644))

	cfg, err := FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.VacuumThreshold)

	jsonPath := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"vacuum_threshold": 32}`), 0o644))

	cfg, err = FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.VacuumThreshold)
}

func TestFromFileUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	_, err := FromFile(path)
	assert.ErrorContains(t, err, "unsupported config file extension")
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
