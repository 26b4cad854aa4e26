package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions_Valid(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
}

func TestLoadOptions_OverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compact_batch_size: 50\n"), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 50, opts.CompactBatchSize)
	assert.Equal(t, DefaultOptions().PendingDrainBatchSize, opts.PendingDrainBatchSize)
}

func TestLoadOptions_MissingFile(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadOptions_InvalidValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compact_batch_size: -1\n"), 0o600))

	_, err := LoadOptions(path)
	assert.Error(t, err)
}

func TestLoadOptions_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid\n"), 0o600))

	_, err := LoadOptions(path)
	assert.Error(t, err)
}
