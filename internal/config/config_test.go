package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshview.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())
	assert.Equal(t, filepath.Join(dir, "data", "catalog", "models.duckdb"), cfg.GetCatalogPath())
	assert.Equal(t, "0.0.0.0:5000", cfg.GetServerAddr())
	assert.True(t, cfg.Storage.WatchUploads)
	assert.True(t, cfg.Storage.AllowDeletion)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshview.yaml")
	content := `
server:
  port: 9001
  bindAddress: 127.0.0.1
storage:
  uploadsDirectory: /srv/models
advanced:
  logLevel: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9001", cfg.GetServerAddr())
	assert.Equal(t, "/srv/models", cfg.GetUploadDir())
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
	// Unset keys keep their defaults.
	assert.Equal(t, 512, cfg.Processing.PreviewWidth)
	assert.True(t, cfg.Server.EnableCORS)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATA_DIR", "/var/lib/meshview")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg := DefaultConfig()
	cfg.applyEnvironmentOverrides()

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/var/lib/meshview", cfg.GetDataDir())
	assert.Equal(t, "/var/lib/meshview/uploads", cfg.GetUploadDir())
	assert.Equal(t, "/var/lib/meshview/catalog", cfg.Storage.CatalogDirectory)
	assert.Equal(t, "warn", cfg.Advanced.LogLevel)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.GetDataDir(), cfg.GetUploadDir(), cfg.Storage.CatalogDirectory} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
