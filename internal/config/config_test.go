package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Scan.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Zero(t, cfg.Map.ChunkElements)
	assert.Empty(t, cfg.Store.Path)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Scan.Workers = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Scan.ReadTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Map.ChunkElements = -5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Watch.Debounce = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "codeatlas.yaml")
	content := `
scan:
  root: /src/app
  include:
    - "src/**"
  workers: 4
map:
  chunk_elements: 200
  out: atlas.json
store:
  path: .codeatlas/runs.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/src/app", cfg.Scan.Root)
	assert.Equal(t, []string{"src/**"}, cfg.Scan.Include)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 200, cfg.Map.ChunkElements)
	assert.Equal(t, "atlas.json", cfg.Map.Out)
	assert.Equal(t, ".codeatlas/runs.db", cfg.Store.Path)

	// Unset keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Scan.ReadTimeout)
}

func TestLoadFromFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFile_Malformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: [unclosed"), 0o644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	t.Parallel()
	base := DefaultConfig()
	base.Scan.Root = "/base"

	override := &Config{}
	override.Scan.Workers = 8
	override.Map.Out = "out.json"

	base.Merge(override)
	assert.Equal(t, "/base", base.Scan.Root)
	assert.Equal(t, 8, base.Scan.Workers)
	assert.Equal(t, "out.json", base.Map.Out)

	base.Merge(nil)
	assert.Equal(t, 8, base.Scan.Workers)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "codeatlas.yaml")

	cfg := DefaultConfig()
	cfg.Scan.Root = "/src/app"
	cfg.Map.ChunkElements = 50
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/src/app", loaded.Scan.Root)
	assert.Equal(t, 50, loaded.Map.ChunkElements)
}
