package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen: ":9000"
fetch:
  timeout: 5s
  concurrency: 0
profiles:
  - name: home
    url: https://example.com/sub
  - name: work
    url: https://example.org/sub
    collector: file
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "./data/rules", cfg.Storage.RulesDir)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 1, cfg.Fetch.Concurrency)
	assert.Equal(t, "http", cfg.Profiles[0].Collector)
	assert.Equal(t, "file", cfg.Profiles[1].Collector)

	assert.Equal(t, "https://example.org/sub", cfg.Profiles[1].URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  api_key: fromfile\n"), 0o644))

	t.Setenv("PROXYGEN_API_KEY", "fromenv")
	t.Setenv("PROXYGEN_RULES_DIR", "/srv/rules")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Server.APIKey)
	assert.Equal(t, "/srv/rules", cfg.Storage.RulesDir)
}

func TestFilterProfiles(t *testing.T) {
	cfg := Default()
	cfg.Profiles = []ProfileConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	cfg.FilterProfiles(nil)
	assert.Len(t, cfg.Profiles, 3)

	cfg.FilterProfiles([]string{"c", "a"})
	require.Len(t, cfg.Profiles, 2)
	assert.Equal(t, "a", cfg.Profiles[0].Name)
	assert.Equal(t, "c", cfg.Profiles[1].Name)
}
