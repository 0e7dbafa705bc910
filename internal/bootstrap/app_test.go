package bootstrap

import (
	"path/filepath"
	"testing"

	"proxygen/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.ProfileDir = filepath.Join(root, "profiles")
	cfg.Storage.RulesDir = filepath.Join(root, "rules")
	cfg.Database.Path = filepath.Join(root, "db", "proxygen.db")
	return cfg
}

func TestNewSeedsRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Profiles = []config.ProfileConfig{
		{Name: "home", URL: "https://sub.example/home", Collector: "http"},
	}

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.DirExists(t, cfg.Storage.ProfileDir)
	assert.DirExists(t, cfg.Storage.RulesDir)
	assert.FileExists(t, cfg.Database.Path)

	p, err := app.Registry.Get("home")
	require.NoError(t, err)
	assert.Equal(t, "https://sub.example/home", p.URL)
}

func TestNewRejectsBadProfileNames(t *testing.T) {
	cfg := testConfig(t)
	cfg.Profiles = []config.ProfileConfig{{Name: "../x", URL: "https://sub.example"}}

	_, err := New(cfg)
	assert.Error(t, err)
}
