package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Storage    StorageConfig     `yaml:"storage"`
	Database   DatabaseConfig    `yaml:"database"`
	Fetch      FetchConfig       `yaml:"fetch"`
	Schedule   ScheduleConfig    `yaml:"schedule"`
	Log        LogConfig         `yaml:"log"`
	Profiles   []ProfileConfig   `yaml:"profiles"`
	Publishers []PublisherConfig `yaml:"publishers"`
}

type ServerConfig struct {
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
	Metrics bool   `yaml:"metrics"`
}

type StorageConfig struct {
	ProfileDir string `yaml:"profile_dir"`
	RulesDir   string `yaml:"rules_dir"`
	WatchRules bool   `yaml:"watch_rules"` // Reload templates when rules_dir changes
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type FetchConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	UserAgent          string        `yaml:"user_agent"`
	ProxyURL           string        `yaml:"proxy_url"` // http(s):// or socks5://
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Concurrency        int           `yaml:"concurrency"`
}

type ScheduleConfig struct {
	Refresh string `yaml:"refresh"` // Standard cron expression, empty disables
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ProfileConfig seeds the profile registry with subscription sources.
type ProfileConfig struct {
	Name      string                 `yaml:"name"`
	URL       string                 `yaml:"url"`
	Collector string                 `yaml:"collector"`
	Params    map[string]interface{} `yaml:"params"`
}

type PublisherConfig struct {
	Name     string                 `yaml:"name"`
	Type     string                 `yaml:"type"`
	Profiles []string               `yaml:"profiles"`
	Override string                 `yaml:"override"`
	Params   map[string]interface{} `yaml:"params"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Server.Listen = ":8000"
	cfg.Server.Metrics = true
	cfg.Storage.ProfileDir = "./data/profiles"
	cfg.Storage.RulesDir = "./data/rules"
	cfg.Database.Path = "./data/proxygen.db"
	cfg.Fetch.Timeout = 30 * time.Second
	cfg.Fetch.UserAgent = "Clash.Meta/1.18.1 Proxygen/0.1.0"
	cfg.Fetch.InsecureSkipVerify = true
	cfg.Fetch.Concurrency = 4
	cfg.Log.MaxSizeMB = 10
	cfg.Log.MaxBackups = 5
	cfg.Log.MaxAgeDays = 30
	return &cfg
}

// Load reads the YAML config at path. An empty path means ./config.yaml,
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config yaml: %w", err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
		// Defaults only
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()

	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if cfg.Fetch.Concurrency <= 0 {
		cfg.Fetch.Concurrency = 1
	}
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Collector == "" {
			cfg.Profiles[i].Collector = "http"
		}
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PROXYGEN_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("PROXYGEN_PROFILE_DIR"); v != "" {
		c.Storage.ProfileDir = v
	}
	if v := os.Getenv("PROXYGEN_RULES_DIR"); v != "" {
		c.Storage.RulesDir = v
	}
}

// FilterProfiles keeps only the named profile sources. No names keeps all.
func (c *Config) FilterProfiles(names []string) {
	if len(names) == 0 {
		return
	}
	whitelist := make(map[string]bool)
	for _, n := range names {
		whitelist[n] = true
	}
	var filtered []ProfileConfig
	for _, item := range c.Profiles {
		if whitelist[item.Name] {
			filtered = append(filtered, item)
		}
	}
	c.Profiles = filtered
}

func (c *Config) FilterPublishers(names []string) {
	if len(names) == 0 {
		return
	}
	whitelist := make(map[string]bool)
	for _, n := range names {
		whitelist[n] = true
	}
	var filtered []PublisherConfig
	for _, item := range c.Publishers {
		if whitelist[item.Name] {
			filtered = append(filtered, item)
		}
	}
	c.Publishers = filtered
}
