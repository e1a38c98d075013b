// Package config loads the process configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr     = ":8000"
	defaultDatabasePath   = "wakasync.db"
	defaultRequestTimeout = 30 * time.Second
	defaultSyncHour       = 23
	defaultSyncMinute     = 30
	defaultSyncWorkers    = 4
)

// Config is the full process configuration, loaded once at startup.
type Config struct {
	ListenAddr   string           `yaml:"listen_addr"`
	DatabasePath string           `yaml:"database_path"`
	WakaTime     WakaTimeConfig   `yaml:"wakatime"`
	Encryption   EncryptionConfig `yaml:"encryption"`
	Sync         SyncConfig       `yaml:"sync"`
}

// WakaTimeConfig holds the registered OAuth client and API settings.
type WakaTimeConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	Timeout      string   `yaml:"request_timeout"`
}

// EncryptionConfig feeds the credential vault key derivation.
type EncryptionConfig struct {
	Secret string `yaml:"secret"`
	Salt   string `yaml:"salt"`
}

// SyncConfig controls the nightly usage sync job.
type SyncConfig struct {
	Hour    int `yaml:"hour"`
	Minute  int `yaml:"minute"`
	Workers int `yaml:"workers"`
}

// Load reads the YAML file at path (missing file is not an error, defaults
// apply), layers environment overrides on top and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:   defaultListenAddr,
		DatabasePath: defaultDatabasePath,
		WakaTime: WakaTimeConfig{
			RedirectURL: "http://localhost:8000/integrations/wakatime/callback",
			Scopes:      []string{"read_logged_time"},
		},
		Sync: SyncConfig{
			Hour:    defaultSyncHour,
			Minute:  defaultSyncMinute,
			Workers: defaultSyncWorkers,
		},
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.WakaTime.ClientID == "" || cfg.WakaTime.ClientSecret == "" {
		return nil, fmt.Errorf("wakatime client_id and client_secret are required")
	}
	if cfg.Encryption.Secret == "" {
		return nil, fmt.Errorf("encryption secret is required")
	}
	if cfg.Sync.Hour < 0 || cfg.Sync.Hour > 23 || cfg.Sync.Minute < 0 || cfg.Sync.Minute > 59 {
		return nil, fmt.Errorf("sync schedule %02d:%02d is not a valid wall-clock time", cfg.Sync.Hour, cfg.Sync.Minute)
	}
	if cfg.Sync.Workers < 1 {
		cfg.Sync.Workers = defaultSyncWorkers
	}
	return cfg, nil
}

// RequestTimeout parses the configured per-call timeout, falling back to the
// default on absence or garbage.
func (c *Config) RequestTimeout() time.Duration {
	if c.WakaTime.Timeout == "" {
		return defaultRequestTimeout
	}
	d, err := time.ParseDuration(c.WakaTime.Timeout)
	if err != nil || d <= 0 {
		return defaultRequestTimeout
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WAKATIME_CLIENT_ID"); v != "" {
		cfg.WakaTime.ClientID = v
	}
	if v := os.Getenv("WAKATIME_CLIENT_SECRET"); v != "" {
		cfg.WakaTime.ClientSecret = v
	}
	if v := os.Getenv("WAKATIME_REDIRECT_URL"); v != "" {
		cfg.WakaTime.RedirectURL = v
	}
	if v := os.Getenv("WAKASYNC_ENCRYPTION_SECRET"); v != "" {
		cfg.Encryption.Secret = v
	}
	if v := os.Getenv("WAKASYNC_ENCRYPTION_SALT"); v != "" {
		cfg.Encryption.Salt = v
	}
	if v := os.Getenv("WAKASYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("WAKASYNC_DB"); v != "" {
		cfg.DatabasePath = v
	}
}
