package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// APIConfig holds settings for the read-model REST surface.
type APIConfig struct {
	// BaseURL is the root URL of the REST API (e.g., http://localhost:1100/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every gateway request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns TimeoutSec as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// PushConfig holds settings for the push channel.
type PushConfig struct {
	// URL is the WebSocket endpoint (e.g., ws://localhost:1100/ws).
	URL string `mapstructure:"url" yaml:"url"`

	InitialBackoffMS int `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffSec    int `mapstructure:"max_backoff_sec" yaml:"max_backoff_sec"`
}

// InitialBackoff returns the first reconnect delay.
func (c PushConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the upper bound for reconnect delays.
func (c PushConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSec) * time.Second
}

// SessionConfig holds identity overrides. The session token itself lives in
// the system keyring, never in the config file.
type SessionConfig struct {
	UserID string `mapstructure:"user_id" yaml:"user_id"`
}

// UIConfig holds rendering preferences for the terminal client.
type UIConfig struct {
	BellRecentLimit int `mapstructure:"bell_recent_limit" yaml:"bell_recent_limit"`
	AlertTTLMS      int `mapstructure:"alert_ttl_ms" yaml:"alert_ttl_ms"`
	MaxAlerts       int `mapstructure:"max_alerts" yaml:"max_alerts"`
}

// AlertTTL returns how long an alert stays on screen.
func (c UIConfig) AlertTTL() time.Duration {
	return time.Duration(c.AlertTTLMS) * time.Millisecond
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File receives JSON log lines. Empty disables file logging for the
	// client, since the terminal UI owns stdout.
	File string `mapstructure:"file" yaml:"file"`
}

// DatabaseConfig selects the backend storage.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// BackendConfig holds settings for the reference backend (notifyd).
type BackendConfig struct {
	Listen    string         `mapstructure:"listen" yaml:"listen"`
	Database  DatabaseConfig `mapstructure:"database" yaml:"database"`
	JWTSecret string         `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Push    PushConfig    `mapstructure:"push" yaml:"push"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	UI      UIConfig      `mapstructure:"ui" yaml:"ui"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
}

// envPrefix namespaces environment overrides, e.g. NOTIFYSYNC_API_BASE_URL.
const envPrefix = "NOTIFYSYNC"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notifysync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "notifysync", "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file is present.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:1100/api",
			TimeoutSec: 30,
		},
		Push: PushConfig{
			URL:              "ws://localhost:1100/ws",
			InitialBackoffMS: 500,
			MaxBackoffSec:    30,
		},
		UI: UIConfig{
			BellRecentLimit: 5,
			AlertTTLMS:      2500,
			MaxAlerts:       3,
		},
		Log: LogConfig{
			Level: "info",
		},
		Backend: BackendConfig{
			Listen: ":1100",
			Database: DatabaseConfig{
				Driver: "sqlite",
				DSN:    "notifyd.db",
			},
			JWTSecret: "change-me",
		},
	}
}

// setDefaults mirrors DefaultAppConfig into viper so env overrides and
// partial files resolve every key.
func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_sec", d.API.TimeoutSec)
	v.SetDefault("push.url", d.Push.URL)
	v.SetDefault("push.initial_backoff_ms", d.Push.InitialBackoffMS)
	v.SetDefault("push.max_backoff_sec", d.Push.MaxBackoffSec)
	v.SetDefault("session.user_id", "")
	v.SetDefault("ui.bell_recent_limit", d.UI.BellRecentLimit)
	v.SetDefault("ui.alert_ttl_ms", d.UI.AlertTTLMS)
	v.SetDefault("ui.max_alerts", d.UI.MaxAlerts)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("backend.listen", d.Backend.Listen)
	v.SetDefault("backend.database.driver", d.Backend.Database.Driver)
	v.SetDefault("backend.database.dsn", d.Backend.Database.DSN)
	v.SetDefault("backend.jwt_secret", d.Backend.JWTSecret)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with NOTIFYSYNC_ override file values, and
// any flags in fs that were explicitly set override both. A missing file is
// not an error.
func LoadConfig(path string, fs *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.UI.BellRecentLimit <= 0 {
		cfg.UI.BellRecentLimit = 5
	}
	if cfg.UI.MaxAlerts <= 0 {
		cfg.UI.MaxAlerts = 3
	}

	return cfg, nil
}

// bindFlags binds flags whose names match config keys with dashes in place
// of dots and underscores, e.g. --api-base-url → api.base_url.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("binding flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// flagKeys maps recognised flag names to config keys.
var flagKeys = map[string]string{
	"api-url":    "api.base_url",
	"push-url":   "push.url",
	"user":       "session.user_id",
	"log-level":  "log.level",
	"log-file":   "log.file",
	"listen":     "backend.listen",
	"db-driver":  "backend.database.driver",
	"db-dsn":     "backend.database.dsn",
	"jwt-secret": "backend.jwt_secret",
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("push", cfg.Push)
	v.Set("session", cfg.Session)
	v.Set("ui", cfg.UI)
	v.Set("log", cfg.Log)
	v.Set("backend", cfg.Backend)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
