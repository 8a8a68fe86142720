// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides. Nested keys are
// separated with a double underscore: FIELDNOTIFY_DATABASE__URL.
const envPrefix = "FIELDNOTIFY_"

// Config is the root application configuration.
type Config struct {
	Server       ServerConfig               `koanf:"server"`
	Log          LogConfig                  `koanf:"log"`
	Auth         AuthConfig                 `koanf:"auth"`
	CORS         CORSConfig                 `koanf:"cors"`
	Database     DatabaseConfig             `koanf:"database"`
	Directory    DirectoryConfig            `koanf:"directory"`
	Dedup        DedupConfig                `koanf:"dedup"`
	RateLimits   map[string]RateLimitConfig `koanf:"rate_limits"`
	StatusWriter StatusWriterConfig         `koanf:"status_writer"`
	Channels     ChannelsConfig             `koanf:"channels"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	Secret string `koanf:"secret"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// DirectoryConfig contains recipient directory client settings.
type DirectoryConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// DedupConfig contains deduplication settings.
type DedupConfig struct {
	// DefaultWindow applies to event types without an explicit entry in
	// EventTypeWindows.
	DefaultWindow     time.Duration            `koanf:"default_window"`
	EventTypeWindows  map[string]time.Duration `koanf:"event_type_windows"`
	MaxHistoryAge     time.Duration            `koanf:"max_history_age"`
	CleanupInterval   time.Duration            `koanf:"cleanup_interval"`
	PersistentStorage bool                     `koanf:"persistent_storage"`
}

// WindowFor resolves the dedup window for an event type.
func (c DedupConfig) WindowFor(eventType string) time.Duration {
	if w, ok := c.EventTypeWindows[eventType]; ok {
		return w
	}
	return c.DefaultWindow
}

// RateLimitConfig describes one fixed-window rate limit scope.
type RateLimitConfig struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

// StatusWriterConfig contains status writer settings.
type StatusWriterConfig struct {
	QueueSize         int           `koanf:"queue_size"`
	NumWorkers        int           `koanf:"num_workers"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// ChannelsConfig contains per-channel transport settings.
type ChannelsConfig struct {
	Push     PushConfig     `koanf:"push"`
	Realtime RealtimeConfig `koanf:"realtime"`
}

// PushConfig contains push provider settings.
type PushConfig struct {
	Enabled     bool          `koanf:"enabled"`
	ProviderURL string        `koanf:"provider_url"`
	APIKey      string        `koanf:"api_key"`
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   float64       `koanf:"rate_limit"`
}

// RealtimeConfig contains realtime gateway settings.
type RealtimeConfig struct {
	Enabled bool          `koanf:"enabled"`
	Timeout time.Duration `koanf:"timeout"`
}

// Default returns a Config populated with sane defaults. File and env
// values are layered on top by Load.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Directory: DirectoryConfig{
			Timeout: 5 * time.Second,
		},
		Dedup: DedupConfig{
			DefaultWindow:     30 * time.Second,
			MaxHistoryAge:     time.Hour,
			CleanupInterval:   5 * time.Minute,
			PersistentStorage: true,
		},
		RateLimits: map[string]RateLimitConfig{
			"per_minute": {Limit: 10, Window: time.Minute},
			"per_hour":   {Limit: 100, Window: time.Hour},
		},
		StatusWriter: StatusWriterConfig{
			QueueSize:         1024,
			NumWorkers:        2,
			MaxAttempts:       3,
			InitialBackoff:    time.Second,
			MaxBackoff:        time.Minute,
			BackoffMultiplier: 2.0,
		},
		Channels: ChannelsConfig{
			Push: PushConfig{
				Timeout:   10 * time.Second,
				RateLimit: 50,
			},
			Realtime: RealtimeConfig{
				Timeout: 5 * time.Second,
			},
		},
	}
}

// Load reads configuration from the given YAML file (optional, may be
// empty) and applies FIELDNOTIFY_* environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Dedup.PersistentStorage && c.Database.URL == "" {
		return errors.New("database.url is required when dedup.persistent_storage is enabled")
	}
	if c.Directory.URL == "" {
		return errors.New("directory.url is required")
	}
	if c.Dedup.DefaultWindow <= 0 {
		return errors.New("dedup.default_window must be positive")
	}
	if c.Dedup.CleanupInterval <= 0 {
		return errors.New("dedup.cleanup_interval must be positive")
	}
	for scope, rl := range c.RateLimits {
		if rl.Limit <= 0 {
			return fmt.Errorf("rate_limits.%s.limit must be positive", scope)
		}
		if rl.Window <= 0 {
			return fmt.Errorf("rate_limits.%s.window must be positive", scope)
		}
	}
	if c.Channels.Push.Enabled && c.Channels.Push.ProviderURL == "" {
		return errors.New("channels.push.provider_url is required when push is enabled")
	}
	return nil
}
