// Package config provides configuration structures and loading logic for spanscope.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend kinds understood by BackendConfig.Kind.
const (
	BackendNative = "native"
	BackendTempo  = "tempo"
)

// MaxSearchLimit bounds the recent-traces window requested from the backend.
const MaxSearchLimit = 20

// Config represents the root configuration structure for spanscope.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Viewer    ViewerConfig    `mapstructure:"viewer"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig defines application-level settings such as host and port.
type AppConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// BackendConfig defines how to reach the trace-query service.
type BackendConfig struct {
	Kind        string `mapstructure:"kind"`
	URL         string `mapstructure:"url"`
	Timeout     string `mapstructure:"timeout"`
	SearchLimit int    `mapstructure:"search_limit"`
}

// ViewerConfig defines the behaviour of the list and detail views.
type ViewerConfig struct {
	RefreshInterval string `mapstructure:"refresh_interval"`
	MaxSessions     int    `mapstructure:"max_sessions"`
}

// TelemetryConfig defines where spanscope exports its own traces. An empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// GetTimeoutDuration returns the timeout as a time.Duration
func (c *BackendConfig) GetTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetSearchLimit clamps the configured page size to [1, MaxSearchLimit].
func (c *BackendConfig) GetSearchLimit() int {
	if c.SearchLimit <= 0 || c.SearchLimit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return c.SearchLimit
}

// KindName returns the normalized backend kind
func (c *BackendConfig) KindName() string {
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	if kind == "" {
		return BackendNative
	}
	return kind
}

// GetRefreshIntervalDuration parses the list polling interval into a time.Duration.
func (c *ViewerConfig) GetRefreshIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.RefreshInterval)
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetMaxSessions returns how many viewer sessions keep a detail view alive.
func (c *ViewerConfig) GetMaxSessions() int {
	if c.MaxSessions <= 0 {
		return 256
	}
	return c.MaxSessions
}

// SlogLevel maps log_level onto a slog.Level, defaulting to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr returns host:port for the HTTP listener
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks settings that would otherwise fail later at request time.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url must be set")
	}
	switch c.Backend.KindName() {
	case BackendNative, BackendTempo:
	default:
		return fmt.Errorf("unsupported backend.kind %q", c.Backend.Kind)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app.port %d", c.App.Port)
	}
	return nil
}

// Load loads configuration from config.yaml or environment variables
func Load() (*Config, error) {
	// A missing .env file is fine; anything it sets is picked up by AutomaticEnv below.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/spanscope")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Allow environment variables to override config
	v.SetEnvPrefix("spanscope")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("backend.kind", BackendNative)
	v.SetDefault("backend.url", "http://localhost:8002")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.search_limit", MaxSearchLimit)
	v.SetDefault("viewer.refresh_interval", "5s")
	v.SetDefault("viewer.max_sessions", 256)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "spanscope")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
