// Package config provides configuration loading, validation, and hot
// reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Store     StoreConfig      `yaml:"store"`
	Redis     RedisConfig      `yaml:"redis"`
	Auth      AuthConfig       `yaml:"auth"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Usage     UsageConfig      `yaml:"usage"`
	Ledger    RemoteConfig     `yaml:"ledger"`
	Billing   RemoteConfig     `yaml:"billing"`
	Services  ServicesConfig   `yaml:"services"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig configures the document store backing credentials and
// usage records.
type StoreConfig struct {
	Driver   string `yaml:"driver"` // "memory", "sqlite", or "mongo"
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"` // mongo only
}

// RedisConfig configures the optional rate limit stats sink.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// AuthConfig configures credential validation.
type AuthConfig struct {
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	CacheSize   int           `yaml:"cache_size"`
	TokenSecret string        `yaml:"token_secret,omitempty"`
	OAuth       OAuthConfig   `yaml:"oauth"`
}

// OAuthConfig enables third-party token introspection providers.
type OAuthConfig struct {
	Google bool `yaml:"google"`
	GitHub bool `yaml:"github"`
}

// RateLimitConfig configures the window cache.
type RateLimitConfig struct {
	NumShards  int           `yaml:"num_shards"`
	Window     time.Duration `yaml:"window"`
	PruneEvery time.Duration `yaml:"prune_every"`
}

// UsageConfig configures usage metering.
type UsageConfig struct {
	BufferSize      int           `yaml:"buffer_size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	SlowThresholdMs int64         `yaml:"slow_threshold_ms"`
}

// RemoteConfig configures a remote service endpoint. An empty mode
// disables the integration.
type RemoteConfig struct {
	Mode    string            `yaml:"mode"` // "none" or "remote"
	URL     string            `yaml:"url,omitempty"`
	APIKey  string            `yaml:"api_key,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// ServicesConfig toggles degraded-mode behavior.
type ServicesConfig struct {
	UseMocks bool `yaml:"use_mocks"` // serve prefix-derived results on store failure
}

// EndpointConfig declares one registered endpoint.
type EndpointConfig struct {
	Path              string  `yaml:"path"`
	Method            string  `yaml:"method"`
	Version           string  `yaml:"version"`
	RequiredTier      string  `yaml:"required_tier"`
	BaseUnits         int64   `yaml:"base_units"`
	CostMultiplier    float64 `yaml:"cost_multiplier"`
	PremiumMultiplier float64 `yaml:"premium_multiplier"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Format   string `yaml:"format"`   // "json" or "console"
	Detailed bool   `yaml:"detailed"` // per-request debug lines
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file. ${VAR} references in the
// file expand from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment
// variables, for container deployments without a config file.
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// HasEnvConfig reports whether any GATEWAY_* configuration variable is
// set, meaning env-only startup is viable.
func HasEnvConfig() bool {
	for _, v := range []string{
		"GATEWAY_SERVER_PORT",
		"GATEWAY_STORE_DRIVER",
		"GATEWAY_STORE_DSN",
		"GATEWAY_LEDGER_URL",
		"GATEWAY_BILLING_URL",
	} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// LoadWithFallback tries the file first, then the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies GATEWAY_* environment variables.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEWAY_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GATEWAY_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GATEWAY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("GATEWAY_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("GATEWAY_STORE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("GATEWAY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("GATEWAY_AUTH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.CacheTTL = d
		}
	}
	if v := os.Getenv("GATEWAY_AUTH_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv("GATEWAY_LEDGER_URL"); v != "" {
		cfg.Ledger.URL = v
		cfg.Ledger.Mode = "remote"
	}
	if v := os.Getenv("GATEWAY_BILLING_URL"); v != "" {
		cfg.Billing.URL = v
		cfg.Billing.Mode = "remote"
	}
	if v := os.Getenv("GATEWAY_USE_MOCKS"); v != "" {
		cfg.Services.UseMocks = parseBool(v)
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GATEWAY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GATEWAY_LOG_DETAILED"); v != "" {
		cfg.Logging.Detailed = parseBool(v)
	}
	if v := os.Getenv("GATEWAY_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.DSN == "" && cfg.Store.Driver == "sqlite" {
		cfg.Store.DSN = "gateway.db"
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = "gateway"
	}

	if cfg.Auth.CacheTTL == 0 {
		cfg.Auth.CacheTTL = 5 * time.Minute
	}
	if cfg.Auth.CacheSize == 0 {
		cfg.Auth.CacheSize = 10000
	}

	if cfg.RateLimit.NumShards == 0 {
		cfg.RateLimit.NumShards = 32
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.PruneEvery == 0 {
		cfg.RateLimit.PruneEvery = 5 * time.Minute
	}

	if cfg.Usage.BufferSize == 0 {
		cfg.Usage.BufferSize = 100
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 10 * time.Second
	}
	if cfg.Usage.SlowThresholdMs == 0 {
		cfg.Usage.SlowThresholdMs = 1000
	}

	if cfg.Ledger.Mode == "" {
		cfg.Ledger.Mode = "none"
	}
	if cfg.Billing.Mode == "" {
		cfg.Billing.Mode = "none"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"memory": true, "sqlite": true, "mongo": true}
	if !validDrivers[cfg.Store.Driver] {
		return fmt.Errorf("store.driver must be 'memory', 'sqlite', or 'mongo', got %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "mongo" && cfg.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when store.driver is 'mongo'")
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis.enabled is true")
	}

	for _, rc := range []struct {
		name string
		cfg  RemoteConfig
	}{{"ledger", cfg.Ledger}, {"billing", cfg.Billing}} {
		switch rc.cfg.Mode {
		case "none", "remote":
		default:
			return fmt.Errorf("%s.mode must be 'none' or 'remote', got %q", rc.name, rc.cfg.Mode)
		}
		if rc.cfg.Mode == "remote" && rc.cfg.URL == "" {
			return fmt.Errorf("%s.url is required when %s.mode is 'remote'", rc.name, rc.name)
		}
	}

	for i, e := range cfg.Endpoints {
		if e.Path == "" {
			return fmt.Errorf("endpoints[%d].path is required", i)
		}
		if e.Version == "" {
			return fmt.Errorf("endpoints[%d].version is required", i)
		}
	}

	return nil
}
