package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/linkside/gateway/adapters/metrics"
	"github.com/linkside/gateway/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
store:
  driver: memory
endpoints:
  - path: /courses
    version: v1
    required_tier: free
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.CacheTTL != 5*time.Minute {
		t.Errorf("cache ttl = %v, want 5m", cfg.Auth.CacheTTL)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("window = %v, want 1m", cfg.RateLimit.Window)
	}
	if cfg.Ledger.Mode != "none" || cfg.Billing.Mode != "none" {
		t.Errorf("remote modes = %q/%q, want none", cfg.Ledger.Mode, cfg.Billing.Mode)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].Path != "/courses" {
		t.Errorf("endpoints = %+v", cfg.Endpoints)
	}
}

func TestLoad_ParsesDurations(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: memory
server:
  read_timeout: 15s
auth:
  cache_ttl: 90s
usage:
  flush_interval: 2m
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.CacheTTL != 90*time.Second {
		t.Errorf("cache ttl = %v", cfg.Auth.CacheTTL)
	}
	if cfg.Usage.FlushInterval != 2*time.Minute {
		t.Errorf("flush interval = %v", cfg.Usage.FlushInterval)
	}
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("TEST_TOKEN_SECRET", "s3cret")
	path := writeConfig(t, `
store:
  driver: memory
auth:
  token_secret: ${TEST_TOKEN_SECRET}
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.TokenSecret != "s3cret" {
		t.Errorf("token secret = %q", cfg.Auth.TokenSecret)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("GATEWAY_SERVER_PORT", "7070")
	t.Setenv("GATEWAY_REDIS_ADDR", "localhost:6379")
	t.Setenv("GATEWAY_LEDGER_URL", "https://ledger.internal")
	t.Setenv("GATEWAY_METRICS_ENABLED", "yes")

	path := writeConfig(t, `
server:
  port: 9090
store:
  driver: memory
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis = %+v, want enabled by env", cfg.Redis)
	}
	if cfg.Ledger.Mode != "remote" || cfg.Ledger.URL != "https://ledger.internal" {
		t.Errorf("ledger = %+v, want remote mode from env", cfg.Ledger)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics not enabled by env")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_STORE_DRIVER", "memory")
	t.Setenv("GATEWAY_SERVER_PORT", "8181")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown driver",
			yaml:    "store:\n  driver: cassandra\n",
			wantErr: "store.driver",
		},
		{
			name:    "redis without addr",
			yaml:    "store:\n  driver: memory\nredis:\n  enabled: true\n",
			wantErr: "redis.addr",
		},
		{
			name:    "remote ledger without url",
			yaml:    "store:\n  driver: memory\nledger:\n  mode: remote\n",
			wantErr: "ledger.url",
		},
		{
			name:    "bad remote mode",
			yaml:    "store:\n  driver: memory\nbilling:\n  mode: local\n",
			wantErr: "billing.mode",
		},
		{
			name:    "endpoint missing version",
			yaml:    "store:\n  driver: memory\nendpoints:\n  - path: /courses\n",
			wantErr: "version is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("Load() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestHasEnvConfig(t *testing.T) {
	for _, v := range []string{
		"GATEWAY_SERVER_PORT", "GATEWAY_STORE_DRIVER", "GATEWAY_STORE_DSN",
		"GATEWAY_LEDGER_URL", "GATEWAY_BILLING_URL",
	} {
		t.Setenv(v, "")
	}
	if config.HasEnvConfig() {
		t.Error("HasEnvConfig() = true with no variables set")
	}

	t.Setenv("GATEWAY_STORE_DRIVER", "memory")
	if !config.HasEnvConfig() {
		t.Error("HasEnvConfig() = false with GATEWAY_STORE_DRIVER set")
	}
}

func TestHolder_ReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nstore:\n  driver: memory\n")

	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder() error = %v", err)
	}
	defer holder.Stop()

	if err := os.WriteFile(path, []byte("store:\n  driver: cassandra\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("Reload() succeeded with invalid config")
	}
	if holder.Get().Server.Port != 9090 {
		t.Errorf("port = %d, old config not retained", holder.Get().Server.Port)
	}
}

func TestHolder_OnChangeFiresAfterReload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nstore:\n  driver: memory\n")

	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder() error = %v", err)
	}
	defer holder.Stop()

	var gotPort int
	holder.OnChange(func(cfg *config.Config) { gotPort = cfg.Server.Port })

	if err := os.WriteFile(path, []byte("server:\n  port: 9191\nstore:\n  driver: memory\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if gotPort != 9191 {
		t.Errorf("callback port = %d, want 9191", gotPort)
	}
}

func TestHolder_CountsReloadMetrics(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nstore:\n  driver: memory\n")

	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder() error = %v", err)
	}
	defer holder.Stop()

	collector := metrics.NewWithRegistry(prometheus.NewRegistry())
	holder.SetMetrics(collector)

	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := testutil.ToFloat64(collector.ConfigReloads); got != 1 {
		t.Errorf("reloads = %v, want 1", got)
	}

	if err := os.WriteFile(path, []byte("store:\n  driver: cassandra\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("Reload() succeeded with invalid config")
	}
	if got := testutil.ToFloat64(collector.ConfigReloadErrors); got != 1 {
		t.Errorf("reload errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.ConfigReloads); got != 1 {
		t.Errorf("reloads after failed reload = %v, want 1", got)
	}
}
