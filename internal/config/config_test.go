package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Fatalf("unexpected base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 5*time.Minute {
		t.Fatalf("expected 5m timeout, got %v", cfg.Backend.Timeout)
	}
	if cfg.Batch.Interval != 2*time.Second || cfg.Batch.MaxBackoff != 30*time.Second {
		t.Fatalf("unexpected batch defaults: %+v", cfg.Batch)
	}
	if cfg.Progress.CompleteDelay != time.Second || cfg.Progress.ErrorDelay != 2*time.Second {
		t.Fatalf("unexpected progress defaults: %+v", cfg.Progress)
	}
	if cfg.Storage.Backend != StorageLocal || cfg.DB.Table != "download_history" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Storage, cfg.DB)
	}
	if cfg.Transfer.RatePerSecond != 0 || cfg.Transfer.Burst != 1 {
		t.Fatalf("unexpected transfer throttle defaults: %+v", cfg.Transfer)
	}
	if cfg.KeepAlive.Interval != 10*time.Minute || cfg.PubSub.Enabled() {
		t.Fatalf("unexpected keepalive/pubsub defaults")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
backend:
  base_url: https://media.example.com
  api_prefix: /v2
  timeout: 30s
batch:
  interval: 500ms
  max_backoff: 10s
transfer:
  workers: 4
  queue_size: 16
  prefix: media
storage:
  backend: gcs
  gcs_bucket: media-bucket
db:
  dsn: postgres://localhost/mediavid
  table: history
pubsub:
  project_id: proj
  topic_name: notifications
keepalive:
  enabled: true
  interval: 5m
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://media.example.com" || cfg.Backend.APIPrefix != "/v2" {
		t.Fatalf("expected backend overrides: %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout != 30*time.Second || cfg.Batch.Interval != 500*time.Millisecond {
		t.Fatalf("expected duration overrides to apply")
	}
	if cfg.Transfer.Workers != 4 || cfg.Storage.GCSBucket != "media-bucket" {
		t.Fatalf("expected transfer/storage overrides")
	}
	if !cfg.PubSub.Enabled() || cfg.DB.Table != "history" {
		t.Fatalf("expected pubsub and db overrides")
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
}

// TestLoadEnvOverrides uses t.Setenv, which forbids t.Parallel.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MEDIAVID_BACKEND_BASE_URL", "http://10.0.0.5:8000")
	t.Setenv("MEDIAVID_BATCH_INTERVAL", "750ms")

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "http://10.0.0.5:8000" {
		t.Fatalf("expected env base url, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Batch.Interval != 750*time.Millisecond {
		t.Fatalf("expected env interval, got %v", cfg.Batch.Interval)
	}
}

// TestLoadReadsEnvFile checks dotenv values reach viper.
func TestLoadReadsEnvFile(t *testing.T) {
	const key = "MEDIAVID_TRANSFER_WORKERS"
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte(key+"=7\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Transfer.Workers != 7 {
		t.Fatalf("expected workers from env file, got %d", cfg.Transfer.Workers)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Backend:  BackendConfig{BaseURL: "http://localhost:8000", Timeout: time.Minute},
		Batch:    BatchConfig{Interval: time.Second},
		Transfer: TransferConfig{Workers: 1, QueueSize: 1},
		Storage:  StorageConfig{Backend: StorageMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Backend.BaseURL = "/api" }, "backend.base_url"},
		{"ftp base url", func(c *Config) { c.Backend.BaseURL = "ftp://host" }, "backend.base_url"},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, "backend.timeout"},
		{"zero interval", func(c *Config) { c.Batch.Interval = 0 }, "batch.interval"},
		{"zero workers", func(c *Config) { c.Transfer.Workers = 0 }, "transfer.workers"},
		{"negative rate", func(c *Config) { c.Transfer.RatePerSecond = -1 }, "transfer.rate_per_second"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = StorageGCS }, "storage.gcs_bucket"},
		{"local without dir", func(c *Config) { c.Storage.Backend = StorageLocal }, "storage.base_dir"},
		{"half pubsub", func(c *Config) { c.PubSub.ProjectID = "p" }, "pubsub"},
		{"keepalive interval", func(c *Config) { c.KeepAlive.Enabled = true }, "keepalive.interval"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
