// Package config loads and validates client configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix scopes environment overrides, e.g. MEDIAVID_BACKEND_BASE_URL.
const EnvPrefix = "MEDIAVID"

// DefaultEnvFile is read before the environment is consulted.
const DefaultEnvFile = ".env"

// Storage backends.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config captures all client configuration knobs loaded via Viper.
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Transfer  TransferConfig  `mapstructure:"transfer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	KeepAlive KeepAliveConfig `mapstructure:"keepalive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BackendConfig points at the media backend.
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIPrefix      string        `mapstructure:"api_prefix"`
	ProgressPrefix string        `mapstructure:"progress_prefix"`
	HealthPath     string        `mapstructure:"health_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// BatchConfig tunes queue polling.
type BatchConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// ProgressConfig tunes the push channel.
type ProgressConfig struct {
	CompleteDelay time.Duration `mapstructure:"complete_delay"`
	ErrorDelay    time.Duration `mapstructure:"error_delay"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
}

// TransferConfig sizes the local download pool.
type TransferConfig struct {
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
	Prefix    string `mapstructure:"prefix"`
	// RatePerSecond caps transfer starts; 0 is unlimited.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// StorageConfig selects where downloads are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig controls the optional download history database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig forwards notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications should be forwarded.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// ServerConfig controls the local status server.
type ServerConfig struct {
	Addr                string `mapstructure:"addr"`
	RecentNotifications int    `mapstructure:"recent_notifications"`
}

// KeepAliveConfig controls backend pinging.
type KeepAliveConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from env files, an optional config file and the
// environment. With no envFiles given, DefaultEnvFile is tried. Missing env
// files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.api_prefix", "/api")
	v.SetDefault("backend.progress_prefix", "/ws/progress")
	v.SetDefault("backend.health_path", "/health")
	v.SetDefault("backend.timeout", 5*time.Minute)
	v.SetDefault("backend.user_agent", "mediavid-client/0.1")
	v.SetDefault("batch.interval", 2*time.Second)
	v.SetDefault("batch.max_backoff", 30*time.Second)
	v.SetDefault("progress.complete_delay", time.Second)
	v.SetDefault("progress.error_delay", 2*time.Second)
	v.SetDefault("progress.ping_interval", 30*time.Second)
	v.SetDefault("transfer.workers", 2)
	v.SetDefault("transfer.queue_size", 64)
	v.SetDefault("transfer.prefix", "")
	v.SetDefault("transfer.rate_per_second", 0)
	v.SetDefault("transfer.burst", 1)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "downloads")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "download_history")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.addr", "127.0.0.1:9464")
	v.SetDefault("server.recent_notifications", 100)
	v.SetDefault("keepalive.enabled", false)
	v.SetDefault("keepalive.interval", 10*time.Minute)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be > 0")
	}
	if c.Batch.Interval <= 0 {
		return fmt.Errorf("batch.interval must be > 0")
	}
	if c.Batch.MaxBackoff < 0 {
		return fmt.Errorf("batch.max_backoff must be >= 0")
	}
	if c.Progress.CompleteDelay < 0 || c.Progress.ErrorDelay < 0 {
		return fmt.Errorf("progress delays must be >= 0")
	}
	if c.Transfer.Workers <= 0 {
		return fmt.Errorf("transfer.workers must be > 0")
	}
	if c.Transfer.QueueSize <= 0 {
		return fmt.Errorf("transfer.queue_size must be > 0")
	}
	if c.Transfer.RatePerSecond < 0 {
		return fmt.Errorf("transfer.rate_per_second must be >= 0")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory; got %q", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.KeepAlive.Enabled && c.KeepAlive.Interval <= 0 {
		return fmt.Errorf("keepalive.interval must be > 0 when keepalive is enabled")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}
