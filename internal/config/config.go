// Package config loads and validates coordinator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Snapshots   SnapshotsConfig   `mapstructure:"snapshots"`
	Pages       PagesConfig       `mapstructure:"pages"`
	Blobs       BlobsConfig       `mapstructure:"blobs"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `mapstructure:"port"`
	ReadTimeoutSec    int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSec   int `mapstructure:"write_timeout_seconds"`
	ShutdownGraceSec  int `mapstructure:"shutdown_grace_seconds"`
	MaxRequestBodyKiB int `mapstructure:"max_request_body_kib"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SnapshotsConfig selects the snapshot store backend.
type SnapshotsConfig struct {
	Provider string      `mapstructure:"provider"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds connection parameters for the Redis snapshot store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PagesConfig selects the page-metadata store backend.
type PagesConfig struct {
	Provider string   `mapstructure:"provider"`
	DB       DBConfig `mapstructure:"db"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifeMins int    `mapstructure:"max_conn_life_minutes"`
}

// BlobsConfig selects the page-content store backend.
type BlobsConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
}

// MaintenanceConfig controls the embedded maintenance ticker.
type MaintenanceConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COORDINATOR")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.shutdown_grace_seconds", 15)
	v.SetDefault("server.max_request_body_kib", 1024)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("snapshots.provider", "memory")
	v.SetDefault("snapshots.redis.addr", "localhost:6379")
	v.SetDefault("snapshots.redis.db", 0)
	v.SetDefault("pages.provider", "memory")
	v.SetDefault("pages.db.table", "pages")
	v.SetDefault("pages.db.max_conns", 8)
	v.SetDefault("pages.db.min_conns", 1)
	v.SetDefault("pages.db.max_conn_life_minutes", 30)
	v.SetDefault("blobs.provider", "memory")
	v.SetDefault("blobs.local_dir", "./data/blobs")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("maintenance.interval_seconds", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Snapshots.Provider {
	case "memory":
	case "redis":
		if c.Snapshots.Redis.Addr == "" {
			return fmt.Errorf("snapshots.redis.addr must be set when snapshots.provider is redis")
		}
	default:
		return fmt.Errorf("unknown snapshots.provider %q", c.Snapshots.Provider)
	}
	switch c.Pages.Provider {
	case "memory", "none":
	case "postgres":
		if c.Pages.DB.DSN == "" {
			return fmt.Errorf("pages.db.dsn must be set when pages.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown pages.provider %q", c.Pages.Provider)
	}
	switch c.Blobs.Provider {
	case "memory", "none":
	case "local":
		if c.Blobs.LocalDir == "" {
			return fmt.Errorf("blobs.local_dir must be set when blobs.provider is local")
		}
	case "gcs":
		if c.Blobs.GCSBucket == "" {
			return fmt.Errorf("blobs.gcs_bucket must be set when blobs.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown blobs.provider %q", c.Blobs.Provider)
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	if c.Maintenance.IntervalSeconds <= 0 {
		return fmt.Errorf("maintenance.interval_seconds must be > 0")
	}
	return nil
}

// MaintenanceInterval returns the maintenance ticker period.
func (c Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.Maintenance.IntervalSeconds) * time.Second
}

// ShutdownGrace returns the graceful shutdown budget.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Server.ShutdownGraceSec) * time.Second
}
