// Package config loads and validates service configuration via Viper.
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
	Source      SourceConfig      `mapstructure:"source"`
	DB          DBConfig          `mapstructure:"db"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Healthcheck HealthcheckConfig `mapstructure:"healthcheck"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig points at the upstream catalog page.
type SourceConfig struct {
	URL            string `mapstructure:"url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// SyncConfig governs the sync orchestrator.
type SyncConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// NotifyConfig governs digest dispatch.
type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Subject string `mapstructure:"subject"`
	From    string `mapstructure:"from"`
}

// SMTPConfig holds outbound mail transport settings. Credentials are
// expected via FORMATION_SMTP_* environment variables in production.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// HealthcheckConfig configures the dead-man's-switch ping. An empty URL
// disables the feature.
type HealthcheckConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RateLimitConfig governs the public-endpoint fixed-window limiter.
type RateLimitConfig struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
	SweepSeconds  int `mapstructure:"sweep_seconds"`
}

// SnapshotConfig selects the raw-HTML archive backend.
type SnapshotConfig struct {
	Provider  string `mapstructure:"provider"` // "none", "local" or "gcs"
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// SchedulerConfig enables the optional in-process sync cadence.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FORMATION")
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
	v.SetDefault("source.user_agent", "formation-sync/1.0")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("sync.chunk_size", 100)
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.subject", "Nouvelles formations")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("healthcheck.timeout_seconds", 10)
	v.SetDefault("ratelimit.limit", 60)
	v.SetDefault("ratelimit.window_seconds", 60)
	v.SetDefault("ratelimit.sweep_seconds", 300)
	v.SetDefault("snapshot.provider", "none")
	v.SetDefault("snapshot.prefix", "snapshots")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "0 7 * * *")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("sync.chunk_size must be > 0")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("ratelimit.limit and ratelimit.window_seconds must be > 0")
	}
	if c.Notify.Enabled {
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required when notify is enabled")
		}
		if c.Notify.From == "" {
			return fmt.Errorf("notify.from is required when notify is enabled")
		}
	}
	switch c.Snapshot.Provider {
	case "none", "local", "gcs":
	default:
		return fmt.Errorf("unknown snapshot provider: %s", c.Snapshot.Provider)
	}
	if c.Snapshot.Provider == "local" && c.Snapshot.LocalDir == "" {
		return fmt.Errorf("snapshot.local_dir is required for the local provider")
	}
	if c.Snapshot.Provider == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.gcs_bucket is required for the gcs provider")
	}
	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.cron is required when the scheduler is enabled")
	}
	return nil
}

// SourceTimeout returns the fetch timeout as a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// HealthcheckTimeout returns the ping timeout as a duration.
func (c Config) HealthcheckTimeout() time.Duration {
	return time.Duration(c.Healthcheck.TimeoutSeconds) * time.Second
}

// RateLimitWindow returns the limiter window as a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}
