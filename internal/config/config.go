package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	MarkerSQLite = "sqlite"
	MarkerRedis  = "redis"
	MarkerMemory = "memory"
)

// Config holds all configuration values. Every key can be set in the config
// file or through a MEETINGS_ prefixed environment variable, e.g.
// MEETINGS_DB_PATH.
type Config struct {
	Port      string `mapstructure:"port"`
	DBPath    string `mapstructure:"db_path"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	BaseURL   string `mapstructure:"base_url"`

	SeedFile  string `mapstructure:"seed_file"`
	WatchSeed bool   `mapstructure:"watch_seed"`

	DispatchSchedule string `mapstructure:"dispatch_schedule"`
	DispatchTimezone string `mapstructure:"dispatch_timezone"`
	DispatchOnStart  bool   `mapstructure:"dispatch_on_start"`

	MarkerBackend string `mapstructure:"marker_backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	PostmarkToken string  `mapstructure:"postmark_token"`
	FromEmail     string  `mapstructure:"from_email"`
	EmailRate     float64 `mapstructure:"email_rate"`

	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	VAPIDSubscriber string `mapstructure:"vapid_subscriber"`

	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`

	// RateLimit is the per-IP request allowance per minute on public endpoints.
	RateLimit int `mapstructure:"rate_limit"`
	// TrustProxyHeaders keys rate limits on CF-Connecting-IP and
	// X-Forwarded-For. Only enable behind a proxy that sets them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "meetings.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("seed_file", "")
	v.SetDefault("watch_seed", false)
	v.SetDefault("dispatch_schedule", "@hourly")
	v.SetDefault("dispatch_timezone", "UTC")
	v.SetDefault("dispatch_on_start", false)
	v.SetDefault("marker_backend", MarkerSQLite)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("postmark_token", "")
	v.SetDefault("from_email", "")
	v.SetDefault("email_rate", 10.0)
	v.SetDefault("vapid_public_key", "")
	v.SetDefault("vapid_private_key", "")
	v.SetDefault("vapid_subscriber", "")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_password_hash", "")
	v.SetDefault("rate_limit", 30)
	v.SetDefault("trust_proxy_headers", false)
}

// Load reads configuration from defaults, the optional file at path, and the
// environment, in increasing order of precedence. With an empty path a
// meetings.yaml in the working directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MEETINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("meetings")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.MarkerBackend {
	case MarkerSQLite, MarkerMemory:
	case MarkerRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis marker backend")
		}
	default:
		return fmt.Errorf("marker_backend must be sqlite, redis or memory, got %q", c.MarkerBackend)
	}
	if strings.TrimSpace(c.DispatchSchedule) == "" {
		return fmt.Errorf("dispatch_schedule is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.EmailRate <= 0 {
		return fmt.Errorf("email_rate must be positive")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("vapid_public_key and vapid_private_key must be set together")
	}
	return nil
}

// Location is the time zone cron schedules are evaluated in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DispatchTimezone)
	if err != nil {
		return nil, fmt.Errorf("dispatch_timezone: %w", err)
	}
	return loc, nil
}

// EmailEnabled reports whether Postmark delivery is configured.
func (c *Config) EmailEnabled() bool {
	return c.PostmarkToken != "" && c.FromEmail != ""
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// AdminEnabled reports whether the admin API should be mounted.
func (c *Config) AdminEnabled() bool {
	return c.AdminUser != "" && c.AdminPasswordHash != ""
}
