// Package config loads the aggregator configuration from flags,
// environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultPort is used when no port is configured.
const DefaultPort = 3000

// EnvPrefix prefixes every environment variable except PORT and REDIS_URL.
const EnvPrefix = "SWAPI"

// Config holds the service configuration.
type Config struct {
	Port            int           `mapstructure:"port"`
	UpstreamURL     string        `mapstructure:"upstream_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RedisURL        string        `mapstructure:"redis_url"`
	LogLevel        string        `mapstructure:"log_level"`
	LogPretty       bool          `mapstructure:"log_pretty"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Port:            DefaultPort,
		UpstreamURL:     swapi.DefaultBaseURL,
		RequestTimeout:  15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        string(logging.LevelInfo),
		UserAgent:       "swapi-aggregator/dev",
	}
}

// flag name -> config key
var flagKeys = map[string]string{
	"port":             "port",
	"upstream-url":     "upstream_url",
	"request-timeout":  "request_timeout",
	"shutdown-timeout": "shutdown_timeout",
	"redis-url":        "redis_url",
	"log-level":        "log_level",
	"log-pretty":       "log_pretty",
	"user-agent":       "user_agent",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("port", d.Port, "HTTP listen port (env PORT)")
	fs.String("upstream-url", d.UpstreamURL, "SWAPI base URL")
	fs.Duration("request-timeout", d.RequestTimeout, "timeout per upstream request")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
	fs.String("redis-url", d.RedisURL, "Redis address or redis:// URL for status tracking (env REDIS_URL, empty disables)")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.Bool("log-pretty", d.LogPretty, "human-readable console logs")
	fs.String("user-agent", d.UserAgent, "User-Agent sent to SWAPI")
}

// Load resolves the configuration with precedence flag > env > file > default.
// fs may be nil; configFile may be empty.
func Load(fs *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("port", d.Port)
	v.SetDefault("upstream_url", d.UpstreamURL)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("redis_url", d.RedisURL)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("user_agent", d.UserAgent)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", EnvPrefix+"_PORT", "PORT"); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("redis_url", EnvPrefix+"_REDIS_URL", "REDIS_URL"); err != nil {
		return Config{}, err
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be in 1..65535 (got %d)", ErrInvalidConfig, c.Port)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}

	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: upstream_url must be an absolute http(s) URL (got %q)", ErrInvalidConfig, c.UpstreamURL)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("%w: user_agent is required", ErrInvalidConfig)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if _, err := c.RedisOptions(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// RedisOptions returns the Redis connection options, or nil if status
// tracking is disabled. Both "host:port" and redis:// URLs are accepted.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis_url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

// LoggingConfig returns the logger configuration derived from c.
func (c Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		lc.Level = level
	}
	lc.Pretty = c.LogPretty
	return lc
}
