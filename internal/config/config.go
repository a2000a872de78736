// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package config loads Natours configuration from defaults, an optional YAML
// file, NATOURS_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/xdg"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: NATOURS_AUTH__JWT_SECRET sets auth.jwt_secret.
const EnvPrefix = "NATOURS_"

// Config is the full application configuration.
type Config struct {
	Env       string          `koanf:"env"`
	HTTP      HTTPConfig      `koanf:"http"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Redis     RedisConfig     `koanf:"redis"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Log       LogConfig       `koanf:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	PublicURL      string        `koanf:"public_url"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	CORSOrigins    []string      `koanf:"cors_origins"`

	// TrustProxyHeaders reads the client address from forwarding headers.
	// Leave off unless a reverse proxy sets them.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// AuthConfig configures sessions and password handling.
type AuthConfig struct {
	JWTSecret     string          `koanf:"jwt_secret"`
	TokenTTL      time.Duration   `koanf:"token_ttl"`
	CookieName    string          `koanf:"cookie_name"`
	CookieDays    int             `koanf:"cookie_days"`
	ResetTokenTTL time.Duration   `koanf:"reset_token_ttl"`
	Hash          auth.HashParams `koanf:"hash"`
}

// SMTPConfig configures outbound mail. An empty Host logs mail instead of
// sending it, which production rejects.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// RedisConfig configures the rate limiter store. An empty Addr disables rate
// limiting.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// RateLimitConfig is a token bucket per client IP.
type RateLimitConfig struct {
	Limit  int           `koanf:"limit"`
	Period time.Duration `koanf:"period"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Env: EnvDevelopment,
		HTTP: HTTPConfig{
			Addr:           ":3000",
			PublicURL:      "http://localhost:3000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    2 * time.Minute,
			RequestTimeout: 20 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			ConnectRetries: 6,
		},
		Auth: AuthConfig{
			TokenTTL:      auth.DefaultTokenTTL,
			CookieName:    "jwt",
			CookieDays:    90,
			ResetTokenTTL: auth.DefaultResetTokenTTL,
			Hash:          auth.DefaultHashParams(),
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "Natours <hello@natours.io>",
		},
		RateLimit: RateLimitConfig{
			Limit:  100,
			Period: time.Hour,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"env":                 "env",
	"http-addr":           "http.addr",
	"public-url":          "http.public_url",
	"metrics-addr":        "metrics.addr",
	"database-url":        "database.url",
	"redis-addr":          "redis.addr",
	"trust-proxy-headers": "http.trust_proxy_headers",
	"log-format":          "log.format",
	"log-level":           "log.level",
}

// FlagConfigFile names the flag holding the YAML file path.
const FlagConfigFile = "config"

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String(FlagConfigFile, "", "path to a YAML configuration file")
	fs.String("env", d.Env, "environment (development or production)")
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("public-url", d.HTTP.PublicURL, "public base URL used in emailed links")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
	fs.String("redis-addr", "", "Redis address for rate limiting (empty = disabled)")
	fs.Bool("trust-proxy-headers", false, "take client IPs from X-Forwarded-For/X-Real-IP")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// Load builds a Config. fs may be nil; otherwise only flags the user actually
// set override lower layers.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path := configPath(fs); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "read config file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read environment").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read flags").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}

	// Conventional names used by hosting platforms.
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}

	return &cfg, nil
}

// configPath returns the --config flag value, or the XDG config file when
// that exists.
func configPath(fs *pflag.FlagSet) string {
	if fs != nil {
		if path, _ := fs.GetString(FlagConfigFile); path != "" {
			return path
		}
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// envKey turns NATOURS_AUTH__JWT_SECRET into auth.jwt_secret.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// SlogLevel converts Log.Level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return invalid("env", "env must be 'development' or 'production', got %q", c.Env)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if c.Database.URL == "" {
		return invalid("database.url", "database URL is required (set --database-url or DATABASE_URL)")
	}
	return nil
}

// ValidateServe additionally checks what the API server needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	if len(c.Auth.JWTSecret) < auth.MinTokenSecretLength {
		return invalid("auth.jwt_secret", "jwt secret must be at least %d bytes", auth.MinTokenSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return invalid("auth.token_ttl", "token TTL must be positive")
	}
	if c.Auth.CookieDays <= 0 {
		return invalid("auth.cookie_days", "cookie lifetime must be positive")
	}
	if c.Auth.ResetTokenTTL <= 0 {
		return invalid("auth.reset_token_ttl", "reset token TTL must be positive")
	}
	if err := c.Auth.Hash.Validate(); err != nil {
		return err
	}
	if c.Redis.Addr != "" && (c.RateLimit.Limit <= 0 || c.RateLimit.Period <= 0) {
		return invalid("rate_limit", "rate limit and period must be positive")
	}
	if c.IsProduction() && c.SMTP.Host == "" {
		return invalid("smtp.host", "production requires an SMTP host")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}
