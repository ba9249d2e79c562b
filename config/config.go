// Package config loads the storefront settings from the environment, an
// optional .env file and command line flags.
package config

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/sys"
	"github.com/agentuity/storefront/telemetry"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionSQLite = "sqlite"
)

// Config is the runtime configuration.
type Config struct {
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	AssetsBucket       string `env:"SUPABASE_ASSETS_BUCKET" envDefault:"assets"`

	SecretKey     string `env:"SECRET_KEY"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	Port          int    `env:"PORT" envDefault:"5000"`

	CacheDir    string        `env:"MENU_CACHE_DIR" envDefault:"cache"`
	CacheTTL    time.Duration `env:"MENU_CACHE_TTL" envDefault:"30s"`
	MirrorRetry time.Duration `env:"MENU_MIRROR_RETRY" envDefault:"30s"`
	SQLitePath  string        `env:"MENU_SQLITE_PATH"`
	PublicURL   string        `env:"MENU_PUBLIC_URL"`

	RedisURL          string        `env:"REDIS_URL"`
	SessionBackend    string        `env:"MENU_SESSION_BACKEND" envDefault:"memory"`
	SessionSQLitePath string        `env:"MENU_SESSION_SQLITE_PATH" envDefault:"sessions.db"`
	SessionTTL        time.Duration `env:"MENU_SESSION_TTL" envDefault:"24h"`

	LogLevel  string `env:"MENU_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"MENU_LOG_FORMAT" envDefault:"auto"`
	OTLPURL   string `env:"MENU_OTLP_URL"`
	OTLPToken string `env:"MENU_OTLP_TOKEN"`
}

// Load reads envFile (when it exists) into the environment and parses the
// result.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return Config{}, err
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

// Parse builds a Config from the given variables only.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	return cfg, nil
}

// SupabaseKey returns the service role key, falling back to the anon key.
func (c Config) SupabaseKey() string {
	if c.SupabaseServiceKey != "" {
		return c.SupabaseServiceKey
	}
	return c.SupabaseAnonKey
}

// UseSQLite reports whether the local SQLite store replaces the hosted one.
func (c Config) UseSQLite() bool {
	return c.SQLitePath != ""
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// BaseURL is used to build public asset links for the SQLite store.
func (c Config) BaseURL() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return "http://localhost" + c.Addr()
}

// SecureCookies reports whether the session cookie needs the Secure flag.
func (c Config) SecureCookies() bool {
	return sys.IsSecureURL(c.PublicURL)
}

// ValidateStore checks that a remote store is configured.
func (c Config) ValidateStore() error {
	if c.UseSQLite() {
		return nil
	}
	if c.SupabaseURL == "" || c.SupabaseKey() == "" {
		return errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY (or SUPABASE_ANON_KEY) are required unless MENU_SQLITE_PATH is set")
	}
	return nil
}

// ValidateServer checks the settings needed to serve HTTP.
func (c Config) ValidateServer() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("invalid PORT %d", c.Port)
	}
	switch c.SessionBackend {
	case SessionMemory, SessionSQLite:
	case SessionRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis session backend")
		}
	default:
		return errors.Newf("unknown MENU_SESSION_BACKEND %q", c.SessionBackend)
	}
	return nil
}

// ApplyFlags overrides values with the command line flags that were set.
func (c *Config) ApplyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("log-level", &c.LogLevel)
	str("log-format", &c.LogFormat)
	str("cache-dir", &c.CacheDir)
	str("sqlite", &c.SQLitePath)
	str("otlp-url", &c.OTLPURL)
	str("session-backend", &c.SessionBackend)
	if flags.Changed("port") {
		c.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cache-ttl") {
		c.CacheTTL, _ = flags.GetDuration("cache-ttl")
	}
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// NewLogger returns the console or JSON logger at the configured level. The
// "auto" format picks JSON when running detached inside a container.
func (c Config) NewLogger() logger.Logger {
	log.SetFlags(0)
	level := logger.ParseLevel(c.LogLevel, logger.LevelInfo)
	format := strings.ToLower(c.LogFormat)
	if format == "json" || (format == "auto" && sys.PreferStructuredLogs()) {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}

// NewTelemetry stacks an OTLP exporter on base when MENU_OTLP_URL is set.
func (c Config) NewTelemetry(ctx context.Context, base logger.Logger, serviceName string) (logger.Logger, func(), error) {
	if c.OTLPURL == "" {
		return base, func() {}, nil
	}
	log, shutdown, err := telemetry.New(ctx, serviceName, c.OTLPURL, c.OTLPToken, base)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating telemetry")
	}
	return log, shutdown, nil
}
