package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
)

type Config struct {
	// HTTP server
	Port string `env:"PORT" envDefault:"8081"`

	// Storage backend: sqlite or memory
	DataBackend  string `env:"DATA_BACKEND" envDefault:"sqlite"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/fintrack.db"`

	// AMQP is optional; ledger events are only published when AMQP_URL is set.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"fintrack"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"ledger_events"`

	Rates Rates

	// Worker
	BackupDir  string `env:"BACKUP_DIR" envDefault:"./data/backups"`
	BackupKeep int    `env:"BACKUP_KEEP" envDefault:"10"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Locale   string `env:"LOCALE"`
}

type Rates struct {
	// ServiceURL is the rate service the tracker polls. Empty means the
	// in-process provider is used directly.
	ServiceURL      string        `env:"RATES_SERVICE_URL"`
	UpstreamURL     string        `env:"RATES_UPSTREAM_URL" envDefault:"https://open.er-api.com/v6/latest"`
	RefreshInterval time.Duration `env:"RATES_REFRESH_INTERVAL" envDefault:"30m"`
	CacheTTL        time.Duration `env:"RATES_CACHE_TTL" envDefault:"30m"`
	Timeout         time.Duration `env:"RATES_TIMEOUT" envDefault:"10s"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Locale == "" {
		cfg.Locale = localeFromEnv()
	}
	return cfg, nil
}

// localeFromEnv derives a locale such as "en-GB" from LC_ALL or LANG.
func localeFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MONETARY", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of [sqlite memory]", c.DataBackend))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.Rates.ServiceURL != "" && !isHTTPURL(c.Rates.ServiceURL) {
		errs = append(errs, fmt.Sprintf("invalid RATES_SERVICE_URL '%s': must be an http(s) URL", c.Rates.ServiceURL))
	}
	if c.Rates.UpstreamURL == "" {
		errs = append(errs, "RATES_UPSTREAM_URL cannot be empty")
	} else if !isHTTPURL(c.Rates.UpstreamURL) {
		errs = append(errs, fmt.Sprintf("invalid RATES_UPSTREAM_URL '%s': must be an http(s) URL", c.Rates.UpstreamURL))
	}

	if c.Rates.RefreshInterval < time.Minute || c.Rates.RefreshInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid rates refresh interval %v: must be between 1 minute and 24 hours", c.Rates.RefreshInterval))
	}
	if c.Rates.CacheTTL <= 0 {
		errs = append(errs, fmt.Sprintf("invalid rates cache TTL %v: must be positive", c.Rates.CacheTTL))
	}
	if c.Rates.Timeout <= 0 || c.Rates.Timeout > time.Minute {
		errs = append(errs, fmt.Sprintf("invalid rates timeout %v: must be between 0 and 1 minute", c.Rates.Timeout))
	}

	if c.BackupKeep < 1 {
		errs = append(errs, fmt.Sprintf("invalid backup keep %d: must be at least 1", c.BackupKeep))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
