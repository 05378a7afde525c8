// Package config loads the YAML configuration file and applies environment
// variable overrides on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the marketsched tools.
type Config struct {
	Cache   Cache   `yaml:"cache"`
	Journal Journal `yaml:"journal"`
	Fetch   Fetch   `yaml:"fetch"`
	Refresh Refresh `yaml:"refresh"`
	Logging Logging `yaml:"logging"`
}

// Cache holds the snapshot directory and validity window.
type Cache struct {
	Dir string   `yaml:"dir"`
	TTL Duration `yaml:"ttl"`
}

// Journal configures the refresh history database.
type Journal struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Fetch controls downloads from the official data endpoints.
type Fetch struct {
	Timeout         Duration `yaml:"timeout"`
	MaxRetries      int      `yaml:"max_retries"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	SQURLTemplate   string   `yaml:"sq_url_template"`
	HolidayURL      string   `yaml:"holiday_url"`
	YearsAhead      int      `yaml:"years_ahead"`
}

// Refresh configures the scheduled refresh daemon.
type Refresh struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "24h" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ---------------------------------------------------------------------------
// Defaults and loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration. The snapshot directory lives
// under the user cache directory; the journal database sits next to it.
func Default() *Config {
	cacheDir := "."
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "marketsched")
	}

	return &Config{
		Cache: Cache{
			Dir: cacheDir,
			TTL: Duration(24 * time.Hour),
		},
		Journal: Journal{
			SQLitePath: filepath.Join(cacheDir, "journal.db"),
		},
		Fetch: Fetch{
			Timeout:         Duration(30 * time.Second),
			MaxRetries:      3,
			RateLimitPerMin: 30,
			SQURLTemplate:   "https://www.jpx.co.jp/derivatives/rules/last-trading-day/tvdivq0000004gz8-att/%d_indexfutures_options_1_j.xlsx",
			HolidayURL:      "https://www.jpx.co.jp/derivatives/rules/holidaytrading/nlsgeu000006hweb-att/nlsgeu000006jgee.xlsx",
			YearsAhead:      1,
		},
		Refresh: Refresh{
			Cron:       "30 7 * * *",
			RunOnStart: false,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path if path
// is non-empty, and finally environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MKS_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("MKS_SQLITE_PATH"); v != "" {
		cfg.Journal.SQLitePath = v
	}
	if v := os.Getenv("MKS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MKS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration for values the rest of the program
// cannot work with.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("config: cache.dir must not be empty")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("config: fetch.timeout must be positive")
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("config: fetch.max_retries must be at least 1")
	}
	if c.Fetch.YearsAhead < 0 {
		return fmt.Errorf("config: fetch.years_ahead must not be negative")
	}
	if !strings.Contains(c.Fetch.SQURLTemplate, "%d") {
		return fmt.Errorf("config: fetch.sq_url_template must contain a %%d year placeholder")
	}
	if c.Fetch.HolidayURL == "" {
		return fmt.Errorf("config: fetch.holiday_url must not be empty")
	}
	return nil
}
