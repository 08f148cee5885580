package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"marketdash/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for marketdash.
type Config struct {
	Storage Storage               `yaml:"storage"`
	Logging Logging               `yaml:"logging"`
	Reddit  Reddit                `yaml:"reddit"`
	Feeds   Feeds                 `yaml:"feeds"`
	Polling Polling               `yaml:"polling"`
	Quotes  Quotes                `yaml:"quotes"`
	Alpaca  Alpaca                `yaml:"alpaca"`
	Market  Market                `yaml:"market"`
	Columns []domain.ColumnConfig `yaml:"columns"` // default column set
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ArchiveDir string `yaml:"archive_dir"` // empty disables the Parquet archive
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Reddit configures the listing transport.
type Reddit struct {
	BaseURL         string        `yaml:"base_url"`
	PermalinkBase   string        `yaml:"permalink_base"`
	UserAgent       string        `yaml:"user_agent"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Limit           int           `yaml:"limit"`
}

// Feeds configures the syndication feed transport.
type Feeds struct {
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Polling holds the per-adapter refresh cadence. Listing intervals are
// multiplied by RefreshMultiplier.
type Polling struct {
	RefreshMultiplier int           `yaml:"refresh_multiplier"`
	HotInterval       time.Duration `yaml:"hot_interval"`
	RisingInterval    time.Duration `yaml:"rising_interval"`
	NewInterval       time.Duration `yaml:"new_interval"`
	NewJitter         time.Duration `yaml:"new_jitter"`
	FeedInterval      time.Duration `yaml:"feed_interval"`
	DefaultInterval   time.Duration `yaml:"default_interval"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
}

// Quotes selects and tunes the quote provider.
type Quotes struct {
	Provider     string        `yaml:"provider"` // "finnhub", "alpaca" or "none"
	FinnhubURL   string        `yaml:"finnhub_url"`
	FinnhubToken string        `yaml:"finnhub_token"`
	Timeout      time.Duration `yaml:"timeout"`
	Concurrency  int           `yaml:"concurrency"`
	Attempts     int           `yaml:"attempts"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Market describes the exchange session used by the countdown clock.
type Market struct {
	Timezone string           `yaml:"timezone"`
	Open     string           `yaml:"open"`  // HH:MM local
	Close    string           `yaml:"close"` // HH:MM local
	Holidays map[int][]string `yaml:"holidays"`
}

// Quote provider names.
const (
	ProviderFinnhub = "finnhub"
	ProviderAlpaca  = "alpaca"
	ProviderNone    = "none"
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		applyEnvOverrides(cfg)
		cfg.ApplyDefaults()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("QUOTE_PROVIDER"); v != "" {
		cfg.Quotes.Provider = v
	}
	if v := os.Getenv("FINNHUB_TOKEN"); v != "" {
		cfg.Quotes.FinnhubToken = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	p := c.Polling
	if !(p.NewInterval < p.RisingInterval && p.RisingInterval < p.HotInterval) {
		return fmt.Errorf("polling: intervals must satisfy new < rising < hot (got %s, %s, %s)",
			p.NewInterval, p.RisingInterval, p.HotInterval)
	}
	if p.NewJitter < 0 {
		return fmt.Errorf("polling: new_jitter must not be negative")
	}

	switch c.Quotes.Provider {
	case ProviderFinnhub, ProviderAlpaca, ProviderNone:
	default:
		return fmt.Errorf("quotes: unknown provider %q", c.Quotes.Provider)
	}

	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market: loading timezone %q: %w", c.Market.Timezone, err)
	}

	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if err := col.Validate(); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
		if seen[col.ID] {
			return fmt.Errorf("columns: duplicate id %q", col.ID)
		}
		seen[col.ID] = true
	}
	return nil
}
