// Package config loads folio settings from YAML, command line flags and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/folio/internal/domain"
)

const (
	DriverMemory   = "memory"
	DriverWAL      = "wal"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	ProviderBrapi       = "brapi"
	ProviderBinance     = "binance"
	ProviderBybit       = "bybit"
	ProviderHyperliquid = "hyperliquid"

	defaultListenAddr     = ":8080"
	defaultDataDir        = "data"
	defaultBrapiURL       = "https://brapi.dev/api"
	defaultHyperliquidURL = "https://api.hyperliquid.xyz"
	defaultQuoteTimeout   = 5 * time.Second
	defaultRetries        = 2
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultTimezone       = "America/Sao_Paulo"
	defaultConcurrency    = 4
	defaultKafkaTopic     = "folio.events"
	defaultEventBuffer    = 64
	defaultMaxConflicts   = 8
)

var defaultSchedules = []string{"0 10 * * 1-5", "0 15 * * 1-5", "30 17 * * 1-5"}

type StorageConfig struct {
	Driver string
	// Dir holds the WAL segments or the sqlite file.
	Dir string
	DSN string
}

type QuotesConfig struct {
	Providers      []string
	BrapiURL       string
	HyperliquidURL string
	// Timeout bounds a single provider attempt.
	Timeout time.Duration
	// TotalTimeout bounds one symbol lookup across every provider and retry.
	TotalTimeout      time.Duration
	Retries           int
	RetryBackoff      time.Duration
	DefaultAssetClass domain.AssetClass
}

type SyncConfig struct {
	Schedules   []string
	Location    *time.Location
	Concurrency int
}

type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	Buffer       int
}

// Credentials secrets read from the environment, never from YAML.
type Credentials struct {
	BrapiToken       string
	BinanceAPIKey    string
	BinanceAPISecret string
	BybitAPIKey      string
	BybitAPISecret   string
}

type Config struct {
	ListenAddr         string
	LogLevel           string
	Storage            StorageConfig
	Quotes             QuotesConfig
	Sync               SyncConfig
	Events             EventsConfig
	MaxConflictRetries int
	Credentials        Credentials
}

// ConfigTmp raw YAML document.
type ConfigTmp struct {
	ListenAddr string     `yaml:"listen_addr,omitempty"`
	LogLevel   string     `yaml:"log_level,omitempty"`
	Storage    StorageTmp `yaml:"storage"`
	Quotes     QuotesTmp  `yaml:"quotes"`
	Sync       SyncTmp    `yaml:"sync"`
	Events     EventsTmp  `yaml:"events,omitempty"`
	Ledger     LedgerTmp  `yaml:"ledger,omitempty"`
}

type StorageTmp struct {
	Driver string `yaml:"driver,omitempty"`
	Dir    string `yaml:"dir,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

type QuotesTmp struct {
	Providers         []string      `yaml:"providers,omitempty"`
	BrapiURL          string        `yaml:"brapi_url,omitempty"`
	HyperliquidURL    string        `yaml:"hyperliquid_url,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	TotalTimeout      time.Duration `yaml:"total_timeout,omitempty"`
	Retries           *int          `yaml:"retries,omitempty"`
	RetryBackoff      time.Duration `yaml:"retry_backoff,omitempty"`
	DefaultAssetClass string        `yaml:"default_asset_class,omitempty"`
}

type SyncTmp struct {
	Schedules   []string `yaml:"schedules,omitempty"`
	Timezone    string   `yaml:"timezone,omitempty"`
	Concurrency int      `yaml:"concurrency,omitempty"`
}

type EventsTmp struct {
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty"`
	Buffer       int      `yaml:"buffer,omitempty"`
}

type LedgerTmp struct {
	MaxConflictRetries int `yaml:"max_conflict_retries,omitempty"`
}

// Load builds the config for f. A .env file in the working directory is
// loaded first when present; variables already set take precedence.
func Load(f Flags) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var raw ConfigTmp
	if f.ConfigPath != "" {
		data, err := os.ReadFile(f.ConfigPath)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("incorrect yaml config %s: %w", f.ConfigPath, err)
		}
	}

	raw.override(f)

	return raw.build(os.Getenv)
}

func (c *ConfigTmp) override(f Flags) {
	if f.ListenAddr != "" {
		c.ListenAddr = f.ListenAddr
	}
	if f.Storage != "" {
		c.Storage.Driver = f.Storage
	}
	if f.DataDir != "" {
		c.Storage.Dir = f.DataDir
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
}

// build validates the raw document and fills defaults.
func (c ConfigTmp) build(getenv func(string) string) (Config, error) {
	cfg := Config{
		ListenAddr: orDefault(c.ListenAddr, defaultListenAddr),
		LogLevel:   strings.ToLower(orDefault(c.LogLevel, "info")),
		Credentials: Credentials{
			BrapiToken:       getenv("BRAPI_API_KEY"),
			BinanceAPIKey:    getenv("BINANCE_API_KEY"),
			BinanceAPISecret: getenv("BINANCE_API_SECRET"),
			BybitAPIKey:      getenv("BYBIT_API_KEY"),
			BybitAPISecret:   getenv("BYBIT_API_SECRET"),
		},
	}
	if cfg.LogLevel != "info" && cfg.LogLevel != "debug" {
		return Config{}, fmt.Errorf("incorrect 'log_level' param in yaml config: %s (must be info or debug)", c.LogLevel)
	}

	storageCfg, err := c.Storage.build(getenv)
	if err != nil {
		return Config{}, err
	}
	cfg.Storage = storageCfg

	quotesCfg, err := c.Quotes.build()
	if err != nil {
		return Config{}, err
	}
	cfg.Quotes = quotesCfg

	syncCfg, err := c.Sync.build()
	if err != nil {
		return Config{}, err
	}
	cfg.Sync = syncCfg

	cfg.Events = EventsConfig{
		KafkaBrokers: c.Events.KafkaBrokers,
		KafkaTopic:   orDefault(c.Events.KafkaTopic, defaultKafkaTopic),
		Buffer:       c.Events.Buffer,
	}
	if cfg.Events.Buffer <= 0 {
		cfg.Events.Buffer = defaultEventBuffer
	}

	cfg.MaxConflictRetries = c.Ledger.MaxConflictRetries
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = defaultMaxConflicts
	}

	return cfg, nil
}

func (s StorageTmp) build(getenv func(string) string) (StorageConfig, error) {
	cfg := StorageConfig{
		Driver: strings.ToLower(orDefault(s.Driver, DriverWAL)),
		Dir:    orDefault(s.Dir, defaultDataDir),
		DSN:    s.DSN,
	}

	switch cfg.Driver {
	case DriverMemory:
	case DriverWAL:
		cfg.Dir = filepath.Join(cfg.Dir, "wal")
	case DriverSQLite:
		if cfg.DSN == "" {
			cfg.DSN = filepath.Join(cfg.Dir, "folio.db")
		}
	case DriverPostgres:
		if cfg.DSN == "" {
			cfg.DSN = getenv("FOLIO_POSTGRES_DSN")
		}
		if cfg.DSN == "" {
			return StorageConfig{}, fmt.Errorf("postgres storage requires 'storage.dsn' or FOLIO_POSTGRES_DSN")
		}
	default:
		return StorageConfig{}, fmt.Errorf("incorrect 'storage.driver' param in yaml config: %s", s.Driver)
	}

	return cfg, nil
}

// lookupBudget is long enough for every provider to use all of its attempts
// and the doubling backoff between them, plus 10% for jitter.
func lookupBudget(q QuotesConfig) time.Duration {
	perProvider := time.Duration(q.Retries+1) * q.Timeout
	backoff := q.RetryBackoff
	for i := 0; i < q.Retries; i++ {
		perProvider += backoff + backoff/10
		backoff *= 2
	}
	return perProvider * time.Duration(len(q.Providers))
}

func (q QuotesTmp) build() (QuotesConfig, error) {
	cfg := QuotesConfig{
		Providers:      append([]string(nil), q.Providers...),
		BrapiURL:       orDefault(q.BrapiURL, defaultBrapiURL),
		HyperliquidURL: orDefault(q.HyperliquidURL, defaultHyperliquidURL),
		Timeout:        q.Timeout,
		TotalTimeout:   q.TotalTimeout,
		Retries:        defaultRetries,
		RetryBackoff:   q.RetryBackoff,
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = []string{ProviderBrapi}
	}
	for i, p := range cfg.Providers {
		p = strings.ToLower(strings.TrimSpace(p))
		switch p {
		case ProviderBrapi, ProviderBinance, ProviderBybit, ProviderHyperliquid:
		default:
			return QuotesConfig{}, fmt.Errorf("incorrect 'quotes.providers' entry in yaml config: %s", p)
		}
		cfg.Providers[i] = p
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultQuoteTimeout
	}
	if q.Retries != nil {
		if *q.Retries < 0 {
			return QuotesConfig{}, fmt.Errorf("incorrect 'quotes.retries' param in yaml config: %d", *q.Retries)
		}
		cfg.Retries = *q.Retries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = lookupBudget(cfg)
	} else if cfg.TotalTimeout < cfg.Timeout {
		return QuotesConfig{}, fmt.Errorf("incorrect 'quotes.total_timeout' param in yaml config: %s is below quotes.timeout %s", cfg.TotalTimeout, cfg.Timeout)
	}

	class, err := domain.ParseAssetClass(orDefault(q.DefaultAssetClass, string(domain.AssetClassEquity)))
	if err != nil {
		return QuotesConfig{}, fmt.Errorf("incorrect 'quotes.default_asset_class' param in yaml config: %w", err)
	}
	cfg.DefaultAssetClass = class

	return cfg, nil
}

func (s SyncTmp) build() (SyncConfig, error) {
	loc, err := time.LoadLocation(orDefault(s.Timezone, defaultTimezone))
	if err != nil {
		return SyncConfig{}, fmt.Errorf("incorrect 'sync.timezone' param in yaml config: %w", err)
	}

	cfg := SyncConfig{
		Schedules:   s.Schedules,
		Location:    loc,
		Concurrency: s.Concurrency,
	}
	if len(cfg.Schedules) == 0 {
		cfg.Schedules = append([]string(nil), defaultSchedules...)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	return cfg, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
