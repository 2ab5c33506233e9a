package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for jobsync.
type Config struct {
	Database       DatabaseConfig
	Crawl          CrawlConfig
	Sync           SyncConfig
	HTTP           HTTPConfig
	Redis          RedisConfig
	CanonicalStore CanonicalStoreConfig
	AI             AIConfig
	Notification   NotificationConfig
	Filters        FilterConfig
	Portals        map[string]PortalConfig
	Keywords       []KeywordConfig
}

type DatabaseConfig struct {
	Path string
}

// CrawlConfig controls the crawl loop and portal politeness.
type CrawlConfig struct {
	Interval       time.Duration // scheduler tick for crawling due keywords
	RecrawlAfter   time.Duration // a keyword is due once its last crawl is this old
	Pages          int
	PageSize       int
	RequestTimeout time.Duration
	RequestDelay   time.Duration // minimum gap between requests to the same portal
	MaxRetries     int
	RetryDelay     time.Duration
}

// SyncConfig controls the tag and merge pass.
type SyncConfig struct {
	Interval       time.Duration
	Workers        int
	LookbackWindow time.Duration // how old a canonical job may be and still absorb a duplicate
}

// HTTPConfig enables the admin API when Addr is set.
type HTTPConfig struct {
	Addr string
}

// RedisConfig enables the entity cache and event publishing when URL is set.
type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
	Channel  string
}

// CanonicalStoreConfig selects where canonical jobs live.
type CanonicalStoreConfig struct {
	Driver string // "sqlite" or "postgres"
	DSN    string // required for postgres
}

// AIConfig controls the optional designation matcher.
type AIConfig struct {
	Enabled    bool
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type" toml:"type"`               // "log" or "slack"
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"` // required if type is "slack"
}

// FilterConfig drops postings before they are stored.
type FilterConfig struct {
	ExcludeTitles []string
	Locations     []string
	MaxAge        time.Duration // zero keeps postings of any age
}

// PortalConfig overrides adapter defaults for one portal.
type PortalConfig struct {
	BaseURL      string
	UserAgent    string
	Country      string
	RequestDelay time.Duration // zero uses crawl.request_delay
}

// KeywordConfig seeds the keyword registry at startup.
type KeywordConfig struct {
	Keyword   string `yaml:"keyword" toml:"keyword"`
	Portal    string `yaml:"portal" toml:"portal"`
	PortalURL string `yaml:"portal_url" toml:"portal_url"`
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultDatabasePath  = "data/jobsync.db"
)

// rawConfig is used for unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Database       rawDatabaseConfig          `yaml:"database" toml:"database"`
	Crawl          rawCrawlConfig             `yaml:"crawl" toml:"crawl"`
	Sync           rawSyncConfig              `yaml:"sync" toml:"sync"`
	HTTP           rawHTTPConfig              `yaml:"http" toml:"http"`
	Redis          rawRedisConfig             `yaml:"redis" toml:"redis"`
	CanonicalStore rawCanonicalStoreConfig    `yaml:"canonical_store" toml:"canonical_store"`
	AI             rawAIConfig                `yaml:"ai" toml:"ai"`
	Notification   NotificationConfig         `yaml:"notification" toml:"notification"`
	Filters        rawFilterConfig            `yaml:"filters" toml:"filters"`
	Portals        map[string]rawPortalConfig `yaml:"portals" toml:"portals"`
	Keywords       []KeywordConfig            `yaml:"keywords" toml:"keywords"`
}

type rawDatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type rawCrawlConfig struct {
	Interval       string `yaml:"interval" toml:"interval"`
	RecrawlAfter   string `yaml:"recrawl_after" toml:"recrawl_after"`
	Pages          int    `yaml:"pages" toml:"pages"`
	PageSize       int    `yaml:"page_size" toml:"page_size"`
	RequestTimeout string `yaml:"request_timeout" toml:"request_timeout"`
	RequestDelay   string `yaml:"request_delay" toml:"request_delay"`
	MaxRetries     *int   `yaml:"max_retries" toml:"max_retries"`
	RetryDelay     string `yaml:"retry_delay" toml:"retry_delay"`
}

type rawSyncConfig struct {
	Interval       string `yaml:"interval" toml:"interval"`
	Workers        int    `yaml:"workers" toml:"workers"`
	LookbackWindow string `yaml:"lookback_window" toml:"lookback_window"`
}

type rawHTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url" toml:"url"`
	CacheTTL string `yaml:"cache_ttl" toml:"cache_ttl"`
	Channel  string `yaml:"channel" toml:"channel"`
}

type rawCanonicalStoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

type rawAIConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	Model      string `yaml:"model" toml:"model"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Timeout    string `yaml:"timeout" toml:"timeout"`
	MaxRetries *int   `yaml:"max_retries" toml:"max_retries"`
}

type rawFilterConfig struct {
	ExcludeTitles []string `yaml:"exclude_titles" toml:"exclude_titles"`
	Locations     []string `yaml:"locations" toml:"locations"`
	MaxAge        string   `yaml:"max_age" toml:"max_age"`
}

type rawPortalConfig struct {
	BaseURL      string `yaml:"base_url" toml:"base_url"`
	UserAgent    string `yaml:"user_agent" toml:"user_agent"`
	Country      string `yaml:"country" toml:"country"`
	RequestDelay string `yaml:"request_delay" toml:"request_delay"`
}

// Load reads the config file at path, validates it, and returns Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// ${VAR} references are expanded from the environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := raw.resolve()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// duration parses s, returning def when s is empty.
func duration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func (raw rawConfig) resolve() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{Path: raw.Database.Path},
		Crawl: CrawlConfig{
			Pages:      raw.Crawl.Pages,
			PageSize:   raw.Crawl.PageSize,
			MaxRetries: intOr(raw.Crawl.MaxRetries, 2),
		},
		Sync: SyncConfig{Workers: raw.Sync.Workers},
		HTTP: HTTPConfig{Addr: raw.HTTP.Addr},
		Redis: RedisConfig{
			URL:     raw.Redis.URL,
			Channel: raw.Redis.Channel,
		},
		CanonicalStore: CanonicalStoreConfig{
			Driver: strings.ToLower(raw.CanonicalStore.Driver),
			DSN:    raw.CanonicalStore.DSN,
		},
		AI: AIConfig{
			Enabled:    raw.AI.Enabled,
			BaseURL:    raw.AI.BaseURL,
			Model:      raw.AI.Model,
			APIKey:     raw.AI.APIKey,
			MaxRetries: intOr(raw.AI.MaxRetries, 2),
		},
		Notification: raw.Notification,
		Filters: FilterConfig{
			ExcludeTitles: raw.Filters.ExcludeTitles,
			Locations:     raw.Filters.Locations,
		},
		Portals:  make(map[string]PortalConfig, len(raw.Portals)),
		Keywords: raw.Keywords,
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePath
	}
	if cfg.Crawl.Pages == 0 {
		cfg.Crawl.Pages = 1
	}
	if cfg.Crawl.PageSize == 0 {
		cfg.Crawl.PageSize = 50
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.CanonicalStore.Driver == "" {
		cfg.CanonicalStore.Driver = "sqlite"
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	var err error
	durations := []struct {
		field string
		raw   string
		def   time.Duration
		dst   *time.Duration
	}{
		{"crawl.interval", raw.Crawl.Interval, time.Hour, &cfg.Crawl.Interval},
		{"crawl.recrawl_after", raw.Crawl.RecrawlAfter, 24 * time.Hour, &cfg.Crawl.RecrawlAfter},
		{"crawl.request_timeout", raw.Crawl.RequestTimeout, 30 * time.Second, &cfg.Crawl.RequestTimeout},
		{"crawl.request_delay", raw.Crawl.RequestDelay, 2 * time.Second, &cfg.Crawl.RequestDelay},
		{"crawl.retry_delay", raw.Crawl.RetryDelay, 2 * time.Second, &cfg.Crawl.RetryDelay},
		{"sync.interval", raw.Sync.Interval, 5 * time.Minute, &cfg.Sync.Interval},
		{"sync.lookback_window", raw.Sync.LookbackWindow, 30 * 24 * time.Hour, &cfg.Sync.LookbackWindow},
		{"redis.cache_ttl", raw.Redis.CacheTTL, 24 * time.Hour, &cfg.Redis.CacheTTL},
		{"ai.timeout", raw.AI.Timeout, 30 * time.Second, &cfg.AI.Timeout},
		{"filters.max_age", raw.Filters.MaxAge, 0, &cfg.Filters.MaxAge},
	}
	for _, d := range durations {
		if *d.dst, err = duration(d.field, d.raw, d.def); err != nil {
			return nil, err
		}
	}

	for name, p := range raw.Portals {
		delay, err := duration("portals."+name+".request_delay", p.RequestDelay, 0)
		if err != nil {
			return nil, err
		}
		cfg.Portals[strings.ToLower(name)] = PortalConfig{
			BaseURL:      p.BaseURL,
			UserAgent:    p.UserAgent,
			Country:      p.Country,
			RequestDelay: delay,
		}
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Crawl.Interval <= 0 {
		return fmt.Errorf("crawl.interval must be positive, got %v", cfg.Crawl.Interval)
	}
	if cfg.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %v", cfg.Sync.Interval)
	}
	if cfg.Crawl.Pages < 0 || cfg.Crawl.PageSize < 0 {
		return fmt.Errorf("crawl.pages and crawl.page_size must not be negative")
	}
	if cfg.Crawl.RequestDelay < 0 {
		return fmt.Errorf("crawl.request_delay must not be negative, got %v", cfg.Crawl.RequestDelay)
	}
	if cfg.Crawl.MaxRetries < 0 {
		return fmt.Errorf("crawl.max_retries must not be negative, got %d", cfg.Crawl.MaxRetries)
	}
	if cfg.Sync.Workers < 0 {
		return fmt.Errorf("sync.workers must not be negative, got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.LookbackWindow <= 0 {
		return fmt.Errorf("sync.lookback_window must be positive, got %v", cfg.Sync.LookbackWindow)
	}
	if cfg.Filters.MaxAge < 0 {
		return fmt.Errorf("filters.max_age must not be negative, got %v", cfg.Filters.MaxAge)
	}

	switch cfg.CanonicalStore.Driver {
	case "sqlite":
	case "postgres":
		if cfg.CanonicalStore.DSN == "" {
			return fmt.Errorf("canonical_store.dsn is required when driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("canonical_store.driver must be \"sqlite\" or \"postgres\", got %q", cfg.CanonicalStore.Driver)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when ai.enabled is true")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai.enabled is true")
		}
	}

	seen := make(map[string]bool)
	for i, k := range cfg.Keywords {
		if strings.TrimSpace(k.Keyword) == "" || strings.TrimSpace(k.Portal) == "" {
			return fmt.Errorf("keywords[%d]: keyword and portal are required", i)
		}
		key := strings.ToLower(k.Portal) + "\x00" + k.Keyword
		if seen[key] {
			return fmt.Errorf("keywords[%d]: duplicate keyword %q on %s", i, k.Keyword, k.Portal)
		}
		seen[key] = true
	}
	return nil
}

// DelayFor returns the request delay for portal, falling back to crawl.request_delay.
func (c *Config) DelayFor(portal string) time.Duration {
	if p, ok := c.Portals[portal]; ok && p.RequestDelay > 0 {
		return p.RequestDelay
	}
	return c.Crawl.RequestDelay
}
