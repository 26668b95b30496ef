package config

import "time"

// Price configures the price-tick producer.
type Price struct {
	Provider    string      `yaml:"provider"`
	Symbols     []string    `yaml:"symbols"`
	DexScreener DexScreener `yaml:"dexscreener"`
}

// DexScreener configures the HTTP polling feed targeting Dexscreener pairs.
type DexScreener struct {
	BaseURL      string `yaml:"base_url"`
	DefaultChain string `yaml:"default_chain"`
	PollInterval int    `yaml:"poll_interval_ms"`
}

// News configures the headline poller. The *_path fields are gjson paths.
type News struct {
	Enabled           bool   `yaml:"enabled"`
	URL               string `yaml:"url"`
	APIKey            string `yaml:"api_key"`
	PollIntervalMs    int    `yaml:"poll_interval_ms"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	ItemsPath         string `yaml:"items_path"`
	IDPath            string `yaml:"id_path"`
	TitlePath         string `yaml:"title_path"`
	PublishedPath     string `yaml:"published_path"`
	SourcePath        string `yaml:"source_path"`
}

// PollInterval returns the configured cadence, 0 when unset.
func (n News) PollInterval() time.Duration { return ms(n.PollIntervalMs) }

// Calendar configures the economic-calendar proximity producer.
type Calendar struct {
	Enabled         bool            `yaml:"enabled"`
	WarnBeforeS     int             `yaml:"warn_before_s"`
	CheckIntervalMs int             `yaml:"check_interval_ms"`
	Events          []CalendarEntry `yaml:"events"`
}

// CalendarEntry is one scheduled release. Exactly one of At (RFC3339) or Cron is expected.
type CalendarEntry struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
	Impact   string `yaml:"impact"`
	At       string `yaml:"at"`
	Cron     string `yaml:"cron"`
}
