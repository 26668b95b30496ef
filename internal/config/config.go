// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/fusion"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging.
type App struct {
	Name          string `yaml:"name"`
	Env           string `yaml:"env"`
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	JournalPath   string `yaml:"journal_path"`
	StatsInterval int    `yaml:"stats_interval_s"`
}

// Fusion tunes the engine. Zero values fall back to engine defaults.
type Fusion struct {
	SyncWindowMs         int  `yaml:"sync_window_ms"`
	BufferCapacity       int  `yaml:"buffer_capacity"`
	ArchiveSize          int  `yaml:"archive_size"`
	CleanupIntervalS     int  `yaml:"cleanup_interval_s"`
	MaxEventsPerSource   int  `yaml:"max_events_per_source"`
	EventTimeoutMs       int  `yaml:"event_timeout_ms"`
	LoopDelayMs          int  `yaml:"loop_delay_ms"`
	FuseOnUpdateOnly     bool `yaml:"fuse_on_update_only"`
	AutoStartLateStreams bool `yaml:"auto_start_late_streams"`
}

// Streams holds settings applied to every producer's stream runner.
type Streams struct {
	QueueCapacity     int `yaml:"queue_capacity"`
	ProduceIntervalMs int `yaml:"produce_interval_ms"`
	ErrorBackoffMs    int `yaml:"error_backoff_ms"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Fusion   Fusion   `yaml:"fusion"`
	Streams  Streams  `yaml:"streams"`
	Price    Price    `yaml:"price"`
	News     News     `yaml:"news"`
	Calendar Calendar `yaml:"calendar"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EngineConfig converts the fusion section into engine settings.
func (f Fusion) EngineConfig() fusion.Config {
	return fusion.Config{
		SyncWindow:           ms(f.SyncWindowMs),
		BufferCapacity:       f.BufferCapacity,
		ArchiveSize:          f.ArchiveSize,
		CleanupInterval:      time.Duration(f.CleanupIntervalS) * time.Second,
		MaxEventsPerSource:   f.MaxEventsPerSource,
		EventTimeout:         ms(f.EventTimeoutMs),
		LoopDelay:            ms(f.LoopDelayMs),
		FuseOnUpdateOnly:     f.FuseOnUpdateOnly,
		AutoStartLateStreams: f.AutoStartLateStreams,
	}
}

// Options converts the streams section into runner options. Unset fields are omitted.
func (s Streams) Options() []stream.Option {
	var opts []stream.Option
	if s.QueueCapacity > 0 {
		opts = append(opts, stream.WithQueueCapacity(s.QueueCapacity))
	}
	if s.ProduceIntervalMs > 0 {
		opts = append(opts, stream.WithProduceInterval(ms(s.ProduceIntervalMs)))
	}
	if s.ErrorBackoffMs > 0 {
		opts = append(opts, stream.WithErrorBackoff(ms(s.ErrorBackoffMs)))
	}
	return opts
}

// StatsEvery is the cadence for periodic engine stats logging, 0 when disabled.
func (a App) StatsEvery() time.Duration {
	return time.Duration(a.StatsInterval) * time.Second
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
