package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "fusion-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.LogFormat != "console" || cfg.App.JournalPath != "snapshots.jsonl" {
		t.Fatalf("unexpected app section: %+v", cfg.App)
	}
	if cfg.App.StatsEvery() != 15*time.Second {
		t.Fatalf("unexpected stats interval: %s", cfg.App.StatsEvery())
	}
	if cfg.Fusion.SyncWindowMs != 250 || !cfg.Fusion.FuseOnUpdateOnly {
		t.Fatalf("unexpected fusion section: %+v", cfg.Fusion)
	}
	if cfg.Streams.QueueCapacity != 128 {
		t.Fatalf("unexpected queue capacity: %d", cfg.Streams.QueueCapacity)
	}
	if len(cfg.Price.Symbols) != 1 || cfg.Price.Symbols[0] != "WIFSOL@solana/PAIR" {
		t.Fatalf("unexpected price symbols: %+v", cfg.Price.Symbols)
	}
	if cfg.Price.DexScreener.DefaultChain != "solana" || cfg.Price.DexScreener.PollInterval != 750 {
		t.Fatalf("unexpected dexscreener section: %+v", cfg.Price.DexScreener)
	}
	if !cfg.News.Enabled || cfg.News.SourcePath != "source.name" || cfg.News.RequestsPerMinute != 6 {
		t.Fatalf("unexpected news section: %+v", cfg.News)
	}
	if cfg.News.PollInterval() != 30*time.Second {
		t.Fatalf("unexpected news poll interval: %s", cfg.News.PollInterval())
	}
	if len(cfg.Calendar.Events) != 2 {
		t.Fatalf("expected 2 calendar events, got %d", len(cfg.Calendar.Events))
	}
	if cfg.Calendar.Events[0].Cron != "30 12 * * 5" || cfg.Calendar.Events[1].At == "" {
		t.Fatalf("unexpected calendar events: %+v", cfg.Calendar.Events)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Fusion != cfg.Fusion || again.News != cfg.News {
		t.Fatalf("saved config differs after reload")
	}
	if err := Save(path, nil); err == nil {
		t.Fatalf("expected error saving nil config")
	}
}

func TestEngineConfigConversion(t *testing.T) {
	f := Fusion{SyncWindowMs: 250, CleanupIntervalS: 30, EventTimeoutMs: 40, LoopDelayMs: 5, BufferCapacity: 10}
	ec := f.EngineConfig()
	if ec.SyncWindow != 250*time.Millisecond || ec.CleanupInterval != 30*time.Second {
		t.Fatalf("unexpected durations: %+v", ec)
	}
	if ec.EventTimeout != 40*time.Millisecond || ec.LoopDelay != 5*time.Millisecond || ec.BufferCapacity != 10 {
		t.Fatalf("unexpected engine config: %+v", ec)
	}
}

func TestStreamOptionsSkipUnset(t *testing.T) {
	if opts := (Streams{}).Options(); len(opts) != 0 {
		t.Fatalf("expected no options for empty section, got %d", len(opts))
	}
	opts := Streams{QueueCapacity: 3}.Options()
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
	s := stream.New("x", stream.ProducerFunc(nil), zerolog.Nop(), opts...)
	if s.Stats().QueueCapacity != 3 {
		t.Fatalf("expected queue capacity 3, got %d", s.Stats().QueueCapacity)
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("FUSION_METRICS_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv(EnvNewsAPIKey, "secret")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvMetricsAddr, "")
	os.Unsetenv(EnvMetricsAddr)

	cfg := &Config{App: App{LogLevel: "info", MetricsAddr: ":9100"}}
	if err := ApplyEnv(cfg, envFile); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.News.APIKey != "secret" || cfg.App.LogLevel != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.App.MetricsAddr != ":9999" {
		t.Fatalf("expected value from env file, got %s", cfg.App.MetricsAddr)
	}
}

func TestApplyEnvMissingFile(t *testing.T) {
	cfg := &Config{}
	if err := ApplyEnv(cfg, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
	if err := ApplyEnv(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
