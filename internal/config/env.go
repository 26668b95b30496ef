package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvNewsAPIKey  = "NEWS_API_KEY"
	EnvLogLevel    = "FUSION_LOG_LEVEL"
	EnvMetricsAddr = "FUSION_METRICS_ADDR"
)

// ApplyEnv loads envFiles (default ".env") if present and overlays the
// supported variables onto cfg. Missing env files are not an error.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if v := os.Getenv(EnvNewsAPIKey); v != "" {
		cfg.News.APIKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.App.MetricsAddr = v
	}
	return nil
}
