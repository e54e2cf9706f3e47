// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"unreeled/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Output.DataDir = filepath.Join(base, "data")
	cfg.Site.OutputDir = filepath.Join(base, "public")
	cfg.Site.TemplatePath = filepath.Join(base, "public", "template.html")
	cfg.Digest.DatabasePath = filepath.Join(base, "subscribers.db")
	cfg.Logging.LogDir = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithTMDBKey sets the TMDB API key on the test config.
func WithTMDBKey(key string) ConfigOption {
	return func(c *config.Config) { c.TMDB.APIKey = key }
}

// Logger returns a logger that discards all output.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
