package testsupport

import (
	"path/filepath"
	"testing"

	"georeg/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Registration.AttemptTimeout = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithServer sets the server address on the test config.
func WithServer(address string) ConfigOption {
	return func(c *config.Config) {
		c.Server.Address = address
	}
}

// WithOutputDir overrides the output directory on the test config.
func WithOutputDir(dir string) ConfigOption {
	return func(c *config.Config) {
		c.Paths.OutputDir = dir
	}
}

// WithInFlight overrides the in-flight ceiling on the test config.
func WithInFlight(n int) ConfigOption {
	return func(c *config.Config) {
		c.Registration.InFlight = n
	}
}

// WithMaxAttempts overrides the per-frame attempt budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(c *config.Config) {
		c.Registration.MaxAttempts = n
	}
}
