package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != missing {
		t.Fatalf("resolved path = %q, want %q", resolved, missing)
	}
	if cfg.Registration.InFlight != defaultInFlight {
		t.Fatalf("in_flight = %d, want default %d", cfg.Registration.InFlight, defaultInFlight)
	}
	if cfg.Server.LogSeverity != defaultServerSeverity {
		t.Fatalf("log_severity = %q, want %q", cfg.Server.LogSeverity, defaultServerSeverity)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[server]
address = " tcp://reg.example.net:9040 "
log_severity = "DEBUG"

[registration]
in_flight = 4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Server.Address != "tcp://reg.example.net:9040" {
		t.Fatalf("address not trimmed: %q", cfg.Server.Address)
	}
	if cfg.Server.LogSeverity != "debug" {
		t.Fatalf("severity not lowered: %q", cfg.Server.LogSeverity)
	}
	if cfg.Registration.InFlight != 4 {
		t.Fatalf("in_flight = %d, want 4", cfg.Registration.InFlight)
	}
	// Untouched sections keep defaults.
	if cfg.Registration.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("max_attempts = %d, want default", cfg.Registration.MaxAttempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"in_flight low", func(c *Config) { c.Registration.InFlight = 0 }, "in_flight"},
		{"in_flight high", func(c *Config) { c.Registration.InFlight = MaxInFlight + 1 }, "in_flight"},
		{"max_attempts", func(c *Config) { c.Registration.MaxAttempts = 0 }, "max_attempts"},
		{"attempt_timeout", func(c *Config) { c.Registration.AttemptTimeout = 0 }, "attempt_timeout"},
		{"severity", func(c *Config) { c.Server.LogSeverity = "verbose" }, "log_severity"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("sample file should exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandPath("~/logs")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "logs") {
		t.Fatalf("ExpandPath = %q", got)
	}
}
