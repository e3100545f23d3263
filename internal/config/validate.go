package config

import (
	"fmt"
)

var serverSeverities = map[string]struct{}{
	"debug":   {},
	"info":    {},
	"warning": {},
	"error":   {},
}

var logFormats = map[string]struct{}{
	"console": {},
	"json":    {},
}

// Validate checks the configuration for values the pipeline cannot run
// with. Flag overrides are applied before Validate is called again by
// the CLI, so limits here bind both sources.
func (c *Config) Validate() error {
	if c.Registration.InFlight < 1 || c.Registration.InFlight > MaxInFlight {
		return fmt.Errorf("registration.in_flight must be between 1 and %d, got %d", MaxInFlight, c.Registration.InFlight)
	}
	if c.Registration.MaxAttempts < 1 {
		return fmt.Errorf("registration.max_attempts must be at least 1, got %d", c.Registration.MaxAttempts)
	}
	if c.Registration.AttemptTimeout < 1 {
		return fmt.Errorf("registration.attempt_timeout_seconds must be at least 1, got %d", c.Registration.AttemptTimeout)
	}
	if c.Server.ConnectTimeout < 1 {
		return fmt.Errorf("server.connect_timeout_seconds must be at least 1, got %d", c.Server.ConnectTimeout)
	}
	if c.Server.StartupAttempts < 1 {
		return fmt.Errorf("server.startup_attempts must be at least 1, got %d", c.Server.StartupAttempts)
	}
	if _, ok := serverSeverities[c.Server.LogSeverity]; !ok {
		return fmt.Errorf("server.log_severity must be one of debug, info, warning, error; got %q", c.Server.LogSeverity)
	}
	if _, ok := logFormats[c.Logging.Format]; !ok {
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Preflight.MinFreeGiB < 0 {
		return fmt.Errorf("preflight.min_free_gib must not be negative, got %d", c.Preflight.MinFreeGiB)
	}
	return nil
}
