// Package config loads, validates, and defaults the georeg TOML
// configuration. Command-line flags override the loaded values; the
// config file supplies the durable defaults for a given deployment.
package config
