// Package logging builds the slog loggers used across georeg and holds
// the shared attribute helpers so log fields stay consistent between
// components.
package logging
