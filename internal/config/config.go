package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Server contains connection settings for the registration server.
type Server struct {
	// Address is either a tcp://host:port URL for a public server or a
	// filesystem path to a server binary started privately per run.
	Address         string `toml:"address"`
	LogSeverity     string `toml:"log_severity"`
	ConnectTimeout  int    `toml:"connect_timeout_seconds"`
	StartupAttempts int    `toml:"startup_attempts"`
}

// Registration contains pipeline tuning for a run.
type Registration struct {
	InFlight       int `toml:"in_flight"`
	MaxAttempts    int `toml:"max_attempts"`
	AttemptTimeout int `toml:"attempt_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Preflight contains thresholds for pre-run checks.
type Preflight struct {
	MinFreeGiB int `toml:"min_free_gib"`
}

// Config encapsulates all configuration values for georeg.
type Config struct {
	Paths        Paths        `toml:"paths"`
	Server       Server       `toml:"server"`
	Registration Registration `toml:"registration"`
	Logging      Logging      `toml:"logging"`
	Preflight    Preflight    `toml:"preflight"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/georeg/config.toml")
}

// Load locates, parses, and validates a configuration file. Path fields
// in the returned config are expanded and normalized. The bool reports
// whether a file was actually found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("georeg.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PrivateServer reports whether Address names a server binary to launch
// for this run rather than a tcp:// URL of an already running server.
func (s Server) PrivateServer() bool {
	return s.Address != "" && !strings.HasPrefix(s.Address, "tcp://")
}

// JournalPath returns the location of the run journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.LogDir, "journal.db")
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.OutputDir, err = ExpandPath(c.Paths.OutputDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Server.Address = strings.TrimSpace(c.Server.Address)
	c.Server.LogSeverity = strings.ToLower(strings.TrimSpace(c.Server.LogSeverity))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// ExpandPath resolves ~ prefixes and returns an absolute, cleaned path.
// Empty input is returned unchanged.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
