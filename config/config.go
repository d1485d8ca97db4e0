// Package config provides YAML configuration parsing for blockyswitch.
//
// The file is optional. Every key has a default, so an empty or missing
// file yields a working configuration.
//
// Example configuration:
//
//	host: http://pi.hole
//	listen: 127.0.0.1:7377
//	poll_interval: 30s
//	ui_refresh_interval: 5s
//	fallback_timeout: 10s
//	indicator: tray
//
//	state:
//	  backend: sqlite
//	  path: ${HOME}/.blockyswitch/state.db
//
//	log_level: info
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minInterval is the minimum allowed value for every interval and timeout.
// This prevents accidental DoS of the remote host with overly aggressive
// polling.
const minInterval = 1 * time.Second

// Defaults.
const (
	DefaultListen            = "127.0.0.1:7377"
	DefaultPollInterval      = 30 * time.Second
	DefaultUIRefreshInterval = 5 * time.Second
	DefaultFallbackTimeout   = 10 * time.Second
)

// Indicator names.
const (
	IndicatorConsole = "console"
	IndicatorTray    = "tray"
	IndicatorNone    = "none"
)

// State backend names.
const (
	BackendYAML   = "yaml"
	BackendSQLite = "sqlite"
)

// dirName is the directory under the user's home holding the config and
// state files.
const dirName = ".blockyswitch"

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load], [LoadOrDefault] or [Parse] to create a Config.
type Config struct {
	// Host is the base URL of the remote blocking service. Empty leaves the
	// persisted host alone.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Host string `yaml:"host"`

	// Listen is the local control API address. Defaults to 127.0.0.1:7377.
	Listen string `yaml:"listen"`

	// PollInterval is the time between status checks. Defaults to 30s.
	PollInterval Duration `yaml:"poll_interval"`

	// UIRefreshInterval is how often the terminal UI checks the status
	// itself when no daemon is running. Defaults to 5s.
	UIRefreshInterval Duration `yaml:"ui_refresh_interval"`

	// FallbackTimeout bounds each fallback request. Defaults to 10s.
	FallbackTimeout Duration `yaml:"fallback_timeout"`

	// StrictFallback skips the fallback when the primary got an answer it
	// could not parse.
	StrictFallback bool `yaml:"strict_fallback"`

	// Indicator is where the daemon shows the badge: console, tray or none.
	// Defaults to console.
	Indicator string `yaml:"indicator"`

	// State selects the persisted state backend.
	State StateConfig `yaml:"state"`

	// LogLevel is debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`
}

// StateConfig selects where the state is persisted.
type StateConfig struct {
	// Backend is yaml or sqlite. Defaults to yaml.
	Backend string `yaml:"backend"`

	// Path is the state file. Defaults to ~/.blockyswitch/state.yaml, or
	// state.db for sqlite. A leading ~/ is expanded.
	Path string `yaml:"path"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Dir returns the directory holding the default config and state files.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// DefaultPath returns ~/.blockyswitch/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is like [Load] but returns the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Parse(nil)
	}
	return cfg, err
}

// Parse parses YAML configuration data, applies defaults and validates the
// result.
//
// Environment variables are expanded in host, listen and state.path.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.UIRefreshInterval == 0 {
		c.UIRefreshInterval = Duration(DefaultUIRefreshInterval)
	}
	if c.FallbackTimeout == 0 {
		c.FallbackTimeout = Duration(DefaultFallbackTimeout)
	}
	if c.Indicator == "" {
		c.Indicator = IndicatorConsole
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.State.Backend == "" {
		c.State.Backend = BackendYAML
	}
	if c.State.Path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		name := "state.yaml"
		if c.State.Backend == BackendSQLite {
			name = "state.db"
		}
		c.State.Path = filepath.Join(dir, name)
	}
	return nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	if c.Host, err = expandEnvVars(strings.TrimSpace(c.Host)); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	if c.Host != "" {
		u, err := url.Parse(c.Host)
		if err != nil {
			return fmt.Errorf("invalid host: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("host must start with http:// or https://, got %q", c.Host)
		}
	}

	if c.Listen, err = expandEnvVars(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}

	durations := []struct {
		key string
		d   Duration
	}{
		{"poll_interval", c.PollInterval},
		{"ui_refresh_interval", c.UIRefreshInterval},
		{"fallback_timeout", c.FallbackTimeout},
	}
	for _, d := range durations {
		if d.d.Duration() < minInterval {
			return fmt.Errorf("%s must be at least %s, got %s", d.key, minInterval, d.d.Duration())
		}
	}

	switch c.Indicator {
	case IndicatorConsole, IndicatorTray, IndicatorNone:
	default:
		return fmt.Errorf("indicator must be console, tray or none, got %q", c.Indicator)
	}

	switch c.State.Backend {
	case BackendYAML, BackendSQLite:
	default:
		return fmt.Errorf("state.backend must be yaml or sqlite, got %q", c.State.Backend)
	}

	if c.State.Path, err = expandEnvVars(c.State.Path); err != nil {
		return fmt.Errorf("state.path: %w", err)
	}
	if c.State.Path, err = expandHome(c.State.Path); err != nil {
		return fmt.Errorf("state.path: %w", err)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
