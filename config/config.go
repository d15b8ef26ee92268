package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinInterval is the shortest accepted sampling or analysis interval.
const MinInterval = 100 * time.Millisecond

// Config holds user-configurable defaults and integrations.
type Config struct {
	Interval        time.Duration `yaml:"interval"`
	AnalyzeInterval time.Duration `yaml:"analyze_interval"`
	DataDir         string        `yaml:"data_dir"`
	LogLevel        string        `yaml:"log_level"`
	Listen          string        `yaml:"listen"`
	Alerts          AlertConfig   `yaml:"alerts"`
}

// AlertConfig selects where reported issues are delivered.
type AlertConfig struct {
	Webhook     string `yaml:"webhook"`
	Command     string `yaml:"command"`
	MinSeverity string `yaml:"min_severity"`
	PerMinute   int    `yaml:"per_minute"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		Interval:        time.Second,
		AnalyzeInterval: 2 * time.Second,
		DataDir:         defaultDataDir(),
		LogLevel:        "info",
		Listen:          "127.0.0.1:9273",
		Alerts: AlertConfig{
			MinSeverity: "High",
			PerMinute:   6,
		},
	}
}

// Path returns ~/.config/perfwatch/config.yaml (or XDG_CONFIG_HOME).
// Returns empty string if home directory cannot be determined.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // refuse to fall back to /tmp
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "perfwatch", "config.yaml")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "perfwatch")
}

// Load loads config from the default path; returns defaults on error.
func Load() Config {
	return LoadFrom(Path())
}

// LoadFrom loads config from path. A missing file yields defaults; a file
// that does not parse is logged and also yields defaults.
func LoadFrom(path string) Config {
	cfg := Default()
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	parsed := Default()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		slog.Warn("config parse error, using defaults", "path", path, "err", err)
		return cfg
	}
	parsed.Normalize()
	return parsed
}

// Normalize replaces unset values with defaults and raises intervals below
// MinInterval to it. A bare YAML integer decodes as nanoseconds.
func (c *Config) Normalize() {
	def := Default()
	c.Interval = clampInterval(c.Interval, def.Interval)
	c.AnalyzeInterval = clampInterval(c.AnalyzeInterval, def.AnalyzeInterval)
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Alerts.PerMinute <= 0 {
		c.Alerts.PerMinute = def.Alerts.PerMinute
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

func clampInterval(d, def time.Duration) time.Duration {
	switch {
	case d <= 0:
		return def
	case d < MinInterval:
		return MinInterval
	}
	return d
}

// Save writes the config to the default path.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(path, cfg)
}

// SaveTo writes the config to path with owner-only permissions.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// IssueLogPath is where reported issues are appended.
func (c Config) IssueLogPath() string {
	return filepath.Join(c.DataDir, "issues.jsonl")
}

// LogPath is the log file used while the TUI owns the terminal.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "perfwatch.log")
}
