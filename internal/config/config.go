package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/keybind"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/util"
)

// Config is the top-level configuration document.
type Config struct {
	Workspaces    int            `yaml:"workspaces"`
	DefaultSplit  string         `yaml:"defaultSplit"`
	SplitRatio    float64        `yaml:"splitRatio"`
	Gaps          Gaps           `yaml:"gaps"`
	QueueCapacity int            `yaml:"queueCapacity"`
	LogLevel      string         `yaml:"logLevel"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	Rules         []RuleConfig   `yaml:"rules"`
	Keybinds      []keybind.Spec `yaml:"keybinds"`
}

// UnmarshalYAML accepts the older "keybindings" and "ratio" spellings.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		Workspaces     int            `yaml:"workspaces"`
		DefaultSplit   string         `yaml:"defaultSplit"`
		SplitRatio     *float64       `yaml:"splitRatio"`
		LegacyRatio    *float64       `yaml:"ratio"`
		Gaps           Gaps           `yaml:"gaps"`
		QueueCapacity  int            `yaml:"queueCapacity"`
		LogLevel       string         `yaml:"logLevel"`
		Metrics        MetricsConfig  `yaml:"metrics"`
		Rules          []RuleConfig   `yaml:"rules"`
		Keybinds       []keybind.Spec `yaml:"keybinds"`
		LegacyKeybinds []keybind.Spec `yaml:"keybindings"`
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Workspaces = raw.Workspaces
	c.DefaultSplit = raw.DefaultSplit
	c.Gaps = raw.Gaps
	c.QueueCapacity = raw.QueueCapacity
	c.LogLevel = raw.LogLevel
	c.Metrics = raw.Metrics
	c.Rules = raw.Rules

	switch {
	case raw.SplitRatio != nil:
		c.SplitRatio = *raw.SplitRatio
	case raw.LegacyRatio != nil:
		c.SplitRatio = *raw.LegacyRatio
	default:
		c.SplitRatio = 0
	}
	c.Keybinds = raw.Keybinds
	if len(c.Keybinds) == 0 {
		c.Keybinds = raw.LegacyKeybinds
	}
	return nil
}

// Gaps describes inner and outer gaps applied during tiling.
type Gaps struct {
	Inner float64 `yaml:"inner"`
	Outer float64 `yaml:"outer"`
}

// MetricsConfig toggles the engine counters reported by the stats command.
type MetricsConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// MetricsEnabled reports whether counters should be collected.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// RuleConfig matches windows by bundle identifier when they are created.
type RuleConfig struct {
	Name          string   `yaml:"name"`
	BundleID      string   `yaml:"bundleId"`
	AnyBundleID   []string `yaml:"anyBundleId"`
	BundleIDRegex string   `yaml:"bundleIdRegex"`
	Float         bool     `yaml:"float"`
	Workspace     int      `yaml:"workspace"`
}

// DefaultPath resolves $XDG_CONFIG_HOME/bobrwm/config.yaml, falling back to
// ~/.config.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "bobrwm", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "bobrwm", "config.yaml")
	}
	return filepath.Join(home, ".config", "bobrwm", "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses a configuration document and applies defaults without
// linting it.
func Decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workspaces == 0 {
		c.Workspaces = 9
	}
	if c.DefaultSplit == "" {
		c.DefaultSplit = "vertical"
	}
	if c.SplitRatio == 0 {
		c.SplitRatio = layout.DefaultRatio
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = event.DefaultCapacity
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Keybinds) == 0 {
		c.Keybinds = keybind.DefaultSpecs(c.Workspaces)
	}
}

// Validate returns the first lint error, if any.
func (c *Config) Validate() error {
	if errs := c.Lint(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Orientation returns the split orientation for new internal nodes.
func (c *Config) Orientation() layout.Orientation {
	o, _ := layout.ParseOrientation(strings.ToLower(c.DefaultSplit))
	return o
}

// LayoutGaps converts the gap settings.
func (c *Config) LayoutGaps() layout.Gaps {
	return layout.Gaps{Inner: c.Gaps.Inner, Outer: c.Gaps.Outer}
}

// Level returns the configured log level.
func (c *Config) Level() util.LogLevel {
	return util.ParseLogLevel(c.LogLevel)
}

// KeybindTable compiles the configured keybinds.
func (c *Config) KeybindTable() (keybind.Table, error) {
	return keybind.Compile(c.Keybinds)
}

// Marshal serialises the configuration back to YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
