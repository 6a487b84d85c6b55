// Package config handles storewatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level storewatch configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Watch    WatchConfig    `yaml:"watch"`
	Debounce DebounceConfig `yaml:"debounce"`
	Widget   WidgetConfig   `yaml:"widget"`
	Backend  BackendConfig  `yaml:"backend"`
	Control  ControlConfig  `yaml:"control"`
	Settings SettingsConfig `yaml:"settings"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	// Remote is a DevTools WebSocket URL. Empty means launch a local Chrome.
	Remote           string   `yaml:"remote"`
	Headless         bool     `yaml:"headless"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// WatchConfig controls page observation and detection.
type WatchConfig struct {
	// URL to open when not attaching to an existing tab.
	URL string `yaml:"url"`
	// Attach adopts an existing tab on a known host instead of opening one.
	Attach bool `yaml:"attach"`
	// StabilityTimeout bounds the wait for detection anchors. Default: 5s.
	StabilityTimeout time.Duration `yaml:"stability_timeout"`
	// SettleDelay holds the navigating flag after a URL change. Default: 500ms.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// Aggressive waits for late-loading selectors and re-snapshots once
	// before giving up on a thin DOM.
	Aggressive bool `yaml:"aggressive"`
}

// DebounceConfig controls mutation batching.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// WidgetConfig controls injection.
type WidgetConfig struct {
	// Anchors are custom insertion points tried alongside the built-ins.
	Anchors []AnchorConfig `yaml:"anchors"`
	// AutoReinject re-adds the widget when the host page removes it.
	AutoReinject bool   `yaml:"auto_reinject"`
	Theme        string `yaml:"theme"`
}

// AnchorConfig is one user-defined insertion point.
type AnchorConfig struct {
	Selector  string `yaml:"selector"`
	Priority  int    `yaml:"priority"`
	Placement string `yaml:"placement"` // before | after | prepend | append
}

// BackendConfig points at the stats service.
type BackendConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	RetryMax int           `yaml:"retry_max"`
}

// ControlConfig exposes the local control endpoint.
type ControlConfig struct {
	Listen string `yaml:"listen"`
}

// SettingsConfig locates the settings database.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.Watch.StabilityTimeout <= 0 {
		c.Watch.StabilityTimeout = 5 * time.Second
	}
	if c.Watch.SettleDelay <= 0 {
		c.Watch.SettleDelay = 500 * time.Millisecond
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 150 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 50
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Backend.RetryMax <= 0 {
		c.Backend.RetryMax = 3
	}
	if c.Control.Listen == "" {
		c.Control.Listen = "127.0.0.1:7806"
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "storewatch.db"
	}
}
