// Package config provides configuration loading and management for codeatlas.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete codeatlas configuration.
type Config struct {
	Scan  ScanConfig  `yaml:"scan"`
	Map   MapConfig   `yaml:"map"`
	Store StoreConfig `yaml:"store"`
	Watch WatchConfig `yaml:"watch"`
}

// ScanConfig configures source tree discovery and analysis.
type ScanConfig struct {
	// Root is the tree to analyze (auto-detected from git if empty)
	Root string `yaml:"root"`
	// Include restricts discovery to matching relative paths (empty = all)
	Include []string `yaml:"include"`
	// Exclude removes matching relative paths on top of the built-in excludes
	Exclude []string `yaml:"exclude"`
	// Workers is the analysis worker count (0 = number of CPUs)
	Workers int `yaml:"workers"`
	// ReadTimeout bounds a single file read
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// MapConfig configures map generation.
type MapConfig struct {
	// ChunkElements is the per-chunk element budget (0 = never chunk)
	ChunkElements int `yaml:"chunk_elements"`
	// Out is the output path; "-" or empty writes to stdout
	Out string `yaml:"out"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Path is the SQLite database path (empty = persistence disabled)
	Path string `yaml:"path"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is how long to coalesce filesystem events before a re-run
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			Root:        "", // Auto-detect
			Workers:     0,
			ReadTimeout: 10 * time.Second,
		},
		Map: MapConfig{
			ChunkElements: 0,
			Out:           "",
		},
		Store: StoreConfig{
			Path: "",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Scan.Workers < 0 {
		return fmt.Errorf("scan.workers must not be negative")
	}
	if c.Scan.ReadTimeout <= 0 {
		return fmt.Errorf("scan.read_timeout must be positive")
	}
	if c.Map.ChunkElements < 0 {
		return fmt.Errorf("map.chunk_elements must not be negative")
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence
// for non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Scan.Root != "" {
		c.Scan.Root = other.Scan.Root
	}
	if len(other.Scan.Include) > 0 {
		c.Scan.Include = other.Scan.Include
	}
	if len(other.Scan.Exclude) > 0 {
		c.Scan.Exclude = other.Scan.Exclude
	}
	if other.Scan.Workers != 0 {
		c.Scan.Workers = other.Scan.Workers
	}
	if other.Scan.ReadTimeout != 0 {
		c.Scan.ReadTimeout = other.Scan.ReadTimeout
	}
	if other.Map.ChunkElements != 0 {
		c.Map.ChunkElements = other.Map.ChunkElements
	}
	if other.Map.Out != "" {
		c.Map.Out = other.Map.Out
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
