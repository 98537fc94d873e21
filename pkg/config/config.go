// Package config loads reaper configuration from TOML, YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml"
)

// Config holds all configuration options for reaper.
type Config struct {
	// Analysis settings
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// Entry point selection
	Entry EntryConfig `koanf:"entry" toml:"entry"`

	// Confidence thresholds for findings
	Thresholds ThresholdConfig `koanf:"thresholds" toml:"thresholds"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude"`

	// Cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`
}

// AnalysisConfig controls the reachability run.
type AnalysisConfig struct {
	Mode              string `koanf:"mode" toml:"mode"` // binary, library
	IncludeTests      bool   `koanf:"include_tests" toml:"include_tests"`
	Workers           int    `koanf:"workers" toml:"workers"` // 0 = 2x NumCPU
	ParallelTraversal bool   `koanf:"parallel_traversal" toml:"parallel_traversal"`
	MaxFileSize       int64  `koanf:"max_file_size" toml:"max_file_size"` // bytes, 0 = unlimited
}

// EntryConfig adds roots beyond the language entry conventions.
type EntryConfig struct {
	Names    []string `koanf:"names" toml:"names"`
	Patterns []string `koanf:"patterns" toml:"patterns"`
	IDs      []string `koanf:"ids" toml:"ids"`
}

// ThresholdConfig defines confidence level boundaries.
type ThresholdConfig struct {
	ConfidenceHigh   float64 `koanf:"confidence_high" toml:"confidence_high"`
	ConfidenceMedium float64 `koanf:"confidence_medium" toml:"confidence_medium"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours, 0 = until the source changes
}

// TTLDuration returns the cache TTL as a duration.
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Hour
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Mode:        "binary",
			MaxFileSize: 2 << 20,
		},
		Thresholds: ThresholdConfig{
			ConfidenceHigh:   0.8,
			ConfidenceMedium: 0.5,
		},
		Exclude: ExcludeConfig{
			Dirs: []string{
				"vendor",
				"target",
				"node_modules",
				".git",
				".reaper",
				"testdata",
			},
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".reaper/cache",
			TTL:     0,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Formats lists the accepted output formats.
var Formats = []string{"text", "json", "markdown", "toon"}

// Validate checks values that koanf cannot type-check.
func (c *Config) Validate() error {
	var errs []error
	switch c.Analysis.Mode {
	case "", "binary", "library":
	default:
		errs = append(errs, fmt.Errorf("analysis.mode: unknown mode %q", c.Analysis.Mode))
	}
	if c.Analysis.Workers < 0 {
		errs = append(errs, fmt.Errorf("analysis.workers: must not be negative, got %d", c.Analysis.Workers))
	}
	if c.Analysis.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_file_size: must not be negative, got %d", c.Analysis.MaxFileSize))
	}
	h, m := c.Thresholds.ConfidenceHigh, c.Thresholds.ConfidenceMedium
	if h <= 0 || h > 1 || m <= 0 || m > 1 || m > h {
		errs = append(errs, fmt.Errorf("thresholds: want 0 < confidence_medium <= confidence_high <= 1, got %.2f/%.2f", m, h))
	}
	for _, p := range c.Entry.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("entry.patterns: %q: %w", p, err))
		}
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl: must not be negative, got %d", c.Cache.TTL))
	}
	if c.Output.Format != "" && !contains(Formats, c.Output.Format) {
		errs = append(errs, fmt.Errorf("output.format: unknown format %q", c.Output.Format))
	}
	return errors.Join(errs...)
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// configNames are searched in order by Find.
var configNames = []string{
	"reaper.toml",
	"reaper.yaml",
	"reaper.yml",
	"reaper.json",
	".reaper.toml",
	".reaper.yaml",
	".reaper.yml",
	".reaper.json",
}

// Find returns the first standard config file under dir or its .reaper
// directory, or "" when there is none.
func Find(dir string) string {
	for _, d := range []string{dir, filepath.Join(dir, ".reaper")} {
		for _, name := range configNames {
			path := filepath.Join(d, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault loads the standard config under dir. A missing file yields
// the defaults; a broken one is an error rather than silently ignored.
func LoadOrDefault(dir string) (*Config, string, error) {
	path := Find(dir)
	if path == "" {
		return DefaultConfig(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// TOML renders the effective configuration.
func (c *Config) TOML() ([]byte, error) {
	return gotoml.Marshal(*c)
}

// ExcludedDir reports whether a directory name is excluded.
func (c *Config) ExcludedDir(name string) bool {
	return contains(c.Exclude.Dirs, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
