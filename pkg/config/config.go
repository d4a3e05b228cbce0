// Package config provides configuration management for assetpipe.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/assetpipe/config.toml)
//  3. Project config (.assetpipe/config.toml or assetpipe.toml)
//  4. Environment variables (ASSETPIPE_*)
//  5. CLI flags (highest priority)
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/assetpipe/pkg/importdb"
)

// Config is the main configuration struct for assetpipe.
type Config struct {
	// Paths locates the source tree, outputs, database and packs.
	Paths PathsConfig `toml:"paths"`

	// Import configures scanning and batch imports.
	Import ImportConfig `toml:"import"`

	// Database configures the import database.
	Database DatabaseConfig `toml:"database"`

	// Resources configures the resource locator.
	Resources ResourcesConfig `toml:"resources"`

	// Log configures the optional rotating log file.
	Log LogConfig `toml:"log"`

	// Root is the directory relative paths are resolved against. It is the
	// directory holding the project config, or the load directory.
	Root string `toml:"-"`
}

// PathsConfig holds project paths, relative to Root unless absolute.
type PathsConfig struct {
	// Source is the directory scanned for assets.
	Source string `toml:"source"`

	// Output is the directory imported artifacts are written to.
	Output string `toml:"output"`

	// Database overrides the import database file.
	Database string `toml:"database"`

	// Packs lists pack files mounted by the resource locator.
	Packs []string `toml:"packs"`
}

// ImportConfig holds batch import settings.
type ImportConfig struct {
	// CheckpointInterval is how often a running batch persists the database.
	CheckpointInterval Duration `toml:"checkpoint_interval"`

	// Types maps extensions to asset types. An empty type untracks the
	// extension.
	Types map[string]string `toml:"types"`

	// Ignore lists doublestar globs excluded from scanning.
	Ignore []string `toml:"ignore"`

	// IgnoreDirs lists extra directory prefixes excluded from scanning.
	IgnoreDirs []string `toml:"ignore_dirs"`

	// Fingerprint is "hash" or "mtime".
	Fingerprint string `toml:"fingerprint"`
}

// DatabaseConfig holds import database settings.
type DatabaseConfig struct {
	// Format is "json" or "cbor".
	Format string `toml:"format"`
}

// ResourcesConfig holds resource locator settings.
type ResourcesConfig struct {
	// OutputPriority is the priority of the imported output directory.
	OutputPriority int32 `toml:"output_priority"`

	// PackPriority is the priority of mounted packs. Later packs in
	// Paths.Packs get one more than the pack before them.
	PackPriority int32 `toml:"pack_priority"`

	// FallbackDir serves ids no other provider lists. Empty disables it.
	FallbackDir string `toml:"fallback_dir"`

	// FallbackPriority is the priority of the fallback provider.
	FallbackPriority int32 `toml:"fallback_priority"`

	// Cache configures the in-memory cache in front of packs.
	Cache CacheConfig `toml:"cache"`
}

// CacheConfig holds resource cache settings.
type CacheConfig struct {
	// Enabled turns the pack cache on.
	Enabled *bool `toml:"enabled"`

	// SizeMB caps the cache size.
	SizeMB int `toml:"size_mb"`

	// Life is how long cached entries live.
	Life Duration `toml:"life"`
}

// LogConfig holds log file settings.
type LogConfig struct {
	// File enables JSON logging to a rotating file.
	File string `toml:"file"`

	MaxSizeMB  int   `toml:"max_size_mb"`
	MaxBackups int   `toml:"max_backups"`
	MaxAgeDays int   `toml:"max_age_days"`
	Compress   *bool `toml:"compress"`
}

// Duration is a time.Duration written as a string such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	falseVal := false
	return &Config{
		Paths: PathsConfig{
			Source: "assets",
			Output: "imported",
		},
		Import: ImportConfig{
			CheckpointInterval: Duration{time.Second},
			Fingerprint:        string(importdb.ModeHash),
		},
		Database: DatabaseConfig{
			Format: "json",
		},
		Resources: ResourcesConfig{
			OutputPriority:   10,
			PackPriority:     20,
			FallbackPriority: -100,
			Cache: CacheConfig{
				Enabled: &trueVal,
				SizeMB:  64,
				Life:    Duration{10 * time.Minute},
			},
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   &falseVal,
		},
	}
}

// Merge merges another config into this one (other takes precedence).
// Zero values in other leave the current value alone.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Merge paths
	if other.Paths.Source != "" {
		c.Paths.Source = other.Paths.Source
	}
	if other.Paths.Output != "" {
		c.Paths.Output = other.Paths.Output
	}
	if other.Paths.Database != "" {
		c.Paths.Database = other.Paths.Database
	}
	if len(other.Paths.Packs) > 0 {
		c.Paths.Packs = other.Paths.Packs
	}

	// Merge import config
	if other.Import.CheckpointInterval.Duration != 0 {
		c.Import.CheckpointInterval = other.Import.CheckpointInterval
	}
	if len(other.Import.Types) > 0 {
		if c.Import.Types == nil {
			c.Import.Types = make(map[string]string, len(other.Import.Types))
		}
		for ext, typ := range other.Import.Types {
			c.Import.Types[ext] = typ
		}
	}
	if len(other.Import.Ignore) > 0 {
		c.Import.Ignore = append(c.Import.Ignore, other.Import.Ignore...)
	}
	if len(other.Import.IgnoreDirs) > 0 {
		c.Import.IgnoreDirs = append(c.Import.IgnoreDirs, other.Import.IgnoreDirs...)
	}
	if other.Import.Fingerprint != "" {
		c.Import.Fingerprint = other.Import.Fingerprint
	}

	// Merge database config
	if other.Database.Format != "" {
		c.Database.Format = other.Database.Format
	}

	// Merge resources config
	if other.Resources.OutputPriority != 0 {
		c.Resources.OutputPriority = other.Resources.OutputPriority
	}
	if other.Resources.PackPriority != 0 {
		c.Resources.PackPriority = other.Resources.PackPriority
	}
	if other.Resources.FallbackDir != "" {
		c.Resources.FallbackDir = other.Resources.FallbackDir
	}
	if other.Resources.FallbackPriority != 0 {
		c.Resources.FallbackPriority = other.Resources.FallbackPriority
	}
	if other.Resources.Cache.Enabled != nil {
		c.Resources.Cache.Enabled = other.Resources.Cache.Enabled
	}
	if other.Resources.Cache.SizeMB != 0 {
		c.Resources.Cache.SizeMB = other.Resources.Cache.SizeMB
	}
	if other.Resources.Cache.Life.Duration != 0 {
		c.Resources.Cache.Life = other.Resources.Cache.Life
	}

	// Merge log config
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxBackups != 0 {
		c.Log.MaxBackups = other.Log.MaxBackups
	}
	if other.Log.MaxAgeDays != 0 {
		c.Log.MaxAgeDays = other.Log.MaxAgeDays
	}
	if other.Log.Compress != nil {
		c.Log.Compress = other.Log.Compress
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if _, err := importdb.ParseFingerprintMode(c.Import.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	if c.Database.Format != "json" && c.Database.Format != "cbor" {
		errs = append(errs, fmt.Errorf("unknown database format %q (want json or cbor)", c.Database.Format))
	}
	if c.Import.CheckpointInterval.Duration < 0 {
		errs = append(errs, fmt.Errorf("checkpoint_interval must not be negative"))
	}
	if c.Paths.Source == "" {
		errs = append(errs, fmt.Errorf("paths.source must be set"))
	}
	if c.Paths.Output == "" {
		errs = append(errs, fmt.Errorf("paths.output must be set"))
	}
	return errors.Join(errs...)
}

// Abs resolves p against Root. Absolute and empty paths are returned as is.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// SourceDir returns the absolute source directory.
func (c *Config) SourceDir() string { return c.Abs(c.Paths.Source) }

// OutputDir returns the absolute output directory.
func (c *Config) OutputDir() string { return c.Abs(c.Paths.Output) }

// DatabasePath returns the database file, or "" for the format default.
func (c *Config) DatabasePath() string { return c.Abs(c.Paths.Database) }

// PackPaths returns the absolute pack paths in mount order.
func (c *Config) PackPaths() []string {
	out := make([]string, len(c.Paths.Packs))
	for i, p := range c.Paths.Packs {
		out[i] = c.Abs(p)
	}
	return out
}

// CacheEnabled reports whether packs get an in-memory cache.
func (c *Config) CacheEnabled() bool {
	return c.Resources.Cache.Enabled != nil && *c.Resources.Cache.Enabled
}

// LogCompress reports whether rotated log files are compressed.
func (c *Config) LogCompress() bool {
	return c.Log.Compress != nil && *c.Log.Compress
}
