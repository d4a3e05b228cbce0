package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/albertocavalcante/assetpipe/internal/log"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "assetpipe.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".assetpipe"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "assetpipe"

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/assetpipe/config.toml)
//  3. Project config (.assetpipe/config.toml or assetpipe.toml)
//  4. Environment variables (ASSETPIPE_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()
	cfg.Root = dir

	// Layer 2: Global user config
	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	if projectCfg, root := loadProjectConfigFrom(dir); projectCfg != nil {
		cfg.Merge(projectCfg)
		cfg.Root = root
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// LoadFile loads defaults overlaid with one explicit config file. The file
// directory becomes Root. Environment variables still apply.
func LoadFile(path string) (*Config, error) {
	fileCfg, err := decodeConfigFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()
	cfg.Merge(fileCfg)
	cfg.Root = projectRootFor(filepath.Dir(abs))
	applyEnvironmentVariables(cfg)
	return cfg, nil
}

// loadGlobalConfig loads the global user configuration from ~/.config/assetpipe/config.toml.
func loadGlobalConfig() *Config {
	path := GetGlobalConfigPath()
	if path == "" {
		return nil
	}
	return loadConfigFile(path)
}

// loadProjectConfigFrom looks for project configuration starting from the
// given directory and returns it with the project root it belongs to.
func loadProjectConfigFrom(dir string) (*Config, string) {
	// Search up the directory tree for config files
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(path); cfg != nil {
				return cfg, current
			}
		}

		// Stop at filesystem root or repository root
		if isProjectRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil, ""
}

// projectRootFor maps a config directory back to its project directory.
func projectRootFor(dir string) string {
	if filepath.Base(dir) == ConfigDirName {
		return filepath.Dir(dir)
	}
	return dir
}

// isProjectRoot checks if the directory is a repository root.
func isProjectRoot(dir string) bool {
	markers := []string{".git", ".hg", ".svn"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file. Missing files are
// skipped quietly; unreadable ones are logged and skipped.
func loadConfigFile(path string) *Config {
	cfg, err := decodeConfigFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("ignoring config file", "path", path, "error", err)
		}
		return nil
	}
	return cfg
}

func decodeConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warn("unknown config keys", "path", path, "keys", undecoded)
	}
	return &cfg, nil
}

// applyEnvironmentVariables applies ASSETPIPE_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	// Paths
	if v := os.Getenv("ASSETPIPE_SOURCE"); v != "" {
		cfg.Paths.Source = v
	}
	if v := os.Getenv("ASSETPIPE_OUTPUT"); v != "" {
		cfg.Paths.Output = v
	}
	if v := os.Getenv("ASSETPIPE_DATABASE"); v != "" {
		cfg.Paths.Database = v
	}
	// ASSETPIPE_PACKS: comma-separated list of pack files
	if v := os.Getenv("ASSETPIPE_PACKS"); v != "" {
		cfg.Paths.Packs = splitAndTrim(v)
	}

	// Import settings
	if v := os.Getenv("ASSETPIPE_FINGERPRINT"); v != "" {
		cfg.Import.Fingerprint = v
	}
	if v := os.Getenv("ASSETPIPE_CHECKPOINT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Import.CheckpointInterval = Duration{d}
		} else {
			log.Warn("ignoring ASSETPIPE_CHECKPOINT_INTERVAL", "value", v, "error", err)
		}
	}
	if v := os.Getenv("ASSETPIPE_IGNORE"); v != "" {
		cfg.Import.Ignore = append(cfg.Import.Ignore, splitAndTrim(v)...)
	}

	// Database
	if v := os.Getenv("ASSETPIPE_DB_FORMAT"); v != "" {
		cfg.Database.Format = v
	}

	// Resources
	if v := os.Getenv("ASSETPIPE_FALLBACK_DIR"); v != "" {
		cfg.Resources.FallbackDir = v
	}
	applyBoolEnv("ASSETPIPE_CACHE_ENABLED", &cfg.Resources.Cache.Enabled)
	if v := os.Getenv("ASSETPIPE_CACHE_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Resources.Cache.SizeMB = n
		}
	}

	// Log file
	if v := os.Getenv("ASSETPIPE_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
