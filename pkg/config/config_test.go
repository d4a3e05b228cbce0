package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// isolate keeps the developer's global config out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Paths.Source != "assets" || cfg.Paths.Output != "imported" {
		t.Errorf("default paths = %+v", cfg.Paths)
	}
	if cfg.Import.CheckpointInterval.Duration != time.Second {
		t.Errorf("checkpoint interval should default to 1s, got %v", cfg.Import.CheckpointInterval)
	}
	if cfg.Import.Fingerprint != "hash" {
		t.Errorf("fingerprint should default to hash, got %q", cfg.Import.Fingerprint)
	}
	if cfg.Database.Format != "json" {
		t.Errorf("database format should default to json, got %q", cfg.Database.Format)
	}
	if !cfg.CacheEnabled() {
		t.Error("pack cache should be enabled by default")
	}
	if cfg.LogCompress() {
		t.Error("log compression should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	base.Import.Types = map[string]string{".png": "image"}
	falseVal := false
	other := &Config{
		Paths:    PathsConfig{Output: "build/out", Packs: []string{"base.apk"}},
		Import:   ImportConfig{Types: map[string]string{".tga": "texture"}, Ignore: []string{"**/*.tmp"}},
		Database: DatabaseConfig{Format: "cbor"},
		Resources: ResourcesConfig{
			PackPriority: 50,
			Cache:        CacheConfig{Enabled: &falseVal},
		},
	}

	base.Merge(other)

	if base.Paths.Source != "assets" {
		t.Errorf("unset source should keep default, got %q", base.Paths.Source)
	}
	if base.Paths.Output != "build/out" {
		t.Errorf("output = %q, want build/out", base.Paths.Output)
	}
	if !slices.Equal(base.Paths.Packs, []string{"base.apk"}) {
		t.Errorf("packs = %v", base.Paths.Packs)
	}
	if base.Import.Types[".png"] != "image" || base.Import.Types[".tga"] != "texture" {
		t.Errorf("type overrides should merge, got %v", base.Import.Types)
	}
	if base.Database.Format != "cbor" {
		t.Errorf("database format = %q, want cbor", base.Database.Format)
	}
	if base.Resources.PackPriority != 50 || base.Resources.OutputPriority != 10 {
		t.Errorf("priorities = %+v", base.Resources)
	}
	if base.CacheEnabled() {
		t.Error("cache should be disabled after merge")
	}

	base.Merge(nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad fingerprint", func(c *Config) { c.Import.Fingerprint = "sha9" }, "fingerprint"},
		{"bad format", func(c *Config) { c.Database.Format = "xml" }, "database format"},
		{"negative interval", func(c *Config) { c.Import.CheckpointInterval = Duration{-time.Second} }, "checkpoint_interval"},
		{"no source", func(c *Config) { c.Paths.Source = "" }, "paths.source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPathsResolveAgainstRoot(t *testing.T) {
	cfg := NewConfig()
	cfg.Root = filepath.FromSlash("/work/game")
	cfg.Paths.Packs = []string{"packs/base.apk", filepath.FromSlash("/abs/extra.apk")}

	if got, want := cfg.SourceDir(), filepath.Join(cfg.Root, "assets"); got != want {
		t.Errorf("SourceDir() = %q, want %q", got, want)
	}
	if got, want := cfg.OutputDir(), filepath.Join(cfg.Root, "imported"); got != want {
		t.Errorf("OutputDir() = %q, want %q", got, want)
	}
	if got := cfg.DatabasePath(); got != "" {
		t.Errorf("DatabasePath() = %q, want empty for the default", got)
	}
	packs := cfg.PackPaths()
	if packs[0] != filepath.Join(cfg.Root, "packs", "base.apk") || packs[1] != filepath.FromSlash("/abs/extra.apk") {
		t.Errorf("PackPaths() = %v", packs)
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	writeConfig(t, configPath, `
[paths]
source = "content"
packs = ["a.apk", "b.apk"]

[import]
checkpoint_interval = "250ms"
fingerprint = "mtime"
ignore = ["**/*.psd"]

[import.types]
".tga" = "texture"
".md" = ""

[resources]
fallback_dir = "loose"

[resources.cache]
enabled = false
life = "1m"

[log]
file = "logs/assetpipe.log"
compress = true
`)

	cfg := loadConfigFile(configPath)
	if cfg == nil {
		t.Fatal("loadConfigFile returned nil")
	}

	if cfg.Paths.Source != "content" || len(cfg.Paths.Packs) != 2 {
		t.Errorf("paths = %+v", cfg.Paths)
	}
	if cfg.Import.CheckpointInterval.Duration != 250*time.Millisecond {
		t.Errorf("checkpoint interval = %v, want 250ms", cfg.Import.CheckpointInterval)
	}
	if cfg.Import.Fingerprint != "mtime" {
		t.Errorf("fingerprint = %q, want mtime", cfg.Import.Fingerprint)
	}
	if typ, ok := cfg.Import.Types[".md"]; !ok || typ != "" {
		t.Errorf("empty type override should be kept, got %v", cfg.Import.Types)
	}
	if cfg.Resources.Cache.Enabled == nil || *cfg.Resources.Cache.Enabled {
		t.Error("cache should be disabled")
	}
	if cfg.Resources.Cache.Life.Duration != time.Minute {
		t.Errorf("cache life = %v, want 1m", cfg.Resources.Cache.Life)
	}
	if cfg.Log.Compress == nil || !*cfg.Log.Compress {
		t.Error("log compress should be set")
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	writeConfig(t, configPath, "[paths\nsource = ")

	if cfg := loadConfigFile(configPath); cfg != nil {
		t.Error("malformed config should be skipped")
	}
	if cfg := loadConfigFile(filepath.Join(tmpDir, "missing.toml")); cfg != nil {
		t.Error("missing config should be skipped")
	}
}

func TestApplyEnvironmentVariables(t *testing.T) {
	cfg := NewConfig()

	t.Setenv("ASSETPIPE_SOURCE", "src")
	t.Setenv("ASSETPIPE_PACKS", "one.apk, two.apk")
	t.Setenv("ASSETPIPE_FINGERPRINT", "mtime")
	t.Setenv("ASSETPIPE_CHECKPOINT_INTERVAL", "5s")
	t.Setenv("ASSETPIPE_DB_FORMAT", "cbor")
	t.Setenv("ASSETPIPE_CACHE_ENABLED", "no")
	t.Setenv("ASSETPIPE_CACHE_SIZE_MB", "128")
	t.Setenv("ASSETPIPE_LOG_FILE", "run.log")

	applyEnvironmentVariables(cfg)

	if cfg.Paths.Source != "src" {
		t.Errorf("source = %q, want src", cfg.Paths.Source)
	}
	if !slices.Equal(cfg.Paths.Packs, []string{"one.apk", "two.apk"}) {
		t.Errorf("packs = %v", cfg.Paths.Packs)
	}
	if cfg.Import.Fingerprint != "mtime" {
		t.Errorf("fingerprint = %q", cfg.Import.Fingerprint)
	}
	if cfg.Import.CheckpointInterval.Duration != 5*time.Second {
		t.Errorf("checkpoint interval = %v", cfg.Import.CheckpointInterval)
	}
	if cfg.Database.Format != "cbor" {
		t.Errorf("db format = %q", cfg.Database.Format)
	}
	if cfg.CacheEnabled() {
		t.Error("cache should be disabled via env var")
	}
	if cfg.Resources.Cache.SizeMB != 128 {
		t.Errorf("cache size = %d", cfg.Resources.Cache.SizeMB)
	}
	if cfg.Log.File != "run.log" {
		t.Errorf("log file = %q", cfg.Log.File)
	}
}

func TestApplyEnvironmentVariables_BadInterval(t *testing.T) {
	cfg := NewConfig()
	t.Setenv("ASSETPIPE_CHECKPOINT_INTERVAL", "soon")
	applyEnvironmentVariables(cfg)
	if cfg.Import.CheckpointInterval.Duration != time.Second {
		t.Errorf("bad interval should keep the default, got %v", cfg.Import.CheckpointInterval)
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"a.apk,b.apk", []string{"a.apk", "b.apk"}},
		{" a.apk , b.apk ", []string{"a.apk", "b.apk"}},
		{"a.apk", []string{"a.apk"}},
		{"", []string{}},
		{" , , ", []string{}},
	}

	for _, tt := range tests {
		result := splitAndTrim(tt.input)
		if !slices.Equal(result, tt.expected) {
			t.Errorf("splitAndTrim(%q) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}

func TestProjectConfigSearch(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project")
	subDir := filepath.Join(projectDir, "assets", "textures")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(projectDir, ".git"), 0o755); err != nil {
		t.Fatalf("failed to create .git dir: %v", err)
	}
	writeConfig(t, filepath.Join(projectDir, ConfigFileName), `
[paths]
output = "out"
`)

	cfg, root := loadProjectConfigFrom(subDir)
	if cfg == nil {
		t.Fatal("loadProjectConfigFrom returned nil")
	}
	if root != projectDir {
		t.Errorf("root = %q, want %q", root, projectDir)
	}

	full := LoadFrom(subDir)
	if full.Root != projectDir {
		t.Errorf("LoadFrom root = %q, want %q", full.Root, projectDir)
	}
	if got, want := full.OutputDir(), filepath.Join(projectDir, "out"); got != want {
		t.Errorf("OutputDir() = %q, want %q", got, want)
	}
}

func TestProjectConfigSearch_PrefersStateDir(t *testing.T) {
	isolate(t)
	projectDir := t.TempDir()
	writeConfig(t, filepath.Join(projectDir, ConfigFileName), "[paths]\noutput = \"from-root\"\n")
	writeConfig(t, filepath.Join(projectDir, ConfigDirName, "config.toml"), "[paths]\noutput = \"from-dir\"\n")

	cfg := LoadFrom(projectDir)
	if cfg.Paths.Output != "from-dir" {
		t.Errorf("output = %q, want from-dir", cfg.Paths.Output)
	}
}

func TestProjectConfigSearch_StopsAtRepoRoot(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ConfigFileName), "[paths]\noutput = \"outer\"\n")
	repo := filepath.Join(tmpDir, "repo")
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	if cfg, _ := loadProjectConfigFrom(repo); cfg != nil {
		t.Error("search should stop at the repository root")
	}
}

func TestGlobalConfigLayer(t *testing.T) {
	isolate(t)
	global := GetGlobalConfigPath()
	writeConfig(t, global, "[database]\nformat = \"cbor\"\n[paths]\noutput = \"global-out\"\n")
	projectDir := t.TempDir()
	writeConfig(t, filepath.Join(projectDir, ConfigFileName), "[paths]\noutput = \"project-out\"\n")

	cfg := LoadFrom(projectDir)
	if cfg.Database.Format != "cbor" {
		t.Errorf("format = %q, want cbor from the global layer", cfg.Database.Format)
	}
	if cfg.Paths.Output != "project-out" {
		t.Errorf("output = %q, project should override global", cfg.Paths.Output)
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	projectDir := t.TempDir()
	path := filepath.Join(projectDir, ConfigDirName, "config.toml")
	writeConfig(t, path, "[paths]\nsource = \"raw\"\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Root != projectDir {
		t.Errorf("Root = %q, want %q", cfg.Root, projectDir)
	}
	if cfg.Paths.Source != "raw" {
		t.Errorf("source = %q, want raw", cfg.Paths.Source)
	}

	if _, err := LoadFile(filepath.Join(projectDir, "missing.toml")); err == nil {
		t.Error("LoadFile on a missing file should fail")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Import.Types = map[string]string{".tga": "texture"}
	data, err := Encode(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `checkpoint_interval = "1s"`) {
		t.Errorf("durations should encode as strings, got:\n%s", data)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, string(data))
	back := loadConfigFile(path)
	if back == nil {
		t.Fatal("encoded config should load")
	}
	if back.Import.Types[".tga"] != "texture" || back.Resources.Cache.Life.Duration != 10*time.Minute {
		t.Errorf("round trip lost values: %+v", back)
	}
}

func TestProjectRootDetection(t *testing.T) {
	for _, marker := range []string{".git", ".hg", ".svn"} {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, marker), 0o755); err != nil {
			t.Fatal(err)
		}
		if !isProjectRoot(dir) {
			t.Errorf("directory with %s should be a project root", marker)
		}
	}
	if isProjectRoot(t.TempDir()) {
		t.Error("empty directory should not be a project root")
	}
}
