// Package config loads the plughost configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPrefix is the prefix of environment variables that override the file.
const EnvPrefix = "PLUGHOST_"

// ModuleExtensions are the file extensions picked up from plugin_dirs.
var ModuleExtensions = []string{".so", ".wasm"}

// Config is the resolved host configuration.
type Config struct {
	Plugins        []string
	PluginDirs     []string
	RequirePlugins bool
	Log            LogConfig
	Trust          TrustConfig
}

// LogConfig controls the host logger.
type LogConfig struct {
	Level     string
	Format    string
	Timestamp bool
}

// TrustConfig controls module signature verification.
type TrustConfig struct {
	Enabled  bool
	Required bool
	Service  string
	Backends []string
	FileDir  string
}

type fileConfig struct {
	Plugins        []string `toml:"plugins"`
	PluginDirs     []string `toml:"plugin_dirs"`
	RequirePlugins bool     `toml:"require_plugins"`
	Log            struct {
		Level     string `toml:"level"`
		Format    string `toml:"format"`
		Timestamp bool   `toml:"timestamp"`
	} `toml:"log"`
	Trust struct {
		Enabled  bool     `toml:"enabled"`
		Required bool     `toml:"required"`
		Service  string   `toml:"service"`
		Backends []string `toml:"backends"`
		FileDir  string   `toml:"file_dir"`
	} `toml:"trust"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Trust: TrustConfig{
			Service: "plughost",
		},
	}
}

// DefaultPath returns $HOME/.plughost/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".plughost", "config.toml"), nil
}

// Load reads the file at path over the defaults and applies environment
// overrides. A missing file is not an error when allowMissing is set.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			if !(allowMissing && errors.Is(err, fs.ErrNotExist)) {
				return Config{}, err
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	// Relative module paths are resolved against the config file.
	base := filepath.Dir(path)

	if meta.IsDefined("plugins") {
		cfg.Plugins = resolvePaths(base, raw.Plugins)
	}
	if meta.IsDefined("plugin_dirs") {
		cfg.PluginDirs = resolvePaths(base, raw.PluginDirs)
	}
	if meta.IsDefined("require_plugins") {
		cfg.RequirePlugins = raw.RequirePlugins
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("trust", "enabled") {
		cfg.Trust.Enabled = raw.Trust.Enabled
	}
	if meta.IsDefined("trust", "required") {
		cfg.Trust.Required = raw.Trust.Required
	}
	if meta.IsDefined("trust", "service") {
		cfg.Trust.Service = strings.TrimSpace(raw.Trust.Service)
	}
	if meta.IsDefined("trust", "backends") {
		cfg.Trust.Backends = normalize(raw.Trust.Backends)
	}
	if meta.IsDefined("trust", "file_dir") {
		cfg.Trust.FileDir = resolvePath(base, raw.Trust.FileDir)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup(EnvPrefix + "PLUGINS"); ok {
		cfg.Plugins = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "PLUGIN_DIRS"); ok {
		cfg.PluginDirs = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		cfg.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_FORMAT"); ok {
		cfg.Log.Format = strings.TrimSpace(v)
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"REQUIRE_PLUGINS", &cfg.RequirePlugins},
		{"TRUST_ENABLED", &cfg.Trust.Enabled},
		{"TRUST_REQUIRED", &cfg.Trust.Required},
	}
	for _, b := range bools {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, b.key, err)
		}
		*b.dst = parsed
	}
	return nil
}

// Validate checks values that cannot be caught by decoding.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Trust.Required && !c.Trust.Enabled {
		return errors.New("trust.required needs trust.enabled")
	}
	if c.Trust.Enabled && strings.TrimSpace(c.Trust.Service) == "" {
		return errors.New("trust.service cannot be empty")
	}
	return nil
}

// ModulePaths returns the explicit plugin paths followed by every module
// found in the plugin directories. Directory entries are sorted so load
// order is deterministic. Duplicates keep their first position.
func (c Config) ModulePaths() ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, p := range c.Plugins {
		add(p)
	}
	for _, dir := range c.PluginDirs {
		var found []string
		for _, ext := range ModuleExtensions {
			matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
			if err != nil {
				return nil, fmt.Errorf("scan plugin dir %s: %w", dir, err)
			}
			found = append(found, matches...)
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return paths, nil
}

func resolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(base, p)
}

func resolvePaths(base string, in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range normalize(in) {
		out = append(out, resolvePath(base, p))
	}
	return out
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func splitList(v string) []string {
	return normalize(filepath.SplitList(v))
}
