package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFileNotAllowed(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), false)
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
plugins = ["greeter.so", "/abs/counter.wasm", " "]
plugin_dirs = ["mods"]
require_plugins = true

[log]
level = "debug"
format = "json"
timestamp = true

[trust]
enabled = true
required = true
service = "plughost-test"
backends = ["file"]
file_dir = "keys"
`)
	dir := filepath.Dir(path)

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "greeter.so"), "/abs/counter.wasm"}, cfg.Plugins)
	assert.Equal(t, []string{filepath.Join(dir, "mods")}, cfg.PluginDirs)
	assert.True(t, cfg.RequirePlugins)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json", Timestamp: true}, cfg.Log)
	assert.Equal(t, TrustConfig{
		Enabled:  true,
		Required: true,
		Service:  "plughost-test",
		Backends: []string{"file"},
		FileDir:  filepath.Join(dir, "keys"),
	}, cfg.Trust)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "[log]\nlevel = \"warn\"\n")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "plughost", cfg.Trust.Service)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"syntax":            "plugins = [",
		"unknown key":       "plugin = [\"a.so\"]",
		"bad format":        "[log]\nformat = \"xml\"",
		"required no trust": "[trust]\nrequired = true",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content), false)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PLUGHOST_PLUGINS":         "a.so" + string(os.PathListSeparator) + "b.wasm",
		"PLUGHOST_LOG_LEVEL":       "trace",
		"PLUGHOST_REQUIRE_PLUGINS": "true",
		"PLUGHOST_TRUST_ENABLED":   "1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, applyEnv(&cfg, lookup))
	assert.Equal(t, []string{"a.so", "b.wasm"}, cfg.Plugins)
	assert.Equal(t, "trace", cfg.Log.Level)
	assert.True(t, cfg.RequirePlugins)
	assert.True(t, cfg.Trust.Enabled)

	env["PLUGHOST_TRUST_REQUIRED"] = "maybe"
	assert.Error(t, applyEnv(&cfg, lookup))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("PLUGHOST_LOG_LEVEL", "error")
	path := writeConfig(t, "[log]\nlevel = \"debug\"\n")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestModulePaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.so", "a.wasm", "c.so", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	cfg := Config{
		Plugins:    []string{filepath.Join(dir, "c.so"), "/explicit/first.so"},
		PluginDirs: []string{dir},
	}
	paths, err := cfg.ModulePaths()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "c.so"),
		"/explicit/first.so",
		filepath.Join(dir, "a.wasm"),
		filepath.Join(dir, "b.so"),
	}, paths)
}
