package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, "claude-3-sonnet-20240229", cfg.Generation.Model)
	assert.Equal(t, 1000, cfg.Generation.MaxTokens)

	timeout, err := cfg.GenerationTimeout()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, timeout)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := config.FromYAML([]byte("generation:\n  timeout: 3s\nlog:\n  level: debug\n  format: json\n"))
	require.NoError(t, err)
	timeout, _ := cfg.GenerationTimeout()
	assert.Equal(t, 3*time.Second, timeout)
	assert.Equal(t, "claude-3-sonnet-20240229", cfg.Generation.Model)
	assert.Equal(t, "json", cfg.Log.Format)
	lvl, _ := cfg.LogLevel()
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"bad yaml":     "server: [",
		"base path":    "server:\n  base_path: v0\n",
		"timeout":      "generation:\n  timeout: soon\n",
		"temperature":  "generation:\n  temperature: 3\n",
		"log format":   "log:\n  format: xml\n",
		"log level":    "log:\n  level: loud\n",
		"negative max": "generation:\n  max_tokens: -1\n",
	} {
		_, err := config.FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("server:\n  addr: :9999\n"), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}
