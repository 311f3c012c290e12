package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/app"
	"storyline/internal/config"
	"storyline/internal/domain"
	"storyline/internal/engine"
)

func TestOpenWiresWorkspace(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	a, err := app.Open(context.Background(), app.Options{Workspace: dir, LogOutput: &logs})
	require.NoError(t, err)
	defer a.Close()

	assert.Contains(t, logs.String(), "no AI credential configured")

	s, err := a.Engine.CreateStory(context.Background(), engine.StoryCreateOptions{Title: "Login", Description: "User signs in."})
	require.NoError(t, err)
	got, err := a.Engine.TransitionStatus(context.Background(), s.ID, domain.StatusReadyForRefinement, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.SpecificationText, "Feature: Login"))

	_, err = os.Stat(filepath.Join(dir, ".storyline", "storyline.db"))
	assert.NoError(t, err)
}

func TestGenerationConfigFromFile(t *testing.T) {
	cfg, err := config.FromYAML([]byte("generation:\n  model: claude-x\n  timeout: 2s\n  base_url: http://localhost:9\n"))
	require.NoError(t, err)
	gc, err := app.GenerationConfig(cfg, "secret")
	require.NoError(t, err)
	assert.Equal(t, "secret", gc.APIKey)
	assert.Equal(t, "claude-x", gc.Model)
	assert.Equal(t, 2*time.Second, gc.Timeout)
	assert.Equal(t, "http://localhost:9", gc.BaseURL)
}

func TestDesignsDir(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, filepath.Join("ws", ".storyline", "designs"), app.DesignsDir("ws", cfg))
	cfg.Storage.DesignsDir = "/var/designs"
	assert.Equal(t, "/var/designs", app.DesignsDir("ws", cfg))
}

func TestNewLoggerJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	var buf bytes.Buffer
	logger, err := app.NewLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
