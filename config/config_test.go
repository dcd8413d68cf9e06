package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/config"
)

func TestLoadAppliesDefaultsAndOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  backend: redis
  redis:
    addr: "${TEST_REDIS_ADDR}"
  compaction:
    enabled: true
    message_threshold: 10
    keep_recent_messages: 3
runner:
  default_max_steps: 25
`), 0o644))

	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6379")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Session.Redis.Addr)
	assert.True(t, cfg.Session.Compaction.Enabled)
	assert.Equal(t, 10, cfg.Session.Compaction.MessageThreshold)
	assert.Equal(t, 25, cfg.Runner.DefaultMaxSteps)
	// Untouched defaults survive the overlay.
	assert.Equal(t, 200, cfg.Session.MaxMessages)
	assert.Equal(t, "agent_sessions", cfg.Session.Mongo.Collection)
}

func TestLoadRejectsMultiDocumentFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  backend: memory\n---\nextra: true\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
