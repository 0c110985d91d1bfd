package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "capability:\n  provider: mock\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Capability.Provider)
	assert.Equal(t, 30*time.Second, cfg.Capability.Timeout.Std())
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL.Std())
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval.Std())
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "default", cfg.SubjectID)
}

func TestLoadReadsValues(t *testing.T) {
	path := writeConfig(t, `
capability:
  provider: ollama
  model: llama3.1
  base_url: http://localhost:11434
  timeout: 45s
session:
  backend: redis
  redis_url: redis://localhost:6379/0
  idle_ttl: 10m
storage:
  backend: memory
subject_id: margaret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Capability.Provider)
	assert.Equal(t, "llama3.1", cfg.Capability.Model)
	assert.Equal(t, 45*time.Second, cfg.Capability.Timeout.Std())
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTTL.Std())
	assert.Equal(t, "margaret", cfg.SubjectID)
}

func TestLoadSecretsComeFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, "capability:\n  provider: openai\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "sk-test", cfg.CapabilityConfig().APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
