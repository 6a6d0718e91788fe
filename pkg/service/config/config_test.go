package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.MaxConcurrency)
	assert.Zero(t, cfg.WorkflowDeadline)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "http_addr: \":9999\"\ntransport: both\nlog_level: debug\nmax_concurrency: 8\nworkflow_deadline: 2m\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, TransportBoth, cfg.Transport)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.WorkflowDeadline)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TASKWEAVE_LOG_LEVEL", "warn")
	t.Setenv("TASKWEAVE_TRANSPORT", "stdio")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, TransportStdio, cfg.Transport)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("TASKWEAVE_TRANSPORT", "carrier-pigeon")
	_, err := Load("")
	assert.Error(t, err)
}
