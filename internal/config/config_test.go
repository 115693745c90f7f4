package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAgentConfig(t *testing.T) {
	cfg := DefaultAgentConfig()
	assert.Equal(t, DefaultMax, cfg.Pool.Max)
	assert.Equal(t, DefaultMaxIdleTime, cfg.Pool.MaxIdleTime)
	assert.Equal(t, DefaultDetachedProcessCheckInterval, cfg.Pool.DetachedProcessCheckInterval)
	assert.False(t, cfg.Pool.SelfChecking)
	assert.NotEmpty(t, cfg.ListenAddr)
	assert.NotEmpty(t, cfg.GRPCAddr)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	content := `
listen_addr: "0.0.0.0:9000"
pool:
  max: 12
  max_idle_time: 2m
  self_checking: true
hooks:
  attached_process:
    command: "/usr/local/bin/on-attach"
    mandatory: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, 12, cfg.Pool.Max)
	assert.Equal(t, 2*time.Minute, cfg.Pool.MaxIdleTime)
	assert.True(t, cfg.Pool.SelfChecking)
	require.Contains(t, cfg.Hooks, "attached_process")
	assert.True(t, cfg.Hooks["attached_process"].Mandatory)

	// Unset fields keep their defaults.
	assert.Equal(t, DefaultGCRunInterval, cfg.Pool.GCRunInterval)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, trace.IsNotFound(err))

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMax, cfg.Pool.Max)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvMax, "9")
	t.Setenv(EnvMaxIdleTime, "90s")
	t.Setenv(EnvListenAddr, "127.0.0.1:7000")

	cfg := DefaultAgentConfig()
	require.NoError(t, ApplyEnv(&cfg))
	assert.Equal(t, 9, cfg.Pool.Max)
	assert.Equal(t, 90*time.Second, cfg.Pool.MaxIdleTime)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv(EnvMax, "many")
	cfg := DefaultAgentConfig()
	err := ApplyEnv(&cfg)
	require.Error(t, err)
	assert.True(t, trace.IsBadParameter(err))
}
