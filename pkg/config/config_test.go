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

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "token", cfg.CRM.AuthScheme)
	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.HistoryLimit)
	assert.Equal(t, 1000, cfg.CRM.CountFloor)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
crm:
  server_url: https://crm.example.com
  username: sync-bot
sync:
  interval: 15m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://crm.example.com", cfg.CRM.ServerURL)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("VEXTR_CRM_USERNAME", "env-bot")
	t.Setenv("VEXTR_SERVER_PORT", "7070")
	t.Setenv("VEXTR_SYNC_INTERVAL", "45m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-bot", cfg.CRM.Username)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 45*time.Minute, cfg.Sync.Interval)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown auth scheme", func(c *Config) { c.CRM.AuthScheme = "challenge" }},
		{"negative retries", func(c *Config) { c.CRM.MaxRetries = -1 }},
		{"short interval", func(c *Config) { c.Sync.Interval = 30 * time.Second }},
		{"zero history", func(c *Config) { c.Sync.HistoryLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
