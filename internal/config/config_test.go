package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_InternalURLStaysLocal(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9090"
  public_url: "https://groups.example.com/"
`))
	require.NoError(t, err)
	assert.Equal(t, "https://groups.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "http://127.0.0.1:9090", cfg.Server.InternalURL)
	assert.Equal(t, "https://groups.example.com", cfg.UAZAPI.WebhookBaseURL)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Server.InternalURL)
	assert.Equal(t, cfg.Server.InternalURL, cfg.Server.PublicURL)
	assert.NotEmpty(t, cfg.Auth.InternalSecret)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
	assert.Equal(t, 8000, cfg.Tools.MaxResultRunes)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
