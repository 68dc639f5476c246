package wiring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/registry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:    config.ServerConfig{Addr: ":0", PublicURL: "https://groups.example.com", InternalURL: "http://127.0.0.1:0"},
		Database:  config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "wiring.db")},
		LLM:       config.LLMConfig{Provider: "openrouter", APIKey: "sk-test", Model: "openai/gpt-4o-mini"},
		Agent:     config.AgentConfig{MaxRounds: 10, SessionListLimit: 20},
		Auth:      config.AuthConfig{JWTSecret: "jwt", InternalSecret: "internal"},
		Tools:     config.ToolsConfig{MaxResultRunes: 8000},
		UAZAPI:    config.UAZAPIConfig{BaseURL: "http://127.0.0.1:0", RatePerSecond: 1},
		Scheduler: config.SchedulerConfig{Enabled: true, Spec: "@every 1m", Workers: 1, BatchSize: 10},
	}
}

func TestLoadClient(t *testing.T) {
	c, err := LoadClient(config.LLMConfig{Provider: "openrouter", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = LoadClient(config.LLMConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter")

	_, err = LoadClient(config.LLMConfig{Provider: "openai"})
	assert.Error(t, err, "openai requires an API key")
}

func TestLoadClient_PanicIsReported(t *testing.T) {
	registry.RegisterClient("panicky", func(config.LLMConfig) (core.LLMClient, error) {
		panic("boom")
	})
	c, err := LoadClient(config.LLMConfig{Provider: "panicky"})
	assert.Nil(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Scheduler)

	rec := httptest.NewRecorder()
	app.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	assert.Contains(t, rec.Body.String(), "openrouter/openai/gpt-4o-mini")

	rec = httptest.NewRecorder()
	app.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/agent", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuild_SchedulerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Enabled = false
	app, err := Build(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.Scheduler)
}

func TestBuild_BadDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"
	_, err := Build(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}
