// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/server"
	"github.com/sigil-dev/parley/internal/store"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Server.Database = filepath.Join(t.TempDir(), "gateway.db")
	cfg.Server.Failover = []string{"anthropic/claude-haiku-4-5"}
	cfg.Providers = map[string]config.ProviderConfig{
		"openai":    {APIKey: "sk-test"},
		"anthropic": {APIKey: "sk-ant-test"},
	}
	return cfg
}

func wireTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	gw, err := WireGateway(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func serveHTTP(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWireGateway(t *testing.T) {
	gw := wireTestGateway(t, testGatewayConfig(t))

	assert.NotNil(t, gw.Server)
	assert.NotNil(t, gw.ProviderRegistry)
	assert.NotNil(t, gw.Transcripts)

	w := serveHTTP(gw.Server.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body server.HealthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "anthropic", body.Providers[0].Provider)
	assert.Equal(t, "openai", body.Providers[1].Provider)
}

func TestWireGateway_ArchivesToSQLite(t *testing.T) {
	cfg := testGatewayConfig(t)
	gw := wireTestGateway(t, cfg)

	w := serveHTTP(gw.Server.Handler(), http.MethodPost, "/api/log/button",
		`{"userId":"device-1","buttonClicked":"More information about BMW"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	clicks, err := gw.Transcripts.ListClicks(context.Background(), store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.FileExists(t, cfg.Server.Database)
}

func TestWireGateway_MemoryArchiveWithoutDatabase(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Server.Database = ""

	gw := wireTestGateway(t, cfg)
	assert.IsType(t, &store.MemoryStore{}, gw.Transcripts)
}

func TestWireGateway_SpeechProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     int
	}{
		{name: "openai synthesizes", provider: "openai", want: http.StatusBadRequest},
		{name: "anthropic cannot synthesize", provider: "anthropic", want: http.StatusServiceUnavailable},
		{name: "unregistered", provider: "google", want: http.StatusServiceUnavailable},
		{name: "disabled", provider: "", want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testGatewayConfig(t)
			cfg.Server.SpeechProvider = tt.provider
			gw := wireTestGateway(t, cfg)

			// Blank text is rejected before any upstream call when a
			// synthesizer is wired.
			w := serveHTTP(gw.Server.Handler(), http.MethodPost, "/api/tts", `{"text":" "}`)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestWireGateway_SkipsUnusableProviders(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Server.Failover = nil
	cfg.Providers = map[string]config.ProviderConfig{
		"openai":     {APIKey: "sk-test"},
		"openrouter": {APIKey: "sk-or-test"},
		"anthropic":  {APIKey: ""},
		"mistral":    {APIKey: "sk-unknown"},
	}

	gw := wireTestGateway(t, cfg)

	health := gw.ProviderRegistry.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "openai", health[0].Provider)
	assert.Equal(t, "openrouter", health[1].Provider)
}

func TestWireGateway_DefaultProviderMissing(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Providers = map[string]config.ProviderConfig{"anthropic": {APIKey: "sk-ant-test"}}

	_, err := WireGateway(cfg)
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeProviderNotFound), "got %s", parleyerr.CodeOf(err))
	assert.Contains(t, err.Error(), "setting default provider")
}

func TestWireGateway_FailoverProviderMissing(t *testing.T) {
	cfg := testGatewayConfig(t)
	cfg.Server.Failover = []string{"google/gemini-2.5-flash"}

	_, err := WireGateway(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failover")
}

func TestGateway_GracefulShutdown(t *testing.T) {
	gw := wireTestGateway(t, testGatewayConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, gw.Start(ctx))
}

func TestServeCommand_FailsWithoutProviders(t *testing.T) {
	path := writeConfig(t, "server:\n  listen: 127.0.0.1:18799\n  database: \"\"\n")

	_, err := runCLI(t, "", "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setting default provider")
}
