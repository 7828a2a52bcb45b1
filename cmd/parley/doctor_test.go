// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCommand_Help(t *testing.T) {
	out, err := runCLI(t, "", "doctor", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--gateway")
}

func TestDoctor_RunsAllChecks(t *testing.T) {
	backend := newChatBackend(t)
	path := writeConfig(t, backend.config(""))

	out, err := runCLI(t, "", "doctor", "--config", path)
	require.NoError(t, err)

	for _, name := range []string{"Binary:", "Platform:", "Config:", "Chat Backend:", "Player:", "Disk Space:"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "loaded from "+path)
	assert.Contains(t, out, "ok at "+backend.srv.URL+" (1/1 providers available)")
	assert.Contains(t, out, "speech disabled")
}

func TestDoctor_GatewayNotRunning(t *testing.T) {
	path := writeConfig(t, "speech:\n  enabled: false\n")

	out, err := runCLI(t, "", "doctor", "--config", path, "--gateway", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, out, "not running at 127.0.0.1:1")
}

func TestDoctor_InvalidConfigStillReports(t *testing.T) {
	path := writeConfig(t, "chat:\n  history_length: -3\n")

	out, err := runCLI(t, "", "doctor", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Config:")
	assert.Contains(t, out, "chat.history_length")
	assert.NotContains(t, out, "Chat Backend:")
}

func TestDoctor_ValidatesProviderKeys(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer upstream.Close()

	path := writeConfig(t, "speech:\n  enabled: false\n"+
		"providers:\n"+
		"  openai:\n    api_key: sk-good\n    endpoint: "+upstream.URL+"\n"+
		"  openrouter:\n    api_key: sk-bad\n    endpoint: "+upstream.URL+"\n")

	out, err := runCLI(t, "", "doctor", "--config", path, "--gateway", "127.0.0.1:1")
	require.NoError(t, err)

	lines := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		name, rest, ok := strings.Cut(line, ":")
		if ok {
			lines[name] = strings.TrimSpace(rest)
		}
	}
	assert.Equal(t, "api key valid", lines["Provider openai"])
	assert.Contains(t, lines["Provider openrouter"], "error:")
}

func TestDoctor_PlayerCheck(t *testing.T) {
	path := writeConfig(t, "speech:\n  player: definitely-not-a-player --flag\n")

	out, err := runCLI(t, "", "doctor", "--config", path, "--gateway", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, out, "definitely-not-a-player not found in PATH")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 bytes"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}
