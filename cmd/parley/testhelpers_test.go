// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sigil-dev/parley/internal/chat"
	"github.com/sigil-dev/parley/internal/transcript"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func init() {
	keyring.MockInit()
}

// runCLI executes the root command with args against a fresh Viper and an
// isolated home directory, returning stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

// writeConfig writes body as a private parley.yaml and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// chunkLine renders one JSON line carrying a content fragment.
func chunkLine(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": content}}},
	})
	return string(b) + "\n"
}

// chatBackend plays the chat and log endpoints of a gateway.
type chatBackend struct {
	srv       *httptest.Server
	fragments []string
	status    int

	mu       sync.Mutex
	requests []chat.Request
	messages []transcript.MessagePayload
	buttons  []transcript.ButtonPayload
}

func newChatBackend(t *testing.T, fragments ...string) *chatBackend {
	t.Helper()
	b := &chatBackend{fragments: fragments, status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chat.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, req)
		status := b.status
		b.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, `{"error":"upstream down"}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, f := range b.fragments {
			_, _ = w.Write([]byte(chunkLine(f)))
		}
	})
	mux.HandleFunc("POST /api/log/message", func(w http.ResponseWriter, r *http.Request) {
		var p transcript.MessagePayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		b.mu.Lock()
		b.messages = append(b.messages, p)
		b.mu.Unlock()
	})
	mux.HandleFunc("POST /api/log/button", func(w http.ResponseWriter, r *http.Request) {
		var p transcript.ButtonPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		b.mu.Lock()
		b.buttons = append(b.buttons, p)
		b.mu.Unlock()
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","providers":[{"provider":"openai","available":true,"failure_count":0}]}`))
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *chatBackend) setStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// config renders a parley.yaml pointing every client endpoint at b.
func (b *chatBackend) config(extra string) string {
	return "chat:\n" +
		"  endpoint: " + b.srv.URL + "/api/chat\n" +
		"speech:\n" +
		"  enabled: false\n" +
		"transcript:\n" +
		"  message_endpoint: " + b.srv.URL + "/api/log/message\n" +
		"  button_endpoint: " + b.srv.URL + "/api/log/button\n" +
		extra
}

func (b *chatBackend) loggedMessages() []transcript.MessagePayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]transcript.MessagePayload(nil), b.messages...)
}

func (b *chatBackend) chatRequests() []chat.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chat.Request(nil), b.requests...)
}
