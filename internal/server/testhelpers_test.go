// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sigil-dev/parley/internal/provider"
	"github.com/sigil-dev/parley/internal/server"
	"github.com/sigil-dev/parley/internal/store"
	"github.com/sigil-dev/parley/internal/stream"
	"github.com/sigil-dev/parley/pkg/health"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays events; a leading error event marks it unhealthy
// the way the real providers do.
type scriptedProvider struct {
	name    string
	health  *provider.HealthTracker
	events  []provider.ChatEvent
	chatErr error

	mu       sync.Mutex
	requests []provider.ChatRequest
}

func newScripted(name string, events ...provider.ChatEvent) *scriptedProvider {
	return &scriptedProvider{name: name, health: provider.NewHealthTracker(name, time.Minute), events: events}
}

func textReply(parts ...string) []provider.ChatEvent {
	var evs []provider.ChatEvent
	for _, p := range parts {
		evs = append(evs, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: p})
	}
	return append(evs, provider.ChatEvent{Type: provider.EventTypeDone})
}

func (p *scriptedProvider) Name() string                     { return p.name }
func (p *scriptedProvider) Available(_ context.Context) bool { return p.health.IsHealthy() }
func (p *scriptedProvider) RecordFailure()                   { p.health.RecordFailure() }
func (p *scriptedProvider) RecordSuccess()                   { p.health.RecordSuccess() }
func (p *scriptedProvider) HealthMetrics() health.Metrics    { return p.health.HealthMetrics() }
func (p *scriptedProvider) Close() error                     { return nil }

func (p *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.chatErr != nil {
		return nil, p.chatErr
	}
	if len(p.events) > 0 && p.events[0].Type == provider.EventTypeError {
		p.health.RecordFailure()
	}

	ch := make(chan provider.ChatEvent, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Requests() []provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.ChatRequest(nil), p.requests...)
}

// fakeSynth returns fixed audio or an error.
type fakeSynth struct {
	mu   sync.Mutex
	reqs []provider.SpeechRequest
	err  error
}

func (f *fakeSynth) Synthesize(_ context.Context, req provider.SpeechRequest) (*provider.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Audio{Data: []byte("ID3-audio"), ContentType: "audio/mpeg"}, nil
}

func newRegistry(t *testing.T, defaultRef string, failover []string, providers ...provider.Provider) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	require.NoError(t, reg.SetDefault(defaultRef))
	require.NoError(t, reg.SetFailover(failover))
	return reg
}

func newTestServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// gateway builds a server around a single healthy provider, a speech fake
// and an in-memory archive.
type gateway struct {
	srv         *server.Server
	chat        *scriptedProvider
	synth       *fakeSynth
	transcripts *store.MemoryStore
}

func newGateway(t *testing.T, events ...provider.ChatEvent) *gateway {
	t.Helper()
	g := &gateway{
		chat:        newScripted("openai", events...),
		synth:       &fakeSynth{},
		transcripts: store.NewMemoryStore(),
	}
	g.srv = newTestServer(t, server.Config{Services: &server.Services{
		Registry:    newRegistry(t, "openai/gpt-4.1-mini", nil, g.chat),
		Speech:      g.synth,
		Transcripts: g.transcripts,
		Chat:        server.ChatOptions{SystemPrompt: "Be brief.", MaxTokens: 256},
		Voice:       server.VoiceOptions{Model: "tts-1", Voice: "nova", Speed: 1.1},
	}})
	return g
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func userTurn(text string) map[string]any {
	return map[string]any{"messages": []map[string]string{{"role": "user", "content": text}}}
}

// replyText reads a chat response body the way the client does.
func replyText(t *testing.T, body io.Reader) string {
	t.Helper()
	r := stream.NewReader(body)
	var out string
	for {
		frag, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		out += frag.Content
	}
	require.Zero(t, r.Malformed(), "every line must decode")
	return out
}
