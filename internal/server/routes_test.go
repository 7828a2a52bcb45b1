// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sigil-dev/parley/internal/server"
	"github.com/sigil-dev/parley/internal/store"
	"github.com/sigil-dev/parley/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMessage_Archives(t *testing.T) {
	g := newGateway(t)

	w := do(t, g.srv.Handler(), http.MethodPost, "/api/log/message", map[string]string{
		"message": "Which model is best for a family?",
		"from":    "user",
		"userId":  "device-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	turns, err := g.transcripts.ListTurns(context.Background(), store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "device-1", turns[0].SessionID)
	assert.Equal(t, store.RoleUser, turns[0].Role)
	assert.Equal(t, "Which model is best for a family?", turns[0].Content)
	assert.NotEmpty(t, turns[0].ID)
	assert.False(t, turns[0].CreatedAt.IsZero())
}

func TestLogMessage_EmptyMessageAllowed(t *testing.T) {
	g := newGateway(t)

	w := do(t, g.srv.Handler(), http.MethodPost, "/api/log/message", map[string]string{"from": "assistant", "userId": "device-1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing user", map[string]string{"message": "hi", "from": "user"}},
		{"unknown author", map[string]string{"message": "hi", "from": "robot", "userId": "device-1"}},
		{"missing author", map[string]string{"message": "hi", "userId": "device-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t)
			w := do(t, g.srv.Handler(), http.MethodPost, "/api/log/message", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			turns, err := g.transcripts.ListTurns(context.Background(), store.ListOpts{})
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestLogButton(t *testing.T) {
	g := newGateway(t)

	w := do(t, g.srv.Handler(), http.MethodPost, "/api/log/button", map[string]string{
		"userId":        "device-1",
		"buttonClicked": "How does the BMW warranty work?",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	clicks, err := g.transcripts.ListClicks(context.Background(), store.ListOpts{SessionID: "device-1"})
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, "How does the BMW warranty work?", clicks[0].Label)

	w = do(t, g.srv.Handler(), http.MethodPost, "/api/log/button", map[string]string{"userId": "device-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLog_NotConfigured(t *testing.T) {
	srv := newTestServer(t, server.Config{Services: &server.Services{
		Registry: newRegistry(t, "openai/gpt-4.1-mini", nil, newScripted("openai")),
	}})

	w := do(t, srv.Handler(), http.MethodPost, "/api/log/button", map[string]string{"userId": "d", "buttonClicked": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, srv.Handler(), http.MethodGet, "/api/log/turns", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListTurns(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, s := range []struct{ session, content string }{
		{"device-1", "one"},
		{"device-2", "other"},
		{"device-1", "two"},
		{"device-1", "three"},
	} {
		require.NoError(t, g.transcripts.AppendTurn(ctx, &store.Turn{
			ID:        s.content,
			SessionID: s.session,
			Role:      store.RoleUser,
			Content:   s.content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	w := do(t, g.srv.Handler(), http.MethodGet, "/api/log/turns?session_id=device-1&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Turns []server.TurnSummary `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Turns, 2)
	assert.Equal(t, "two", body.Turns[0].Content)
	assert.Equal(t, "three", body.Turns[1].Content)
	assert.Equal(t, "device-1", body.Turns[1].SessionID)
}

func TestListButtons_Empty(t *testing.T) {
	g := newGateway(t)

	w := do(t, g.srv.Handler(), http.MethodGet, "/api/log/buttons", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"buttons":[]`)
}

func TestLog_AcceptsTranscriptHTTPSink(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	t.Cleanup(ts.Close)

	sink := transcript.NewHTTPSink(ts.URL+"/api/log/message", ts.URL+"/api/log/button", ts.Client())
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, transcript.TurnEvent{SessionID: "device-1", Role: "assistant", Content: "BMW offers several models."}))
	require.NoError(t, sink.Write(ctx, transcript.ButtonClickEvent{SessionID: "device-1", Label: "More information about BMW"}))

	turns, err := g.transcripts.ListTurns(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, store.RoleAssistant, turns[0].Role)

	clicks, err := g.transcripts.ListClicks(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, clicks, 1)
}
