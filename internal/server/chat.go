// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/sigil-dev/parley/internal/provider"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// maxChatBody caps the request body of /api/chat.
const maxChatBody = 1 << 20

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one conversation turn sent by the client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate requires at least one message and only user or assistant roles.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return parleyerr.New(parleyerr.CodeServerRequestInvalid, "messages must not be empty")
	}
	for i, m := range r.Messages {
		switch provider.MessageRole(m.Role) {
		case provider.MessageRoleUser, provider.MessageRoleAssistant:
		default:
			return parleyerr.Errorf(parleyerr.CodeServerRequestInvalid, "messages[%d]: unsupported role %q", i, m.Role)
		}
	}
	return nil
}

// chunk is one streamed line, shaped like an OpenAI chat.completion.chunk so
// any client that reads that format can consume the gateway.
type chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Content string `json:"content,omitempty"`
}

func (s *Server) registerChatRoute() {
	s.router.Post("/api/chat", s.handleChat)

	// The handler writes the stream directly, so the operation is only
	// documented here.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/api/chat",
		Summary:     "Stream a chat completion",
		Description: "Send the conversation and receive one JSON chat.completion.chunk per line.",
		Tags:        []string{"chat"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"messages"},
						Properties: map[string]*huma.Schema{
							"messages": {
								Type: "array",
								Items: &huma.Schema{
									Type:     "object",
									Required: []string{"role", "content"},
									Properties: map[string]*huma.Schema{
										"role":    {Type: "string", Enum: []any{"user", "assistant"}},
										"content": {Type: "string"},
									},
								},
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Newline-delimited completion chunks",
				Content: map[string]*huma.MediaType{
					"application/x-ndjson": {Schema: &huma.Schema{Type: "string"}},
				},
			},
			"400": {Description: "Invalid conversation"},
			"503": {Description: "No provider available"},
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	st, err := s.openStream(ctx, s.completionRequest(req))
	if err != nil {
		status := parleyerr.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Warn("chat request failed", "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	// Providers send without watching ctx; keep reading so they can finish.
	defer drain(st.events)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	write := func(content string, finish *string) bool {
		line := chunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   st.model,
			Choices: []chunkChoice{{Delta: chunkDelta{Content: content}, FinishReason: finish}},
		}
		if err := enc.Encode(line); err != nil {
			slog.Debug("client went away", "provider", st.provider, "error", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for ev := range st.all() {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			if !write(ev.Text, nil) {
				return
			}
		case provider.EventTypeUsage:
			if ev.Usage != nil {
				slog.Debug("chat usage", "provider", st.provider, "input_tokens", ev.Usage.InputTokens, "output_tokens", ev.Usage.OutputTokens)
			}
		case provider.EventTypeError:
			slog.Warn("chat stream ended by provider error", "provider", st.provider, "error", ev.Error)
			return
		case provider.EventTypeDone:
			stop := "stop"
			write("", &stop)
			return
		}
	}
}

func (s *Server) completionRequest(req ChatRequest) provider.ChatRequest {
	msgs := make([]provider.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = provider.Message{Role: provider.MessageRole(m.Role), Content: m.Content}
	}
	maxTokens := s.services.Chat.MaxTokens
	if maxTokens == 0 {
		maxTokens = provider.DefaultMaxTokens
	}
	return provider.ChatRequest{
		Messages:     msgs,
		SystemPrompt: s.services.Chat.SystemPrompt,
		MaxTokens:    maxTokens,
	}
}

// chatStream is an open completion whose first event has been read.
type chatStream struct {
	provider string
	model    string
	first    *provider.ChatEvent
	events   <-chan provider.ChatEvent
}

// all yields the peeked first event and then the rest of the channel.
func (c *chatStream) all() iter.Seq[provider.ChatEvent] {
	return func(yield func(provider.ChatEvent) bool) {
		if c.first != nil && !yield(*c.first) {
			return
		}
		for ev := range c.events {
			if !yield(ev) {
				return
			}
		}
	}
}

// openStream routes req and waits for the first event. A provider that fails
// before producing anything is excluded and the next one is tried, so the
// client never sees a partial reply from two providers.
func (s *Server) openStream(ctx context.Context, req provider.ChatRequest) (*chatStream, error) {
	reg := s.services.Registry
	var tried []string

	for range reg.MaxAttempts() {
		p, model, err := reg.Route(ctx, tried...)
		if err != nil {
			return nil, err
		}
		name := p.Name()
		tried = append(tried, name)

		req.Model = model
		events, err := p.Chat(ctx, req)
		if err != nil {
			if parleyerr.IsInvalidInput(err) {
				return nil, err
			}
			markFailed(p)
			slog.Warn("provider failed, trying next", "provider", name, "error", err)
			continue
		}

		var first provider.ChatEvent
		var ok bool
		select {
		case first, ok = <-events:
		case <-ctx.Done():
			drain(events)
			return nil, parleyerr.Wrap(ctx.Err(), parleyerr.CodeServerRequestInvalid, "client went away")
		}

		if !ok {
			return &chatStream{provider: name, model: model, events: events}, nil
		}
		if first.Type == provider.EventTypeError {
			drain(events)
			slog.Warn("provider failed, trying next", "provider", name, "error", first.Error)
			continue
		}
		return &chatStream{provider: name, model: model, first: &first, events: events}, nil
	}

	return nil, parleyerr.New(parleyerr.CodeProviderAllUnavailable, "all providers unavailable: every attempt failed")
}

// markFailed records a failure that happened before the provider's own
// stream could record it.
func markFailed(p provider.Provider) {
	if hr, ok := p.(provider.HealthReporter); ok {
		hr.RecordFailure()
	}
}

func drain(events <-chan provider.ChatEvent) {
	go func() {
		for range events {
		}
	}()
}
