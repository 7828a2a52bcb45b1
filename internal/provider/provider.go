// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package provider adapts hosted model APIs to the gateway: streamed chat
// completions and, for providers that offer it, speech synthesis.
package provider

import (
	"context"

	"github.com/sigil-dev/parley/pkg/health"
)

// Provider streams chat completions from one upstream API.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Close() error
}

// Synthesizer is implemented by providers that can turn text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error)
}

// HealthReporter is implemented by providers that track upstream failures.
type HealthReporter interface {
	RecordFailure()
	RecordSuccess()
	HealthMetrics() health.Metrics
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
}

// Message is one conversation entry.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole identifies who authored a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ChatEvent is one item of a streamed completion.
type ChatEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	Error string
}

// EventType classifies a ChatEvent.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// SpeechRequest asks a provider to voice text.
type SpeechRequest struct {
	Text  string
	Model string
	Voice string
	// Speed is the speaking rate multiplier; 0 uses the provider default.
	Speed float64
}

// Audio is a synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// DefaultMaxTokens caps replies when a request does not set MaxTokens.
const DefaultMaxTokens = 1024
