// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"github.com/sigil-dev/parley/internal/provider"
	"github.com/sigil-dev/parley/internal/store"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Services holds dependencies injected into route handlers.
type Services struct {
	// Registry routes chat requests; required.
	Registry *provider.Registry
	// Speech voices /api/tts requests. Nil answers 503.
	Speech provider.Synthesizer
	// Transcripts archives /api/log events. Nil answers 503.
	Transcripts store.TranscriptStore

	Chat  ChatOptions
	Voice VoiceOptions
}

// ChatOptions shape every upstream completion request.
type ChatOptions struct {
	SystemPrompt string
	MaxTokens    int
}

// VoiceOptions shape every speech request.
type VoiceOptions struct {
	Model string
	Voice string
	Speed float64
}

// Validate reports missing required services.
func (s *Services) Validate() error {
	if s.Registry == nil {
		return parleyerr.New(parleyerr.CodeServerConfigInvalid, "provider registry is required")
	}
	if s.Chat.MaxTokens < 0 {
		return parleyerr.Errorf(parleyerr.CodeServerConfigInvalid, "max tokens must not be negative, got %d", s.Chat.MaxTokens)
	}
	return nil
}
