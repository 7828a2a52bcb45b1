// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openrouter routes chat through OpenRouter's OpenAI-compatible API.
package openrouter

import (
	"context"

	"github.com/sigil-dev/parley/internal/provider"
	"github.com/sigil-dev/parley/internal/provider/openai"
	"github.com/sigil-dev/parley/pkg/health"
)

const baseURL = "https://openrouter.ai/api/v1"

// Config holds OpenRouter provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider. It does not synthesize speech.
type Provider struct {
	inner *openai.Provider
}

// New creates a new OpenRouter provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	inner, err := openai.New(openai.Config{Name: "openrouter", APIKey: cfg.APIKey, BaseURL: base})
	if err != nil {
		return nil, err
	}
	return &Provider{inner: inner}, nil
}

func (p *Provider) Name() string { return p.inner.Name() }

func (p *Provider) Available(ctx context.Context) bool { return p.inner.Available(ctx) }

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	return p.inner.Chat(ctx, req)
}

func (p *Provider) RecordFailure()                { p.inner.RecordFailure() }
func (p *Provider) RecordSuccess()                { p.inner.RecordSuccess() }
func (p *Provider) HealthMetrics() health.Metrics { return p.inner.HealthMetrics() }

func (p *Provider) Close() error { return p.inner.Close() }
