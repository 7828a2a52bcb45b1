// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/sigil-dev/parley/internal/provider"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/sigil-dev/parley/pkg/health"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider and provider.Synthesizer using the
// Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, parleyerr.New(parleyerr.CodeProviderRequestInvalid, "google: missing api_key in config",
			parleyerr.FieldProvider("google"))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	return &Provider{
		client: client,
		health: provider.NewHealthTracker("google", provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) RecordFailure()                { p.health.RecordFailure() }
func (p *Provider) RecordSuccess()                { p.health.RecordSuccess() }
func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func (p *Provider) Close() error { return nil }

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, system, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	config := buildConfig(req, system)

	eventCh := make(chan provider.ChatEvent, 100)
	go func() {
		defer close(eventCh)
		p.streamChat(ctx, req.Model, contents, config, eventCh)
	}()
	return eventCh, nil
}

// Synthesize voices req.Text with a Gemini TTS model. Gemini has no speaking
// rate control, so req.Speed is ignored. The returned clip is WAV.
func (p *Provider) Synthesize(ctx context.Context, req provider.SpeechRequest) (*provider.Audio, error) {
	if req.Text == "" {
		return nil, parleyerr.New(parleyerr.CodeProviderRequestInvalid, "google: speech text must not be empty",
			parleyerr.FieldProvider("google"))
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		},
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Text), config)
	if err != nil {
		p.health.RecordFailure()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderUpstreamFailure, "google: synthesizing speech")
	}

	blob := firstInlineData(result)
	if blob == nil || len(blob.Data) == 0 {
		p.health.RecordFailure()
		return nil, parleyerr.New(parleyerr.CodeProviderUpstreamFailure, "google: speech response carried no audio",
			parleyerr.FieldProvider("google"))
	}
	p.health.RecordSuccess()

	data, err := pcmToWAV(blob.Data, blob.MIMEType)
	if err != nil {
		return nil, err
	}
	return &provider.Audio{Data: data, ContentType: "audio/wav"}, nil
}

func buildConfig(req provider.ChatRequest, system []string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var parts []*genai.Part
	if req.SystemPrompt != "" {
		parts = append(parts, &genai.Part{Text: req.SystemPrompt})
	}
	for _, s := range system {
		parts = append(parts, &genai.Part{Text: s})
	}
	if len(parts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: parts}
	}

	return cfg
}

// convertMessages maps the conversation to genai contents. Gemini names the
// assistant role "model" and takes system text only as SystemInstruction.
func convertMessages(msgs []provider.Message) ([]*genai.Content, []string, error) {
	var (
		result []*genai.Content
		system []string
	)

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		case provider.MessageRoleAssistant:
			result = append(result, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: msg.Content}}})
		case provider.MessageRoleSystem:
			system = append(system, msg.Content)
		default:
			return nil, nil, parleyerr.Errorf(parleyerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}

	return result, system, nil
}

func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			p.health.RecordFailure()
			ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: err.Error()}
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: part.Text}
				}
			}
		}

		if result.UsageMetadata != nil {
			ch <- provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					InputTokens:  int(result.UsageMetadata.PromptTokenCount),
					OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
				},
			}
		}
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}

func firstInlineData(result *genai.GenerateContentResponse) *genai.Blob {
	if result == nil {
		return nil
	}
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				return part.InlineData
			}
		}
	}
	return nil
}
