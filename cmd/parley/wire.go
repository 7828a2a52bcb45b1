// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/provider"
	anthropicprov "github.com/sigil-dev/parley/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/parley/internal/provider/google"
	openaiprov "github.com/sigil-dev/parley/internal/provider/openai"
	openrouterprov "github.com/sigil-dev/parley/internal/provider/openrouter"
	"github.com/sigil-dev/parley/internal/server"
	"github.com/sigil-dev/parley/internal/store"
	_ "github.com/sigil-dev/parley/internal/store/sqlite" // register sqlite backend
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Gateway holds the wired gateway subsystems and manages their lifecycle.
type Gateway struct {
	Server           *server.Server
	ProviderRegistry *provider.Registry
	Transcripts      store.TranscriptStore
}

// WireGateway creates the provider registry, transcript archive and HTTP
// server described by cfg.
func WireGateway(cfg *config.Config) (*Gateway, error) {
	reg := provider.NewRegistry()
	registerBuiltinProviders(cfg, reg)

	if err := reg.SetDefault(cfg.Server.DefaultRef()); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "setting default provider: %s", cfg.Server.DefaultRef())
	}
	if len(cfg.Server.Failover) > 0 {
		if err := reg.SetFailover(cfg.Server.Failover); err != nil {
			return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "setting failover chain")
		}
	}

	synth := speechProvider(cfg, reg)

	storeCfg := &store.StorageConfig{Backend: "sqlite", Path: cfg.Server.Database}
	if cfg.Server.Database == "" {
		slog.Warn("server.database is empty, transcripts are kept in memory only")
		storeCfg.Backend = "memory"
	}
	ts, err := store.Open(storeCfg)
	if err != nil {
		_ = reg.Close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "opening transcript archive")
	}

	services := &server.Services{
		Registry:    reg,
		Speech:      synth,
		Transcripts: ts,
		Chat: server.ChatOptions{
			SystemPrompt: cfg.Server.SystemPrompt,
			MaxTokens:    cfg.Server.MaxTokens,
		},
		Voice: server.VoiceOptions{
			Model: cfg.Server.TTSModel,
			Voice: cfg.Server.Voice,
			Speed: cfg.Server.Speed,
		},
	}

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Services: services,
	})
	if err != nil {
		_ = reg.Close()
		_ = ts.Close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "creating server")
	}

	return &Gateway{
		Server:           srv,
		ProviderRegistry: reg,
		Transcripts:      ts,
	}, nil
}

// Start serves until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	return g.Server.Start(ctx)
}

// Close releases every subsystem, reporting all failures.
func (g *Gateway) Close() error {
	return errors.Join(
		g.Server.Close(),
		g.ProviderRegistry.Close(),
		g.Transcripts.Close(),
	)
}

type providerFactory func(pc config.ProviderConfig) (provider.Provider, error)

var builtinProviderFactories = map[string]providerFactory{
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openrouter": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openrouterprov.New(openrouterprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry) {
	for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(p)
		slog.Info("registered provider", "provider", name)
	}
}

// speechProvider returns the registered provider named by
// server.speech_provider when it can synthesize speech.
func speechProvider(cfg *config.Config, reg *provider.Registry) provider.Synthesizer {
	name := cfg.Server.SpeechProvider
	if name == "" {
		return nil
	}
	p, err := reg.Get(name)
	if err != nil {
		slog.Warn("speech provider not registered, /api/tts disabled", "provider", name)
		return nil
	}
	synth, ok := p.(provider.Synthesizer)
	if !ok {
		slog.Warn("provider cannot synthesize speech, /api/tts disabled", "provider", name)
		return nil
	}
	return synth
}
