// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level parley configuration.
type Config struct {
	Chat       ChatConfig                `mapstructure:"chat"`
	Speech     SpeechConfig              `mapstructure:"speech"`
	Transcript TranscriptConfig          `mapstructure:"transcript"`
	Identity   IdentityConfig            `mapstructure:"identity"`
	Prompts    PromptsConfig             `mapstructure:"prompts"`
	Server     ServerConfig              `mapstructure:"server"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
}

// ChatConfig controls how the client talks to the chat backend.
type ChatConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	HistoryLength int           `mapstructure:"history_length"`
	Debounce      time.Duration `mapstructure:"debounce"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SpeechConfig controls synthesized playback of assistant replies.
type SpeechConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Player   string        `mapstructure:"player"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TranscriptConfig controls best-effort transcript logging.
type TranscriptConfig struct {
	MessageEndpoint string `mapstructure:"message_endpoint"`
	ButtonEndpoint  string `mapstructure:"button_endpoint"`
	Archive         string `mapstructure:"archive"`
	QueueSize       int    `mapstructure:"queue_size"`
}

// IdentityConfig names the keyring entry holding the device identifier.
type IdentityConfig struct {
	Service string `mapstructure:"service"`
	Key     string `mapstructure:"key"`
}

// PromptsConfig holds display-only strings shown by the chat front-end.
type PromptsConfig struct {
	Welcome  string   `mapstructure:"welcome"`
	Samples  []string `mapstructure:"samples"`
	CTAAfter int      `mapstructure:"cta_after"`
	CTALabel string   `mapstructure:"cta_label"`
}

// ServerConfig controls the gateway started by `parley serve`.
type ServerConfig struct {
	Listen       string   `mapstructure:"listen"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	Provider     string   `mapstructure:"provider"`
	Model        string   `mapstructure:"model"`
	// Failover lists "provider/model" refs tried in order when the
	// default provider is unavailable.
	Failover       []string        `mapstructure:"failover"`
	MaxTokens      int             `mapstructure:"max_tokens"`
	SystemPrompt   string          `mapstructure:"system_prompt"`
	SpeechProvider string          `mapstructure:"speech_provider"`
	TTSModel       string          `mapstructure:"tts_model"`
	Voice          string          `mapstructure:"voice"`
	Speed          float64         `mapstructure:"speed"`
	Database       string          `mapstructure:"database"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits /api requests per client IP. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultRef returns the "provider/model" ref of the default chat model.
func (s ServerConfig) DefaultRef() string {
	return s.Provider + "/" + s.Model
}

// ProviderConfig holds credentials and endpoint for an upstream provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// DefaultSystemPrompt is the assistant persona applied by the gateway.
const DefaultSystemPrompt = "You are a sales support system at a BMW store, designed to answer customer questions " +
	"and guide them through the process of selecting a car. You operate in a straightforward, factual manner, " +
	"without showing emotions or reacting to the emotions of customers. Avoid any social dialogue. You do not " +
	"arrange test drives, store appointments, or make offers. Your role is purely to provide helpful information " +
	"on BMW. Do not respond with markdown like bold font and more than 100 words."

// DefaultWelcome is shown before the first exchange.
const DefaultWelcome = "Welcome to BMW. My name is Sarah and I am your sales assistant. Please specify your " +
	"requirements or inquiries regarding our vehicle models, features, or financing options. I am here to " +
	"provide you with the necessary information and assistance. How may I assist you today?"

// DefaultSamples are the sample prompts offered on an empty conversation.
var DefaultSamples = []string{
	"What are the current BMW models available?",
	"Which model is best for a family?",
	"How does the BMW warranty work?",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("chat.endpoint", "http://127.0.0.1:8787/api/chat")
	v.SetDefault("chat.history_length", 10)
	v.SetDefault("chat.debounce", 300*time.Millisecond)
	v.SetDefault("chat.timeout", 2*time.Minute)

	v.SetDefault("speech.enabled", true)
	v.SetDefault("speech.endpoint", "http://127.0.0.1:8787/api/tts")
	v.SetDefault("speech.player", "ffplay -nodisp -autoexit -loglevel quiet -")
	v.SetDefault("speech.timeout", 30*time.Second)

	v.SetDefault("transcript.message_endpoint", "http://127.0.0.1:8787/api/log/message")
	v.SetDefault("transcript.button_endpoint", "http://127.0.0.1:8787/api/log/button")
	v.SetDefault("transcript.archive", "")
	v.SetDefault("transcript.queue_size", 64)

	v.SetDefault("identity.service", "parley")
	v.SetDefault("identity.key", "chatUserId")

	v.SetDefault("prompts.welcome", DefaultWelcome)
	v.SetDefault("prompts.samples", DefaultSamples)
	v.SetDefault("prompts.cta_after", 5)
	v.SetDefault("prompts.cta_label", "More information about BMW")

	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.provider", "openai")
	v.SetDefault("server.model", "gpt-4.1-mini")
	v.SetDefault("server.failover", []string{})
	v.SetDefault("server.max_tokens", 1024)
	v.SetDefault("server.system_prompt", DefaultSystemPrompt)
	v.SetDefault("server.speech_provider", "openai")
	v.SetDefault("server.tts_model", "tts-1")
	v.SetDefault("server.voice", "nova")
	v.SetDefault("server.speed", 1.1)
	v.SetDefault("server.database", "parley.db")
	v.SetDefault("server.rate_limit.requests_per_second", 5.0)
	v.SetDefault("server.rate_limit.burst", 20)
}

// SetupEnv binds PARLEY_ prefixed environment variables to config keys.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PARLEY_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, parleyerr.Errorf(parleyerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, parleyerr.Errorf(parleyerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateChat()...)
	errs = append(errs, c.validateSpeech()...)
	errs = append(errs, c.validateTranscript()...)
	errs = append(errs, c.validateIdentity()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validateChat() []error {
	var errs []error

	if err := validateEndpoint("chat.endpoint", c.Chat.Endpoint, true); err != nil {
		errs = append(errs, err)
	}

	if c.Chat.HistoryLength < 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: chat.history_length must not be negative, got %d",
			c.Chat.HistoryLength,
		))
	}

	if c.Chat.Debounce < 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: chat.debounce must not be negative, got %s",
			c.Chat.Debounce,
		))
	}

	return errs
}

func (c *Config) validateSpeech() []error {
	if !c.Speech.Enabled {
		return nil
	}

	var errs []error
	if err := validateEndpoint("speech.endpoint", c.Speech.Endpoint, true); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (c *Config) validateTranscript() []error {
	var errs []error

	// Empty endpoints disable the HTTP sink.
	if err := validateEndpoint("transcript.message_endpoint", c.Transcript.MessageEndpoint, false); err != nil {
		errs = append(errs, err)
	}
	if err := validateEndpoint("transcript.button_endpoint", c.Transcript.ButtonEndpoint, false); err != nil {
		errs = append(errs, err)
	}

	if c.Transcript.QueueSize <= 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: transcript.queue_size must be greater than 0, got %d",
			c.Transcript.QueueSize,
		))
	}

	return errs
}

func (c *Config) validateIdentity() []error {
	var errs []error

	if c.Identity.Service == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "config: identity.service must not be empty"))
	}
	if c.Identity.Key == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "config: identity.key must not be empty"))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: server.listen port must be between 1 and 65535, got %q",
				portStr,
			))
		}
	}

	if c.Server.Speed != 0 && (c.Server.Speed < 0.25 || c.Server.Speed > 4.0) {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: server.speed must be between 0.25 and 4.0, got %g",
			c.Server.Speed,
		))
	}

	if c.Server.MaxTokens < 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: server.max_tokens must not be negative, got %d",
			c.Server.MaxTokens,
		))
	}

	if rl := c.Server.RateLimit; rl.RequestsPerSecond < 0 || (rl.RequestsPerSecond > 0 && rl.Burst <= 0) {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit needs a non-negative rate and a positive burst, got rate=%g burst=%d",
			rl.RequestsPerSecond, rl.Burst,
		))
	}

	for i, ref := range c.Server.Failover {
		name, model, ok := strings.Cut(ref, "/")
		if !ok || name == "" || model == "" {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: server.failover[%d] must be a provider/model ref, got %q",
				i, ref,
			))
			continue
		}
		errs = append(errs, c.checkProvider(fmt.Sprintf("server.failover[%d]", i), name)...)
	}

	errs = append(errs, c.checkProvider("server.provider", c.Server.Provider)...)
	errs = append(errs, c.checkProvider("server.speech_provider", c.Server.SpeechProvider)...)

	return errs
}

// checkProvider reports name when a providers section exists but does not
// configure it.
func (c *Config) checkProvider(key, name string) []error {
	if c.Providers == nil || name == "" {
		return nil
	}
	if _, ok := c.Providers[name]; ok {
		return nil
	}
	return []error{parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
		"config: %s %q is not configured under providers",
		key, name,
	)}
}

func validateEndpoint(key, raw string, required bool) error {
	if raw == "" {
		if required {
			return parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "config: %s must not be empty", key)
		}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: %s must be an absolute http(s) URL, got %q",
			key, raw,
		)
	}
	return nil
}
