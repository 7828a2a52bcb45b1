// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"google.golang.org/genai"

	"github.com/sigil-dev/parley/internal/provider"
)

func ConvertMessages(msgs []provider.Message) ([]*genai.Content, []string, error) {
	return convertMessages(msgs)
}

func BuildConfig(req provider.ChatRequest, system []string) *genai.GenerateContentConfig {
	return buildConfig(req, system)
}

var (
	PCMToWAV   = pcmToWAV
	SampleRate = sampleRate
)
