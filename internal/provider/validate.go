// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// keyCheck describes the cheapest authenticated call a provider offers.
type keyCheck struct {
	baseURL string
	auth    func(req *http.Request, key string)
}

func bearer(req *http.Request, key string) {
	req.Header.Set("Authorization", "Bearer "+key)
}

var keyChecks = map[string]keyCheck{
	"openai":     {baseURL: "https://api.openai.com/v1", auth: bearer},
	"openrouter": {baseURL: "https://openrouter.ai/api/v1", auth: bearer},
	"anthropic": {
		baseURL: "https://api.anthropic.com/v1",
		auth: func(req *http.Request, key string) {
			req.Header.Set("x-api-key", key)
			req.Header.Set("anthropic-version", "2023-06-01")
		},
	},
	"google": {
		baseURL: "https://generativelanguage.googleapis.com/v1",
		// The Generative Language API only takes the key as a query parameter.
		auth: func(req *http.Request, key string) {
			q := req.URL.Query()
			q.Set("key", key)
			req.URL.RawQuery = q.Encode()
		},
	},
}

// KnownProviders lists the provider names ValidateKey understands.
func KnownProviders() []string {
	return []string{"anthropic", "google", "openai", "openrouter"}
}

// ValidateKey lists the provider's models to confirm key is accepted.
// baseURL overrides the provider's public API root when non-empty.
func ValidateKey(ctx context.Context, client *http.Client, name, key, baseURL string) error {
	check, ok := keyChecks[name]
	if !ok {
		return parleyerr.New(parleyerr.CodeProviderKeyInvalid, "unknown provider: "+name, parleyerr.FieldProvider(name))
	}
	if key == "" {
		return parleyerr.New(parleyerr.CodeProviderKeyInvalid, name+": api key is empty", parleyerr.FieldProvider(name))
	}
	if baseURL == "" {
		baseURL = check.baseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	endpoint, err := url.JoinPath(strings.TrimRight(baseURL, "/"), "models")
	if err != nil {
		return parleyerr.Errorf(parleyerr.CodeProviderKeyCheckFailure, "building %s validation url: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return parleyerr.Errorf(parleyerr.CodeProviderKeyCheckFailure, "building validation request: %w", err)
	}
	check.auth(req, key)

	resp, err := client.Do(req)
	if err != nil {
		// The google key sits in the URL; keep it out of the error text.
		return parleyerr.New(parleyerr.CodeProviderKeyCheckFailure, "validating "+name+" key: request failed",
			parleyerr.FieldProvider(name))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return parleyerr.Errorf(parleyerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return parleyerr.Errorf(parleyerr.CodeProviderKeyCheckFailure, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}

	return nil
}
