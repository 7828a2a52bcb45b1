// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/sigil-dev/parley/internal/secrets"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key -> value (service is always "parley")
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", parleyerr.Errorf(parleyerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return parleyerr.Errorf(parleyerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func useSecretStore(t *testing.T, s secrets.Store) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return s }
	t.Cleanup(func() { secretStoreFactory = orig })
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{name: "empty store", want: "No secrets stored.\n"},
		{name: "single key", keys: []string{"openai-api-key"}, want: "openai-api-key\n"},
		{name: "sorted", keys: []string{"openai-api-key", "anthropic-api-key"}, want: "anthropic-api-key\nopenai-api-key\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSecretStore(t, newMockSecretStore(tt.keys...))

			out, err := runCLI(t, "", "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretSet(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{name: "value argument", args: []string{"openai-api-key", "sk-test"}, want: "sk-test"},
		{name: "value from stdin", stdin: "sk-piped\n", args: []string{"openai-api-key"}, want: "sk-piped"},
		{name: "stdin without newline", stdin: "sk-bare", args: []string{"openai-api-key"}, want: "sk-bare"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockSecretStore()
			useSecretStore(t, mock)

			out, err := runCLI(t, tt.stdin, append([]string{"secret", "set"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "keyring://parley/openai-api-key")
			assert.Equal(t, tt.want, mock.data["openai-api-key"])
		})
	}
}

func TestSecretSet_EmptyValue(t *testing.T) {
	mock := newMockSecretStore()
	useSecretStore(t, mock)

	_, err := runCLI(t, "\n", "secret", "set", "openai-api-key")
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeCLIInputInvalid))
	assert.Empty(t, mock.data)
}

func TestSecretDelete(t *testing.T) {
	mock := newMockSecretStore("openai-api-key")
	useSecretStore(t, mock)

	out, err := runCLI(t, "", "secret", "delete", "openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "Deleted secret: openai-api-key\n", out)
	assert.Empty(t, mock.data)

	_, err = runCLI(t, "", "secret", "delete", "openai-api-key")
	require.Error(t, err)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeSecretNotFound))
}

func TestSecret_ResolvedInConfig(t *testing.T) {
	mock := newMockSecretStore()
	mock.data["openai-api-key"] = "sk-from-keyring"
	useSecretStore(t, mock)

	path := writeConfig(t, "providers:\n  openai:\n    api_key: keyring://parley/openai-api-key\n")
	_, err := runCLI(t, "", "version", "--config", path)
	require.NoError(t, err)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", cfg.Providers["openai"].APIKey)
}

func TestSecret_UnresolvedInConfigFails(t *testing.T) {
	useSecretStore(t, newMockSecretStore())

	path := writeConfig(t, "providers:\n  openai:\n    api_key: keyring://parley/missing\n")
	_, err := runCLI(t, "", "identity", "show", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.openai.api_key")
	assert.Contains(t, err.Error(), "keyring://parley/missing")
}
