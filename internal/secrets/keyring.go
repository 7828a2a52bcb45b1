// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexKey holds a JSON array of the key names stored for a service.
// go-keyring cannot enumerate entries on its own.
const indexKey = "::index"

// KeyringStore implements Store on top of zalando/go-keyring (Keychain on
// macOS, secret-service on Linux, Credential Manager on Windows).
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkEntry("store", service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	keys, err := s.index(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.writeIndex(service, append(keys, key))
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkEntry("retrieve", service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", parleyerr.Errorf(parleyerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return "", parleyerr.Wrapf(err, parleyerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkEntry("delete", service, key); err != nil {
		return err
	}

	err := keyring.Delete(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return parleyerr.Errorf(parleyerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return parleyerr.Wrapf(err, parleyerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	keys, err := s.index(service)
	if err != nil {
		return err
	}
	return s.writeIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, parleyerr.New(parleyerr.CodeSecretInvalidInput, "secret list: service must not be empty")
	}
	return s.index(service)
}

func (s *KeyringStore) index(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSecretListFailure, "loading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSecretListFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) writeIndex(service string, keys []string) error {
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to remove empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeSecretListFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeSecretListFailure, "saving key index for %s", service)
	}
	return nil
}

func checkEntry(op, service, key string) error {
	if service == "" {
		return parleyerr.Errorf(parleyerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return parleyerr.Errorf(parleyerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	if key == indexKey {
		return parleyerr.Errorf(parleyerr.CodeSecretInvalidInput, "secret %s: key %q is reserved", op, key)
	}
	return nil
}
