// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package identity

import (
	"github.com/sigil-dev/parley/internal/secrets"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// KeyringBackend stores identity entries under one keyring service.
type KeyringBackend struct {
	secrets secrets.Store
	service string
}

// NewKeyringBackend returns a Store writing to service in the given keyring.
func NewKeyringBackend(store secrets.Store, service string) *KeyringBackend {
	return &KeyringBackend{secrets: store, service: service}
}

func (b *KeyringBackend) Get(key string) (string, error) {
	val, err := b.secrets.Retrieve(b.service, key)
	if err != nil {
		if parleyerr.HasCode(err, parleyerr.CodeSecretNotFound) {
			return "", parleyerr.Errorf(parleyerr.CodeIdentityNotFound, "identity %s/%s not set", b.service, key)
		}
		return "", parleyerr.Wrapf(err, parleyerr.CodeIdentityStorageFailure, "reading identity %s/%s", b.service, key)
	}
	return val, nil
}

func (b *KeyringBackend) Set(key, value string) error {
	if err := b.secrets.Store(b.service, key, value); err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeIdentityStorageFailure, "writing identity %s/%s", b.service, key)
	}
	return nil
}

func (b *KeyringBackend) Delete(key string) error {
	err := b.secrets.Delete(b.service, key)
	switch {
	case parleyerr.HasCode(err, parleyerr.CodeSecretNotFound):
		return parleyerr.Errorf(parleyerr.CodeIdentityNotFound, "identity %s/%s not set", b.service, key)
	case err != nil:
		return parleyerr.Wrapf(err, parleyerr.CodeIdentityStorageFailure, "deleting identity %s/%s", b.service, key)
	}
	return nil
}
