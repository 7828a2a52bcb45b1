// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps provider credentials and the device identifier out of
// plain-text config by storing them in the operating system keyring.
package secrets

// Store provides secret storage keyed by (service, key).
type Store interface {
	Store(service, key, value string) error

	// Retrieve returns an error carrying CodeSecretNotFound when the entry
	// does not exist.
	Retrieve(service, key string) (string, error)

	Delete(service, key string) error

	// List returns the key names written through this store for service.
	List(service string) ([]string, error)
}
