// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package identity assigns each device a stable anonymous identifier.
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Store is durable client-side key/value storage.
type Store interface {
	// Get returns an error carrying CodeIdentityNotFound when key is unset.
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Resolver hands out the device identifier. The stored value is read once and
// memoized; if storage fails the resolver falls back to a process-lifetime id.
type Resolver struct {
	store Store
	key   string
	newID func() string

	mu       sync.Mutex
	id       string
	volatile bool
}

// NewResolver creates a Resolver reading and writing key in store.
func NewResolver(store Store, key string) *Resolver {
	return &Resolver{store: store, key: key, newID: uuid.NewString}
}

// ID returns the device identifier, creating and persisting one on first use.
// It never fails.
func (r *Resolver) ID(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != "" {
		return r.id
	}

	id, err := r.store.Get(r.key)
	switch {
	case err == nil && id != "":
		r.id = id
		return r.id
	case err != nil && !parleyerr.IsNotFound(err):
		slog.WarnContext(ctx, "identity storage unavailable, using volatile id", "key", r.key, "error", err)
		r.id, r.volatile = r.newID(), true
		return r.id
	}

	r.id = r.newID()
	if err := r.store.Set(r.key, r.id); err != nil {
		slog.WarnContext(ctx, "persisting identity failed, using volatile id", "key", r.key, "error", err)
		r.volatile = true
	}
	return r.id
}

// Volatile reports whether the current id lives only for this process.
func (r *Resolver) Volatile() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volatile
}

// Reset forgets the persisted identifier. The next ID call creates a new one.
func (r *Resolver) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(r.key); err != nil && !parleyerr.IsNotFound(err) {
		return parleyerr.Wrapf(err, parleyerr.CodeIdentityStorageFailure, "deleting identity %s", r.key)
	}
	r.id, r.volatile = "", false
	return nil
}
