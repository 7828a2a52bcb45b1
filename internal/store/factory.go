// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// TranscriptStoreFactory opens a transcript store at path.
type TranscriptStoreFactory func(path string) (TranscriptStore, error)

var (
	factories   = map[string]TranscriptStoreFactory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f TranscriptStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Open creates the transcript store described by cfg.
func Open(cfg *StorageConfig) (TranscriptStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, parleyerr.Errorf(parleyerr.CodeStoreInvalidInput, "unsupported storage backend: %q", backend)
	}

	return factory(cfg.Path)
}
