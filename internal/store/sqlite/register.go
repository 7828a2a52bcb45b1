// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"github.com/sigil-dev/parley/internal/store"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newTranscriptStore)
}

func newTranscriptStore(path string) (store.TranscriptStore, error) {
	if path == "" {
		return nil, parleyerr.New(parleyerr.CodeStoreInvalidInput, "sqlite backend requires a database path")
	}
	return NewTranscriptStore(path)
}
