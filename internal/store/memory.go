// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"slices"
	"sync"
)

func init() {
	RegisterBackend("memory", func(string) (TranscriptStore, error) {
		return NewMemoryStore(), nil
	})
}

var _ TranscriptStore = (*MemoryStore)(nil)

// MemoryStore keeps the archive in process memory. It is used when no
// database path is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	turns  []Turn
	clicks []ButtonClick
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) AppendTurn(_ context.Context, turn *Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.turns = append(m.turns, *turn)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AppendClick(_ context.Context, click *ButtonClick) error {
	if err := click.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.clicks = append(m.clicks, *click)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListTurns(_ context.Context, opts ListOpts) ([]*Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.turns, opts, func(t Turn) string { return t.SessionID }), nil
}

func (m *MemoryStore) ListClicks(_ context.Context, opts ListOpts) ([]*ButtonClick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.clicks, opts, func(c ButtonClick) string { return c.SessionID }), nil
}

func (m *MemoryStore) Close() error { return nil }

// caller holds the read lock
func lastN[T any](items []T, opts ListOpts, session func(T) string) []*T {
	var out []*T
	for i := len(items) - 1; i >= 0 && len(out) < opts.EffectiveLimit(); i-- {
		if opts.SessionID != "" && session(items[i]) != opts.SessionID {
			continue
		}
		item := items[i]
		out = append(out, &item)
	}
	slices.Reverse(out)
	return out
}
