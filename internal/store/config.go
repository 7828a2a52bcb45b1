// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// StorageConfig controls which backend Open uses.
type StorageConfig struct {
	Backend string // "sqlite" (default) or "memory".
	Path    string // Database file for sqlite; ignored by memory.
}
