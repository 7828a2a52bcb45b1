// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package identity

// SetIDGenerator replaces the uuid source for deterministic tests.
func (r *Resolver) SetIDGenerator(fn func() string) {
	r.newID = fn
}
