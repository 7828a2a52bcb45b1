// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Valid reports whether the role is a known turn author.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Validate checks that the Turn has all required fields set correctly.
// Content may be empty: an empty reply is still a turn.
func (t Turn) Validate() error {
	if t.ID == "" {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "turn: ID is required")
	}
	if t.SessionID == "" {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "turn: SessionID is required")
	}
	if !t.Role.Valid() {
		return parleyerr.Errorf(parleyerr.CodeStoreInvalidInput, "turn: invalid role %q", t.Role)
	}
	if t.CreatedAt.IsZero() {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "turn: CreatedAt is required")
	}
	return nil
}

// Validate checks that the ButtonClick has all required fields set.
func (c ButtonClick) Validate() error {
	if c.ID == "" {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "button click: ID is required")
	}
	if c.SessionID == "" {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "button click: SessionID is required")
	}
	if c.Label == "" {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "button click: Label is required")
	}
	if c.CreatedAt.IsZero() {
		return parleyerr.New(parleyerr.CodeStoreInvalidInput, "button click: CreatedAt is required")
	}
	return nil
}

// EffectiveLimit returns Limit, or DefaultListLimit when Limit is not positive.
func (o ListOpts) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}
