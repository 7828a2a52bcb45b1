// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health holds the serializable provider health snapshot reported by
// the gateway's health endpoint.
package health

import "time"

// Metrics is a point-in-time view of one upstream provider.
type Metrics struct {
	Provider      string     `json:"provider"`
	Available     bool       `json:"available"`
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}
