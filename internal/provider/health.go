// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"sync"
	"time"

	"github.com/sigil-dev/parley/pkg/health"
)

// DefaultHealthCooldown is how long a failed provider is skipped by routing.
const DefaultHealthCooldown = 30 * time.Second

// HealthTracker marks a provider unhealthy after a failure until a cooldown
// elapses, after which routing may try it again.
type HealthTracker struct {
	name     string
	cooldown time.Duration

	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	failureCount int64
	nowFunc      func() time.Time
}

// NewHealthTracker returns a healthy tracker. A non-positive cooldown uses
// DefaultHealthCooldown.
func NewHealthTracker(name string, cooldown time.Duration) *HealthTracker {
	if cooldown <= 0 {
		cooldown = DefaultHealthCooldown
	}
	return &HealthTracker{name: name, cooldown: cooldown, healthy: true, nowFunc: time.Now}
}

// caller holds h.mu
func (h *HealthTracker) isHealthyLocked() bool {
	return h.healthy || h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// HealthMetrics returns a snapshot of the tracker.
func (h *HealthTracker) HealthMetrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		Provider:     h.name,
		Available:    h.isHealthyLocked(),
		FailureCount: h.failureCount,
	}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
