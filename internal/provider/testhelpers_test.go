// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"time"

	"github.com/sigil-dev/parley/internal/provider"
	"github.com/sigil-dev/parley/pkg/health"
)

// fakeProvider is a scripted provider whose health is a HealthTracker.
type fakeProvider struct {
	name   string
	health *provider.HealthTracker
	closed bool
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, health: provider.NewHealthTracker(name, time.Minute)}
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Available(_ context.Context) bool { return f.health.IsHealthy() }
func (f *fakeProvider) RecordFailure()                   { f.health.RecordFailure() }
func (f *fakeProvider) RecordSuccess()                   { f.health.RecordSuccess() }
func (f *fakeProvider) HealthMetrics() health.Metrics    { return f.health.HealthMetrics() }

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func (f *fakeProvider) Chat(_ context.Context, _ provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 2)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: f.name}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}
