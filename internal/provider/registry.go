// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"slices"
	"strings"
	"sync"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/sigil-dev/parley/pkg/health"
)

// Registry holds the configured providers and picks one per request: the
// default "provider/model" ref when its provider is healthy, otherwise the
// first healthy entry of the failover chain.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string
	failover   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, parleyerr.New(parleyerr.CodeProviderNotFound, "provider not found: "+name, parleyerr.FieldProvider(name))
	}
	return p, nil
}

// SetDefault sets the "provider/model" ref used for every request.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered refs tried when the default is unhealthy.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRefLocked(ref); err != nil {
			return err
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

// Route returns the provider and model to use. Providers named in exclude
// are skipped so a caller can move down the chain after a failed attempt.
func (r *Registry) Route(ctx context.Context, exclude ...string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultRef == "" {
		return nil, "", parleyerr.New(parleyerr.CodeProviderNotFound, "no default provider configured")
	}

	for _, ref := range append([]string{r.defaultRef}, r.failover...) {
		name, model := ParseRef(ref)
		if slices.Contains(exclude, name) {
			continue
		}
		p, ok := r.providers[name]
		if !ok || !p.Available(ctx) {
			continue
		}
		return p, model, nil
	}

	return nil, "", parleyerr.New(parleyerr.CodeProviderAllUnavailable, "all providers unavailable: no healthy provider found")
}

// MaxAttempts is the number of distinct refs Route can return.
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Health returns a snapshot for every provider that tracks its health,
// sorted by name.
func (r *Registry) Health() []health.Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []health.Metrics
	for _, p := range r.providers {
		if hr, ok := p.(HealthReporter); ok {
			out = append(out, hr.HealthMetrics())
		}
	}
	slices.SortFunc(out, func(a, b health.Metrics) int { return strings.Compare(a.Provider, b.Provider) })
	return out
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return parleyerr.Join(errs...)
	}
	return nil
}

// caller holds r.mu
func (r *Registry) checkRefLocked(ref string) error {
	name, model := ParseRef(ref)
	if name == "" || model == "" {
		return parleyerr.Errorf(parleyerr.CodeProviderInvalidModelRef, "model ref %q must use provider/model format", ref)
	}
	if _, ok := r.providers[name]; !ok {
		return parleyerr.New(parleyerr.CodeProviderNotFound, "provider not registered: "+name, parleyerr.FieldProvider(name))
	}
	return nil
}

// ParseRef splits a "provider/model" reference on the first "/". Model names
// may themselves contain slashes (e.g. openrouter/anthropic/claude-haiku-4-5).
func ParseRef(ref string) (providerName, model string) {
	name, model, _ := strings.Cut(ref, "/")
	return name, model
}
