// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package debounce drops repeated invocations that arrive in quick succession.
//
// The gate is leading-edge: the first call of a burst runs immediately and
// every call arriving within the delay of the previous one is discarded.
// Discarded calls still restart the window, so a steady stream of calls spaced
// closer than the delay runs exactly once.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is used when a Gate is built with a non-positive delay.
const DefaultDelay = 300 * time.Millisecond

// State is the gate's memory between calls.
type State struct {
	Pending  bool
	LastCall time.Time
}

// Decide reports whether a call arriving at now should run, and the state to
// keep for the next call.
func Decide(state State, now time.Time, delay time.Duration) (fire bool, next State) {
	fire = !state.Pending || now.Sub(state.LastCall) >= delay
	return fire, State{Pending: true, LastCall: now}
}

// Option configures a Gate.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Gate wraps op with leading-edge debounce. It is safe for concurrent use.
type Gate[T any] struct {
	op    func(T)
	delay time.Duration
	now   func() time.Time

	mu    sync.Mutex
	state State
}

// New returns a Gate that runs op at most once per burst of calls.
func New[T any](op func(T), delay time.Duration, opts ...Option) *Gate[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Gate[T]{op: op, delay: delay, now: o.now}
}

// Call runs op with arg unless the call falls inside the current window.
// It reports whether op ran. op runs outside the gate's lock.
func (g *Gate[T]) Call(arg T) bool {
	g.mu.Lock()
	fire, next := Decide(g.state, g.now(), g.delay)
	g.state = next
	g.mu.Unlock()

	if fire {
		g.op(arg)
	}
	return fire
}

// Delay returns the suppression window.
func (g *Gate[T]) Delay() time.Duration {
	return g.delay
}
