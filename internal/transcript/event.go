// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package transcript records conversation events for later review. Delivery
// is best-effort: recording never blocks or fails the conversation.
package transcript

import (
	"context"
	"time"
)

// Event is a transcript entry.
type Event interface {
	Session() string
	Time() time.Time
}

// TurnEvent is one message in the conversation. Role is "user" or
// "assistant".
type TurnEvent struct {
	SessionID string
	Role      string
	Content   string
	At        time.Time
}

func (e TurnEvent) Session() string { return e.SessionID }
func (e TurnEvent) Time() time.Time { return e.At }

// ButtonClickEvent records a tap on a sample prompt or call to action.
type ButtonClickEvent struct {
	SessionID string
	Label     string
	At        time.Time
}

func (e ButtonClickEvent) Session() string { return e.SessionID }
func (e ButtonClickEvent) Time() time.Time { return e.At }

// Sink delivers events somewhere durable.
type Sink interface {
	Write(ctx context.Context, event Event) error
}
