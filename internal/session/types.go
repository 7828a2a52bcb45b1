// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package session

import (
	"context"
	"io"

	"github.com/sigil-dev/parley/internal/chat"
	"github.com/sigil-dev/parley/internal/speech"
	"github.com/sigil-dev/parley/internal/transcript"
)

// Role identifies who authored a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation. Turns are never modified once
// appended to the history.
type Turn struct {
	Role    Role
	Content string
}

// State is the interaction state of the session.
type State int

const (
	// Idle: no exchange in flight; Send is accepted.
	Idle State = iota
	// Waiting: request issued, no fragment received yet.
	Waiting
	// Loading: at least one fragment received.
	Loading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the session published to observers.
type Snapshot struct {
	ID      string
	History []Turn
	// Draft is the in-progress reply. HasDraft distinguishes an empty draft
	// from an absent one.
	Draft    string
	HasDraft bool
	State    State
	Speaking bool
	// Version increases with every change.
	Version uint64
}

// ChatClient sends the conversation window and returns the streamed reply.
type ChatClient interface {
	Stream(ctx context.Context, messages []chat.Message) (io.ReadCloser, error)
}

// Speaker voices completed replies.
type Speaker interface {
	Speak(ctx context.Context, text string) *speech.Handle
	Speaking() bool
}

// Recorder receives transcript events without blocking.
type Recorder interface {
	Record(event transcript.Event) bool
}

// Observer is called with a fresh Snapshot after every change. It runs on
// the goroutine that made the change, with no manager lock held, and must
// not block for long.
type Observer func(Snapshot)
