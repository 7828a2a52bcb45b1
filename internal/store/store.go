// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package store archives transcript events received by the gateway.
package store

import (
	"context"
	"time"
)

// TranscriptStore is an append-only archive of conversation turns and
// button clicks.
type TranscriptStore interface {
	AppendTurn(ctx context.Context, turn *Turn) error
	AppendClick(ctx context.Context, click *ButtonClick) error
	ListTurns(ctx context.Context, opts ListOpts) ([]*Turn, error)
	ListClicks(ctx context.Context, opts ListOpts) ([]*ButtonClick, error)
	Close() error
}

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one logged message.
type Turn struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ButtonClick records a tap on a sample prompt or call to action.
type ButtonClick struct {
	ID        string
	SessionID string
	Label     string
	CreatedAt time.Time
}

// ListOpts filters list queries. Results are the most recent Limit rows in
// the order they were appended.
type ListOpts struct {
	SessionID string
	Limit     int
}

// DefaultListLimit applies when ListOpts.Limit is not positive.
const DefaultListLimit = 100
