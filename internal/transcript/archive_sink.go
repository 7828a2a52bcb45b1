// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package transcript

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/parley/internal/store"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// ArchiveSink writes events into a transcript store.
type ArchiveSink struct {
	store store.TranscriptStore
}

func NewArchiveSink(ts store.TranscriptStore) *ArchiveSink {
	return &ArchiveSink{store: ts}
}

func (s *ArchiveSink) Write(ctx context.Context, event Event) error {
	at := event.Time()
	if at.IsZero() {
		at = time.Now()
	}

	var err error
	switch e := event.(type) {
	case TurnEvent:
		err = s.store.AppendTurn(ctx, &store.Turn{
			ID:        uuid.NewString(),
			SessionID: e.SessionID,
			Role:      store.Role(e.Role),
			Content:   e.Content,
			CreatedAt: at,
		})
	case ButtonClickEvent:
		err = s.store.AppendClick(ctx, &store.ButtonClick{
			ID:        uuid.NewString(),
			SessionID: e.SessionID,
			Label:     e.Label,
			CreatedAt: at,
		})
	default:
		return parleyerr.Errorf(parleyerr.CodeTranscriptEventInvalid, "unsupported transcript event %T", event)
	}

	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeTranscriptSinkFailure, "archiving transcript event")
	}
	return nil
}

// MultiSink writes every event to each sink in turn.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return parleyerr.Join(errs...)
	}
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Write(context.Context, Event) error { return nil }
