// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Handle tracks one Speak call.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed once playback has ended and the speaking flag has been
// reset for this call.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err reports why speaking ended early. Only valid after Done.
func (h *Handle) Err() error { return h.err }

// Sequencer runs text through a Synthesizer and a Player and reports whether
// anything is being spoken.
type Sequencer struct {
	synth  Synthesizer
	player Player

	mu     sync.Mutex
	active int
}

// NewSequencer returns a Sequencer. A nil player discards audio.
func NewSequencer(synth Synthesizer, player Player) *Sequencer {
	if player == nil {
		player = NullPlayer{}
	}
	return &Sequencer{synth: synth, player: player}
}

// Speaking reports whether a Speak call has not yet finished.
func (s *Sequencer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active > 0
}

// Speak voices text. Speaking is true before Speak returns and stays true
// until the returned handle is done. Blank text completes at once without a
// backend call. Cancelling ctx aborts the request or stops playback.
func (s *Sequencer) Speak(ctx context.Context, text string) *Handle {
	h := &Handle{done: make(chan struct{})}
	if strings.TrimSpace(text) == "" {
		close(h.done)
		return h
	}

	s.mu.Lock()
	s.active++
	s.mu.Unlock()

	go func() {
		h.err = s.speak(ctx, text)
		if h.err != nil {
			if parleyerr.IsCanceled(h.err) || ctx.Err() != nil {
				slog.Debug("speech stopped", "error", h.err)
			} else {
				slog.Warn("speech failed", "error", h.err)
			}
		}

		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		close(h.done)
	}()

	return h
}

func (s *Sequencer) speak(ctx context.Context, text string) error {
	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	pb, err := s.player.Play(ctx, audio.Data, audio.ContentType)
	if err != nil {
		return err
	}
	<-pb.Done()
	return pb.Err()
}
