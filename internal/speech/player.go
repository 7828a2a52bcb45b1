// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package speech

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/mattn/go-shellwords"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// DefaultPlayerCommand plays audio read from stdin and exits when done.
const DefaultPlayerCommand = "ffplay -nodisp -autoexit -loglevel quiet -"

// Playback is an audio clip that has started playing.
type Playback interface {
	// Done is closed when playback has ended, normally or not.
	Done() <-chan struct{}
	// Err reports why playback ended early. Only valid after Done.
	Err() error
}

// Player starts audio playback. Play returns once playback has started.
type Player interface {
	Play(ctx context.Context, audio []byte, contentType string) (Playback, error)
}

type playback struct {
	done chan struct{}
	err  error
}

func (p *playback) Done() <-chan struct{} { return p.done }
func (p *playback) Err() error            { return p.err }

func finishedPlayback(err error) *playback {
	p := &playback{done: make(chan struct{}), err: err}
	close(p.done)
	return p
}

// ExecPlayer pipes audio into an external command's stdin.
type ExecPlayer struct {
	cmd []string
}

// NewExecPlayer parses command with shell quoting rules.
func NewExecPlayer(command string) (*ExecPlayer, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSpeechPlayerInvalid, "parse player command")
	}
	if len(args) == 0 {
		return nil, parleyerr.New(parleyerr.CodeSpeechPlayerInvalid, "player command empty")
	}
	return &ExecPlayer{cmd: args}, nil
}

// Play starts the player process. Playback ends when the process exits;
// cancelling ctx kills it.
func (e *ExecPlayer) Play(ctx context.Context, audio []byte, _ string) (Playback, error) {
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSpeechPlaybackFailure, "player stdin")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSpeechPlaybackFailure, "starting player %s", e.cmd[0])
	}

	p := &playback{done: make(chan struct{})}
	go func() {
		defer close(p.done)

		// A player may stop reading early and still exit cleanly, so the
		// write result only matters through the exit status.
		_, _ = stdin.Write(audio)
		_ = stdin.Close()

		if err := cmd.Wait(); err != nil {
			if ctx.Err() != nil {
				p.err = parleyerr.Wrapf(ctx.Err(), parleyerr.CodeSpeechPlaybackCanceled, "playback stopped")
				return
			}
			p.err = parleyerr.Wrapf(err, parleyerr.CodeSpeechPlaybackFailure, "player %s: %s", e.cmd[0], bytes.TrimSpace(stderr.Bytes()))
		}
	}()

	return p, nil
}

// NullPlayer discards audio and finishes immediately.
type NullPlayer struct{}

func (NullPlayer) Play(context.Context, []byte, string) (Playback, error) {
	return finishedPlayback(nil), nil
}
