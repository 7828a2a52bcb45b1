// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package session_test

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sigil-dev/parley/internal/chat"
	"github.com/sigil-dev/parley/internal/session"
	"github.com/sigil-dev/parley/internal/speech"
	"github.com/sigil-dev/parley/internal/transcript"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/stretchr/testify/require"
)

// chunkLine renders one JSON line carrying a content fragment.
func chunkLine(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": content}}},
	})
	return string(b) + "\n"
}

func streamBody(fragments ...string) string {
	var sb strings.Builder
	for _, f := range fragments {
		sb.WriteString(chunkLine(f))
	}
	return sb.String()
}

// fakeChat answers each request with the next scripted response.
type fakeChat struct {
	mu       sync.Mutex
	requests [][]chat.Message
	respond  func(ctx context.Context) (io.ReadCloser, error)
}

func staticChat(body string) *fakeChat {
	return &fakeChat{respond: func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}}
}

func failingChat(err error) *fakeChat {
	return &fakeChat{respond: func(context.Context) (io.ReadCloser, error) {
		return nil, err
	}}
}

func (f *fakeChat) Stream(ctx context.Context, messages []chat.Message) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, messages)
	f.mu.Unlock()
	return f.respond(ctx)
}

func (f *fakeChat) Requests() [][]chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]chat.Message(nil), f.requests...)
}

// pipeChat streams whatever the test writes; cancelling the exchange closes
// the pipe the way an aborted HTTP body would.
type pipeChat struct {
	*fakeChat
	w *io.PipeWriter
}

func newPipeChat() *pipeChat {
	pc := &pipeChat{fakeChat: &fakeChat{}}
	pc.respond = func(ctx context.Context) (io.ReadCloser, error) {
		r, w := io.Pipe()
		pc.mu.Lock()
		pc.w = w
		pc.mu.Unlock()
		go func() {
			<-ctx.Done()
			_ = r.CloseWithError(ctx.Err())
		}()
		return r, nil
	}
	return pc
}

func (p *pipeChat) writer(t *testing.T) *io.PipeWriter {
	t.Helper()
	var w *io.PipeWriter
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		w = p.w
		return w != nil
	}, time.Second, time.Millisecond)
	return w
}

// fakeSynth records every text it is asked to voice.
type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (*speech.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Audio{Data: []byte(text), ContentType: "audio/mpeg"}, nil
}

func (f *fakeSynth) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// gatedPlayer keeps playing until released or cancelled.
type gatedPlayer struct {
	release chan struct{}
	once    sync.Once
}

func newGatedPlayer() *gatedPlayer { return &gatedPlayer{release: make(chan struct{})} }

func (g *gatedPlayer) Release() { g.once.Do(func() { close(g.release) }) }

type chanPlayback struct {
	done chan struct{}
	err  error
}

func (c *chanPlayback) Done() <-chan struct{} { return c.done }
func (c *chanPlayback) Err() error            { return c.err }

func (g *gatedPlayer) Play(ctx context.Context, _ []byte, _ string) (speech.Playback, error) {
	pb := &chanPlayback{done: make(chan struct{})}
	go func() {
		defer close(pb.done)
		select {
		case <-g.release:
		case <-ctx.Done():
			pb.err = parleyerr.Wrapf(ctx.Err(), parleyerr.CodeSpeechPlaybackCanceled, "stopped")
		}
	}()
	return pb, nil
}

// fakeRecorder collects transcript events.
type fakeRecorder struct {
	mu     sync.Mutex
	events []transcript.Event
}

func (f *fakeRecorder) Record(event transcript.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return true
}

func (f *fakeRecorder) Turns() []transcript.TurnEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transcript.TurnEvent
	for _, e := range f.events {
		if te, ok := e.(transcript.TurnEvent); ok {
			out = append(out, te)
		}
	}
	return out
}

// snapshots collects every published Snapshot.
type snapshots struct {
	mu   sync.Mutex
	list []session.Snapshot
}

func (s *snapshots) observe(snap session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, snap)
}

func (s *snapshots) All() []session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Snapshot(nil), s.list...)
}

// drafts returns the distinct non-empty drafts seen while Loading, in order.
func (s *snapshots) Drafts() []string {
	var out []string
	for _, snap := range s.All() {
		if snap.State != session.Loading || !snap.HasDraft {
			continue
		}
		if len(out) == 0 || out[len(out)-1] != snap.Draft {
			out = append(out, snap.Draft)
		}
	}
	return out
}

type harness struct {
	mgr      *session.Manager
	synth    *fakeSynth
	player   *gatedPlayer
	speaker  *speech.Sequencer
	recorder *fakeRecorder
	snaps    *snapshots
}

func newHarness(t *testing.T, client session.ChatClient, historyLength int) *harness {
	t.Helper()

	h := &harness{
		synth:    &fakeSynth{},
		player:   newGatedPlayer(),
		recorder: &fakeRecorder{},
		snaps:    &snapshots{},
	}
	h.speaker = speech.NewSequencer(h.synth, h.player)

	mgr, err := session.NewManager(session.ManagerConfig{
		SessionID:     "device-1",
		HistoryLength: historyLength,
		Chat:          client,
		Speaker:       h.speaker,
		Recorder:      h.recorder,
		Observer:      h.snaps.observe,
	})
	require.NoError(t, err)
	h.mgr = mgr

	t.Cleanup(func() {
		h.player.Release()
		mgr.Close()
	})
	return h
}

func waitForState(t *testing.T, mgr *session.Manager, want session.State) {
	t.Helper()
	require.Eventually(t, func() bool { return mgr.State() == want }, 2*time.Second, time.Millisecond,
		"state never became %s", want)
}
