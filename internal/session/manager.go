// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package session runs the conversation: it gates sends so only one exchange
// is live, streams the reply into a draft, appends finished turns to the
// history, and hands each reply to the speaker.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/sigil-dev/parley/internal/chat"
	"github.com/sigil-dev/parley/internal/stream"
	"github.com/sigil-dev/parley/internal/transcript"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// ManagerConfig holds dependencies for the Manager.
type ManagerConfig struct {
	SessionID string
	// HistoryLength caps the turns sent upstream; 0 sends the full history.
	HistoryLength int
	Chat          ChatClient
	Speaker       Speaker  // optional
	Recorder      Recorder // optional
	Observer      Observer // optional
	ReaderOptions []stream.Option
	Now           func() time.Time
}

// Manager owns one conversation.
type Manager struct {
	id            string
	historyLength int
	chat          ChatClient
	speaker       Speaker
	recorder      Recorder
	observer      Observer
	readerOpts    []stream.Option
	now           func() time.Time

	mu       sync.Mutex
	history  []Turn
	draft    string
	hasDraft bool
	state    State
	version  uint64
	gen      uint64 // exchange generation; bumped on every send and cancel
	cancel   context.CancelFunc
	closed   bool

	pubMu     sync.Mutex
	published uint64

	wg sync.WaitGroup
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.SessionID == "" {
		return nil, parleyerr.New(parleyerr.CodeChatRequestInvalid, "session id is required")
	}
	if cfg.Chat == nil {
		return nil, parleyerr.New(parleyerr.CodeChatRequestInvalid, "chat client is required")
	}
	if cfg.HistoryLength < 0 {
		return nil, parleyerr.Errorf(parleyerr.CodeChatRequestInvalid, "history length must not be negative, got %d", cfg.HistoryLength)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		id:            cfg.SessionID,
		historyLength: cfg.HistoryLength,
		chat:          cfg.Chat,
		speaker:       cfg.Speaker,
		recorder:      cfg.Recorder,
		observer:      cfg.Observer,
		readerOpts:    cfg.ReaderOptions,
		now:           now,
	}, nil
}

// ID returns the session identifier.
func (m *Manager) ID() string { return m.id }

// Send starts an exchange for text using the current history. It reports
// false, changing nothing, when an exchange is in flight or a reply is being
// spoken.
func (m *Manager) Send(ctx context.Context, text string) bool {
	return m.send(ctx, text, nil, false)
}

// SendWithHistory is Send for hosts that own the history: history replaces
// the session's history before the user turn is appended.
func (m *Manager) SendWithHistory(ctx context.Context, text string, history []Turn) bool {
	return m.send(ctx, text, history, true)
}

func (m *Manager) send(ctx context.Context, text string, history []Turn, replace bool) bool {
	m.mu.Lock()
	if m.closed || m.state != Idle || m.speaking() {
		m.mu.Unlock()
		return false
	}

	if replace {
		m.history = slices.Clone(history)
	}
	m.history = append(m.history, Turn{Role: RoleUser, Content: text})
	m.state = Waiting
	m.draft, m.hasDraft = "", true
	m.gen++
	gen := m.gen

	exCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	window := m.windowLocked()
	snap := m.changedLocked()
	m.wg.Add(1)
	m.mu.Unlock()

	m.record(transcript.TurnEvent{SessionID: m.id, Role: string(RoleUser), Content: text, At: m.now()})
	m.publish(snap)

	go m.exchange(exCtx, gen, window)
	return true
}

// Cancel aborts the exchange in flight, including a reply still being
// spoken. A non-empty draft is kept in the history as a user turn. It
// reports whether there was anything to cancel.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	if m.state == Idle {
		m.mu.Unlock()
		return false
	}

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.state = Idle
	if m.hasDraft && m.draft != "" {
		m.history = append(m.history, Turn{Role: RoleUser, Content: m.draft})
	}
	m.draft, m.hasDraft = "", false
	snap := m.changedLocked()
	m.mu.Unlock()

	m.publish(snap)
	return true
}

// Clear empties the history. It does not cancel an exchange in flight.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.history = nil
	snap := m.changedLocked()
	m.mu.Unlock()

	m.publish(snap)
}

// Snapshot returns a copy of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Speaking() bool {
	return m.speaking()
}

func (m *Manager) History() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

// Wait blocks until no exchange goroutine is running. It must not be called
// concurrently with Send.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels any exchange in flight and waits for it to stop. Later sends
// are rejected.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.Cancel()
	m.wg.Wait()
}

func (m *Manager) exchange(ctx context.Context, gen uint64, window []chat.Message) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("exchange panicked",
				"session_id", m.id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			m.finish(gen)
		}
	}()

	text, ok := m.streamReply(ctx, gen, window)
	if !ok {
		m.finish(gen)
		return
	}

	m.record(transcript.TurnEvent{SessionID: m.id, Role: string(RoleAssistant), Content: text, At: m.now()})

	if m.speaker != nil {
		h := m.speaker.Speak(ctx, text)
		m.publishCurrent()
		<-h.Done()
	}

	m.finish(gen)
}

// streamReply runs the request and applies fragments. It reports false when
// the exchange failed or was superseded; otherwise the assistant turn has
// been appended.
func (m *Manager) streamReply(ctx context.Context, gen uint64, window []chat.Message) (string, bool) {
	body, err := m.chat.Stream(ctx, window)
	if err != nil {
		m.logFailure(ctx, "chat request failed", err)
		return "", false
	}
	defer func() { _ = body.Close() }()

	reader := stream.NewReader(body, m.readerOpts...)
	for {
		frag, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			m.logFailure(ctx, "chat stream failed", err)
			return "", false
		}
		if !m.applyFragment(gen, frag.Content) {
			return "", false
		}
	}

	return m.complete(gen)
}

func (m *Manager) applyFragment(gen uint64, content string) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.state = Loading
	m.draft += content
	m.hasDraft = true
	snap := m.changedLocked()
	m.mu.Unlock()

	m.publish(snap)
	return true
}

// complete turns the draft into the assistant turn. The state is left as is
// until playback has finished.
func (m *Manager) complete(gen uint64) (string, bool) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return "", false
	}
	text := m.draft
	m.history = append(m.history, Turn{Role: RoleAssistant, Content: text})
	m.draft, m.hasDraft = "", false
	snap := m.changedLocked()
	m.mu.Unlock()

	m.publish(snap)
	return text, true
}

// finish returns the session to Idle if gen is still the live exchange.
func (m *Manager) finish(gen uint64) {
	m.mu.Lock()
	if gen == m.gen && m.state != Idle {
		m.state = Idle
		m.draft, m.hasDraft = "", false
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.changedLocked()
	}
	m.mu.Unlock()

	// Speaking may have changed even when the exchange was superseded.
	m.publishCurrent()
}

func (m *Manager) logFailure(ctx context.Context, msg string, err error) {
	if ctx.Err() != nil {
		slog.Debug(msg, "session_id", m.id, "error", err)
		return
	}
	slog.Warn(msg, "session_id", m.id, "error", err)
}

func (m *Manager) speaking() bool {
	return m.speaker != nil && m.speaker.Speaking()
}

func (m *Manager) record(event transcript.Event) {
	if m.recorder != nil {
		m.recorder.Record(event)
	}
}

// caller holds m.mu
func (m *Manager) windowLocked() []chat.Message {
	turns := m.history
	if m.historyLength > 0 && len(turns) > m.historyLength {
		turns = turns[len(turns)-m.historyLength:]
	}
	out := make([]chat.Message, len(turns))
	for i, t := range turns {
		out[i] = chat.Message{Role: string(t.Role), Content: t.Content}
	}
	return out
}

// caller holds m.mu
func (m *Manager) changedLocked() Snapshot {
	m.version++
	return m.snapshotLocked()
}

// caller holds m.mu
func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		ID:       m.id,
		History:  slices.Clone(m.history),
		Draft:    m.draft,
		HasDraft: m.hasDraft,
		State:    m.state,
		Speaking: m.speaking(),
		Version:  m.version,
	}
}

func (m *Manager) publishCurrent() {
	if m.observer == nil {
		return
	}
	m.mu.Lock()
	snap := m.changedLocked()
	m.mu.Unlock()
	m.publish(snap)
}

// publish delivers snap unless a newer snapshot has already been claimed.
// The observer runs without any manager lock held, so it may call back into
// the manager; deliveries from different goroutines can arrive out of
// Version order.
func (m *Manager) publish(snap Snapshot) {
	if m.observer == nil {
		return
	}
	m.pubMu.Lock()
	if snap.Version <= m.published {
		m.pubMu.Unlock()
		return
	}
	m.published = snap.Version
	m.pubMu.Unlock()

	m.observer(snap)
}
