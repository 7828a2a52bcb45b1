// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	snap      session.Snapshot
	cancelled int
	cleared   int
}

func (f *fakeSession) Cancel() bool {
	f.cancelled++
	return f.snap.State != session.Idle || f.snap.Speaking
}

func (f *fakeSession) Clear()                     { f.cleared++ }
func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

type chatHarness struct {
	sess   *fakeSession
	sent   []string
	clicks []string
	accept bool
	model  chatModel
}

func newChatHarness(t *testing.T) *chatHarness {
	t.Helper()
	h := &chatHarness{sess: &fakeSession{}, accept: true}
	h.model = newChatModel(chatModelDeps{
		Session: h.sess,
		Send: func(text string) bool {
			if h.accept {
				h.sent = append(h.sent, text)
			}
			return h.accept
		},
		Click: func(label string) { h.clicks = append(h.clicks, label) },
		Prompts: config.PromptsConfig{
			Welcome:  "Welcome to BMW.",
			Samples:  config.DefaultSamples,
			CTAAfter: 2,
			CTALabel: "More information about BMW",
		},
	})
	return h
}

func (h *chatHarness) send(t *testing.T, msg tea.Msg) {
	t.Helper()
	next, _ := h.model.Update(msg)
	m, ok := next.(chatModel)
	require.True(t, ok)
	h.model = m
}

func (h *chatHarness) typeText(t *testing.T, text string) {
	t.Helper()
	h.send(t, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func history(turns ...string) []session.Turn {
	out := make([]session.Turn, len(turns))
	for i, c := range turns {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		out[i] = session.Turn{Role: role, Content: c}
	}
	return out
}

func TestChatModel_ShowsWelcomeAndSamples(t *testing.T) {
	h := newChatHarness(t)

	view := h.model.View()
	assert.Contains(t, view, "Welcome to BMW.")
	assert.Contains(t, view, "Which model is best for a family?")
}

func TestChatModel_EnterSendsTypedText(t *testing.T) {
	h := newChatHarness(t)

	h.typeText(t, "Do you have electric models?")
	h.send(t, key(tea.KeyEnter))

	assert.Equal(t, []string{"Do you have electric models?"}, h.sent)
	assert.Empty(t, h.model.input.Value())
	assert.Empty(t, h.clicks)
}

func TestChatModel_BlankInputSendsNothing(t *testing.T) {
	h := newChatHarness(t)

	h.typeText(t, "   ")
	h.send(t, key(tea.KeyEnter))
	assert.Empty(t, h.sent)
}

func TestChatModel_BusySessionKeepsInput(t *testing.T) {
	for _, snap := range []session.Snapshot{
		{State: session.Waiting, HasDraft: true, Version: 1},
		{State: session.Loading, HasDraft: true, Draft: "BMW", Version: 1},
		{State: session.Idle, Speaking: true, Version: 1},
	} {
		h := newChatHarness(t)
		h.send(t, snapshotMsg(snap))

		h.typeText(t, "Another question")
		h.send(t, key(tea.KeyEnter))

		assert.Empty(t, h.sent)
		assert.Equal(t, "Another question", h.model.input.Value())
		assert.Contains(t, h.model.View(), "Press Esc to stop")
	}
}

func TestChatModel_DebouncedSendKeepsInput(t *testing.T) {
	h := newChatHarness(t)
	h.accept = false

	h.typeText(t, "Hi")
	h.send(t, key(tea.KeyEnter))

	assert.Equal(t, "Hi", h.model.input.Value())
	assert.Contains(t, h.model.View(), "Please wait")
}

func TestChatModel_SampleClickRecordsAndSends(t *testing.T) {
	h := newChatHarness(t)

	h.send(t, key(tea.KeyTab))
	h.send(t, key(tea.KeyTab))
	h.send(t, key(tea.KeyEnter))

	assert.Equal(t, []string{config.DefaultSamples[1]}, h.clicks)
	assert.Equal(t, []string{config.DefaultSamples[1]}, h.sent)
}

func TestChatModel_TabWrapsAround(t *testing.T) {
	h := newChatHarness(t)

	for range len(config.DefaultSamples) + 1 {
		h.send(t, key(tea.KeyTab))
	}
	assert.Equal(t, 0, h.model.selected)
}

func TestChatModel_CallToActionAfterReplies(t *testing.T) {
	h := newChatHarness(t)

	h.send(t, snapshotMsg{History: history("q1", "a1"), Version: 1})
	assert.Empty(t, h.model.suggestions(), "samples hide once the conversation starts")

	h.send(t, snapshotMsg{History: history("q1", "a1", "q2", "a2"), Version: 2})
	require.Len(t, h.model.suggestions(), 1)
	assert.Contains(t, h.model.View(), "More information about BMW")

	h.send(t, key(tea.KeyTab))
	h.send(t, key(tea.KeyEnter))

	assert.Equal(t, []string{"More information about BMW"}, h.clicks)
	assert.Empty(t, h.sent, "the call to action is not a chat message")
}

func TestChatModel_EscCancels(t *testing.T) {
	h := newChatHarness(t)
	h.sess.snap = session.Snapshot{State: session.Loading}

	h.send(t, key(tea.KeyEsc))
	assert.Equal(t, 1, h.sess.cancelled)
	assert.Contains(t, h.model.View(), "Stopped.")
}

func TestChatModel_CtrlLClears(t *testing.T) {
	h := newChatHarness(t)

	h.send(t, key(tea.KeyCtrlL))
	assert.Equal(t, 1, h.sess.cleared)
}

func TestChatModel_CtrlCQuits(t *testing.T) {
	h := newChatHarness(t)

	_, cmd := h.model.Update(key(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestChatModel_RendersDraftAndIgnoresStaleSnapshots(t *testing.T) {
	h := newChatHarness(t)

	h.send(t, snapshotMsg{State: session.Loading, History: history("Hi"), Draft: "Hello, how", HasDraft: true, Version: 3})
	assert.Contains(t, h.model.viewport.View(), "Hello, how")

	h.send(t, snapshotMsg{State: session.Waiting, History: history("Hi"), HasDraft: true, Version: 2})
	assert.Equal(t, session.Loading, h.model.snap.State)
	assert.Contains(t, h.model.View(), "Answering")
}
