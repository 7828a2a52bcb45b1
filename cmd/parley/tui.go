// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/session"
)

// chatSession is the part of session.Manager the chat view drives.
type chatSession interface {
	Cancel() bool
	Clear()
	Snapshot() session.Snapshot
}

type chatModelDeps struct {
	Session chatSession
	// Send submits text through the debounce gate and reports whether it ran.
	Send    func(text string) bool
	Click   func(label string)
	Prompts config.PromptsConfig
}

// snapshotMsg carries a session change into the bubbletea loop.
type snapshotMsg session.Snapshot

// suggestion is a tappable prompt shown under the input.
type suggestion struct {
	label string
	cta   bool
}

// --- lipgloss styles ---

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	chatDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	chatSelected   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// chatModel is the bubbletea model for an interactive chat.
type chatModel struct {
	deps     chatModelDeps
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	snap     session.Snapshot
	selected int // index into suggestions, -1 for none
	notice   string
	width    int
}

func newChatModel(deps chatModelDeps) chatModel {
	in := textinput.New()
	in.Placeholder = "Ask about models, features or financing"
	in.CharLimit = 2000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := chatModel{
		deps:     deps,
		input:    in,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		snap:     deps.Session.Snapshot(),
		selected: -1,
		width:    80,
	}
	m.refresh()
	return m
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-5, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case snapshotMsg:
		// Observers run on several goroutines; keep the newest.
		if msg.Version < m.snap.Version {
			return m, nil
		}
		m.setSnapshot(session.Snapshot(msg))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.deps.Session.Cancel() {
			m.notice = "Stopped."
		}
		m.syncSession()
		return m, nil
	case "ctrl+l":
		m.deps.Session.Clear()
		m.notice = "Conversation cleared."
		m.syncSession()
		return m, nil
	case "tab":
		if n := len(m.suggestions()); n > 0 {
			m.selected = (m.selected + 1) % n
		}
		return m, nil
	case "enter":
		return m.handleEnter()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) handleEnter() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text != "" {
		if m.submit(text) {
			m.input.Reset()
		}
		return m, nil
	}

	sugg := m.suggestions()
	if m.selected < 0 || m.selected >= len(sugg) {
		return m, nil
	}
	chosen := sugg[m.selected]
	m.selected = -1
	if m.deps.Click != nil {
		m.deps.Click(chosen.label)
	}
	if chosen.cta {
		m.notice = "Thanks for your interest, a BMW specialist will follow up."
		return m, nil
	}
	m.submit(chosen.label)
	return m, nil
}

func (m *chatModel) setSnapshot(s session.Snapshot) {
	m.snap = s
	if m.selected >= len(m.suggestions()) {
		m.selected = -1
	}
	m.refresh()
}

// syncSession reads the session directly after a local change instead of
// waiting for the relayed snapshot.
func (m *chatModel) syncSession() {
	if s := m.deps.Session.Snapshot(); s.Version >= m.snap.Version {
		m.setSnapshot(s)
	}
}

// submit hands text to the session unless it is busy. It reports whether
// the text was sent.
func (m *chatModel) submit(text string) bool {
	if m.busy() {
		m.notice = "Still answering. Press Esc to stop."
		return false
	}
	if !m.deps.Send(text) {
		m.notice = "Please wait a moment."
		return false
	}
	m.notice = ""
	return true
}

func (m chatModel) busy() bool {
	return m.snap.State != session.Idle || m.snap.Speaking
}

// suggestions lists the sample prompts on an empty conversation, and the call
// to action once enough replies have been given.
func (m chatModel) suggestions() []suggestion {
	if len(m.snap.History) == 0 && !m.snap.HasDraft {
		out := make([]suggestion, len(m.deps.Prompts.Samples))
		for i, s := range m.deps.Prompts.Samples {
			out[i] = suggestion{label: s}
		}
		return out
	}

	if m.deps.Prompts.CTAAfter <= 0 || m.deps.Prompts.CTALabel == "" {
		return nil
	}
	replies := 0
	for _, t := range m.snap.History {
		if t.Role == session.RoleAssistant {
			replies++
		}
	}
	if replies >= m.deps.Prompts.CTAAfter {
		return []suggestion{{label: m.deps.Prompts.CTALabel, cta: true}}
	}
	return nil
}

// refresh re-renders the conversation into the viewport.
func (m *chatModel) refresh() {
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 10))

	var b strings.Builder
	if len(m.snap.History) == 0 && m.deps.Prompts.Welcome != "" {
		b.WriteString(wrap.Render(chatDimStyle.Render(m.deps.Prompts.Welcome)))
		b.WriteString("\n\n")
	}
	for _, t := range m.snap.History {
		b.WriteString(wrap.Render(speaker(t.Role) + " " + t.Content))
		b.WriteString("\n\n")
	}
	if m.snap.HasDraft && m.snap.Draft != "" {
		b.WriteString(wrap.Render(speaker(session.RoleAssistant) + " " + m.snap.Draft + "▌"))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func speaker(role session.Role) string {
	if role == session.RoleUser {
		return userStyle.Render("You:")
	}
	return assistantStyle.Render("Sarah:")
}

func (m chatModel) status() string {
	switch {
	case m.snap.State == session.Waiting:
		return m.spinner.View() + " Thinking... (Esc to stop)"
	case m.snap.Speaking:
		return m.spinner.View() + " Speaking... (Esc to stop)"
	case m.snap.State == session.Loading:
		return m.spinner.View() + " Answering... (Esc to stop)"
	default:
		return chatDimStyle.Render("Enter to send, Tab for suggestions, Ctrl+L to clear, Ctrl+C to quit")
	}
}

func (m chatModel) View() string {
	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.status())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	for i, s := range m.suggestions() {
		label := "[" + s.label + "]"
		if i == m.selected {
			label = chatSelected.Render(label)
		} else {
			label = chatDimStyle.Render(label)
		}
		b.WriteString(label + " ")
	}
	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice))
	}
	return b.String()
}
