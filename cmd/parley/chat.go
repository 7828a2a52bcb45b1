// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sigil-dev/parley/internal/chat"
	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/debounce"
	"github.com/sigil-dev/parley/internal/session"
	"github.com/sigil-dev/parley/internal/speech"
	"github.com/sigil-dev/parley/internal/store"
	"github.com/sigil-dev/parley/internal/transcript"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// recorderDrainTimeout bounds how long exit waits for queued log events.
const recorderDrainTimeout = 3 * time.Second

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the sales assistant",
		Long: "Send a message and stream the reply. Starts an interactive session if no message is provided. " +
			"Replies are spoken through speech.player unless --mute is set.",
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().Bool("mute", false, "do not speak replies")
	cmd.Flags().String("endpoint", "", "override the chat endpoint URL")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	if f := cmd.Flags().Lookup("endpoint"); f.Changed {
		viper.Set("chat.endpoint", f.Value.String())
	}
	mute, _ := cmd.Flags().GetBool("mute")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) > 0 {
		return runOneShot(ctx, cmd.OutOrStdout(), cfg, mute, args[0])
	}
	return runInteractive(ctx, cmd, cfg, mute)
}

// chatRuntime is the wired client side of a conversation.
type chatRuntime struct {
	manager  *session.Manager
	recorder *transcript.Recorder
	archive  store.TranscriptStore
}

// newChatRuntime resolves the device identity and wires the chat, speech and
// transcript clients into a session manager.
func newChatRuntime(ctx context.Context, cfg *config.Config, mute bool, observer session.Observer) (*chatRuntime, error) {
	rt := &chatRuntime{}

	sink, archive, err := transcriptSink(cfg)
	if err != nil {
		return nil, err
	}
	rt.archive = archive
	rt.recorder = transcript.NewRecorder(sink, transcript.WithQueueSize(cfg.Transcript.QueueSize))

	mcfg := session.ManagerConfig{
		SessionID:     newIdentityResolver(cfg).ID(ctx),
		HistoryLength: cfg.Chat.HistoryLength,
		Chat:          chat.NewClient(cfg.Chat.Endpoint, &http.Client{Timeout: cfg.Chat.Timeout}),
		Recorder:      rt.recorder,
		Observer:      observer,
	}
	if cfg.Speech.Enabled && !mute {
		player, err := speech.NewExecPlayer(cfg.Speech.Player)
		if err != nil {
			rt.close()
			return nil, err
		}
		synth := speech.NewClient(cfg.Speech.Endpoint, &http.Client{Timeout: cfg.Speech.Timeout})
		mcfg.Speaker = speech.NewSequencer(synth, player)
	}

	rt.manager, err = session.NewManager(mcfg)
	if err != nil {
		rt.close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "creating session")
	}
	return rt, nil
}

// transcriptSink builds the sink for the configured log endpoints and local
// archive. The archive, when opened, is returned so it can be closed.
func transcriptSink(cfg *config.Config) (transcript.Sink, store.TranscriptStore, error) {
	var sinks transcript.MultiSink
	if cfg.Transcript.MessageEndpoint != "" || cfg.Transcript.ButtonEndpoint != "" {
		sinks = append(sinks, transcript.NewHTTPSink(
			cfg.Transcript.MessageEndpoint,
			cfg.Transcript.ButtonEndpoint,
			&http.Client{Timeout: transcript.DefaultWriteTimeout},
		))
	}

	var archive store.TranscriptStore
	if cfg.Transcript.Archive != "" {
		ts, err := store.Open(&store.StorageConfig{Backend: "sqlite", Path: cfg.Transcript.Archive})
		if err != nil {
			return nil, nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "opening transcript archive")
		}
		archive = ts
		sinks = append(sinks, transcript.NewArchiveSink(ts))
	}

	switch len(sinks) {
	case 0:
		return transcript.Discard{}, nil, nil
	case 1:
		return sinks[0], archive, nil
	default:
		return sinks, archive, nil
	}
}

// click records a tap on a sample prompt or call to action.
func (rt *chatRuntime) click(label string) {
	rt.recorder.Record(transcript.ButtonClickEvent{SessionID: rt.manager.ID(), Label: label, At: time.Now()})
}

// close stops the session and flushes queued transcript events.
func (rt *chatRuntime) close() {
	if rt.manager != nil {
		rt.manager.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recorderDrainTimeout)
	defer cancel()
	if err := rt.recorder.Close(ctx); err != nil {
		slog.Warn("transcript events not delivered before exit", "error", err, "dropped", rt.recorder.Dropped())
	}
	if rt.archive != nil {
		if err := rt.archive.Close(); err != nil {
			slog.Warn("closing transcript archive", "error", err)
		}
	}
}

// draftPrinter writes the growing draft of each reply to w as it streams.
type draftPrinter struct {
	w       io.Writer
	mu      sync.Mutex
	printed int
}

func (p *draftPrinter) observe(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !s.HasDraft || len(s.Draft) <= p.printed {
		return
	}
	_, _ = io.WriteString(p.w, s.Draft[p.printed:])
	p.printed = len(s.Draft)
}

func runOneShot(ctx context.Context, w io.Writer, cfg *config.Config, mute bool, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return parleyerr.New(parleyerr.CodeCLIInputInvalid, "message must not be empty")
	}

	printer := &draftPrinter{w: w}
	rt, err := newChatRuntime(ctx, cfg, mute, printer.observe)
	if err != nil {
		return err
	}
	defer rt.close()

	if !rt.manager.Send(ctx, text) {
		return parleyerr.New(parleyerr.CodeCLIRequestFailure, "session is busy")
	}
	rt.manager.Wait()
	_, _ = fmt.Fprintln(w)

	history := rt.manager.History()
	if len(history) == 0 || history[len(history)-1].Role != session.RoleAssistant {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return parleyerr.New(parleyerr.CodeCLIRequestFailure,
			"no reply from "+cfg.Chat.Endpoint+" (run with --verbose for details)",
			parleyerr.FieldEndpoint(cfg.Chat.Endpoint))
	}
	return nil
}

func runInteractive(ctx context.Context, cmd *cobra.Command, cfg *config.Config, mute bool) error {
	// The TUI owns the terminal, so logs go to a file.
	logFile, err := openLogFile()
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()
	setupLogging(logFile, viper.GetBool("verbose"))

	relay := &programRelay{}
	rt, err := newChatRuntime(ctx, cfg, mute, relay.observe)
	if err != nil {
		return err
	}
	defer rt.close()

	send := gatedSender(func(text string) bool {
		if !rt.manager.Send(ctx, text) {
			slog.Debug("send rejected, exchange in flight", "session_id", rt.manager.ID())
			return false
		}
		return true
	}, cfg.Chat.Debounce)

	model := newChatModel(chatModelDeps{
		Session: rt.manager,
		Send:    send,
		Click:   rt.click,
		Prompts: cfg.Prompts,
	})

	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)
	relay.attach(p)

	_, err = p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "running chat interface")
	}
	return nil
}

// programRelay forwards session snapshots into a bubbletea program. The
// program's event loop calls back into the session, so delivery must never
// wait for the loop.
type programRelay struct {
	mu   sync.Mutex
	prog *tea.Program
}

func (r *programRelay) attach(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prog = p
}

func (r *programRelay) observe(s session.Snapshot) {
	r.mu.Lock()
	p := r.prog
	r.mu.Unlock()
	if p != nil {
		// Send blocks until Update takes the message; chatModel drops
		// snapshots that arrive out of order.
		go p.Send(snapshotMsg(s))
	}
}

// gatedSender runs send through a debounce gate. The returned func reports
// true only when the gate fired and send accepted the text. It must be
// called from one goroutine, the program's event loop.
func gatedSender(send func(text string) bool, delay time.Duration) func(text string) bool {
	var accepted bool
	gate := debounce.New(func(text string) { accepted = send(text) }, delay)
	return func(text string) bool {
		accepted = false
		return gate.Call(text) && accepted
	}
}

// openLogFile opens parley.log in the user cache directory for appending.
func openLogFile() (*os.File, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "parley")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, parleyerr.Errorf(parleyerr.CodeCLISetupFailure, "creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "parley.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, parleyerr.Errorf(parleyerr.CodeCLISetupFailure, "opening log file: %w", err)
	}
	return f, nil
}
