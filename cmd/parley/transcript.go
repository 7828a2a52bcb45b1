// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/sigil-dev/parley/internal/config"
	"github.com/sigil-dev/parley/internal/server"
	"github.com/sigil-dev/parley/internal/store"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

func newTranscriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect logged conversations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List logged turns, or button clicks with --buttons",
		Long: "List the most recent logged entries from the gateway, or from a local " +
			"archive file with --archive.",
		RunE: runTranscriptList,
	}
	list.Flags().String("session", "", "only entries of this device identity")
	list.Flags().Bool("mine", false, "only entries of this device")
	list.Flags().Int("limit", 20, "most recent entries to show")
	list.Flags().Bool("buttons", false, "list button clicks instead of turns")
	list.Flags().String("gateway", "", "gateway address (default: host of transcript.message_endpoint)")
	list.Flags().String("archive", "", "read a local SQLite archive instead of the gateway")

	cmd.AddCommand(list)
	return cmd
}

func runTranscriptList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	session, _ := flags.GetString("session")
	limit, _ := flags.GetInt("limit")
	buttons, _ := flags.GetBool("buttons")
	archive, _ := flags.GetString("archive")
	if mine, _ := flags.GetBool("mine"); mine {
		session = newIdentityResolver(cfg).ID(cmd.Context())
	}
	if limit < 0 {
		return parleyerr.Errorf(parleyerr.CodeCLIInputInvalid, "limit must not be negative, got %d", limit)
	}

	var src transcriptSource
	if archive != "" {
		ts, err := store.Open(&store.StorageConfig{Backend: "sqlite", Path: archive})
		if err != nil {
			return err
		}
		defer func() { _ = ts.Close() }()
		src = archiveSource{ts: ts, cmd: cmd}
	} else {
		src = gatewaySource{gw: newGatewayClient(transcriptGateway(cmd, cfg))}
	}

	out := cmd.OutOrStdout()
	if buttons {
		clicks, err := src.buttons(session, limit)
		if err != nil {
			return err
		}
		return printButtons(out, clicks)
	}

	turns, err := src.turns(session, limit)
	if err != nil {
		return err
	}
	return printTurns(out, turns)
}

func transcriptGateway(cmd *cobra.Command, cfg *config.Config) string {
	if gw, _ := cmd.Flags().GetString("gateway"); gw != "" {
		return gw
	}
	return gatewayBase(cfg.Transcript.MessageEndpoint)
}

type transcriptSource interface {
	turns(session string, limit int) ([]server.TurnSummary, error)
	buttons(session string, limit int) ([]server.ButtonSummary, error)
}

type gatewaySource struct {
	gw *gatewayClient
}

func listQuery(session string, limit int) string {
	q := url.Values{}
	if session != "" {
		q.Set("session_id", session)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (s gatewaySource) turns(session string, limit int) ([]server.TurnSummary, error) {
	var body struct {
		Turns []server.TurnSummary `json:"turns"`
	}
	if err := s.gw.getJSON("/api/log/turns"+listQuery(session, limit), &body); err != nil {
		return nil, err
	}
	return body.Turns, nil
}

func (s gatewaySource) buttons(session string, limit int) ([]server.ButtonSummary, error) {
	var body struct {
		Buttons []server.ButtonSummary `json:"buttons"`
	}
	if err := s.gw.getJSON("/api/log/buttons"+listQuery(session, limit), &body); err != nil {
		return nil, err
	}
	return body.Buttons, nil
}

type archiveSource struct {
	ts  store.TranscriptStore
	cmd *cobra.Command
}

func (s archiveSource) turns(session string, limit int) ([]server.TurnSummary, error) {
	turns, err := s.ts.ListTurns(s.cmd.Context(), store.ListOpts{SessionID: session, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]server.TurnSummary, len(turns))
	for i, t := range turns {
		out[i] = server.TurnSummary{
			ID:        t.ID,
			SessionID: t.SessionID,
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		}
	}
	return out, nil
}

func (s archiveSource) buttons(session string, limit int) ([]server.ButtonSummary, error) {
	clicks, err := s.ts.ListClicks(s.cmd.Context(), store.ListOpts{SessionID: session, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]server.ButtonSummary, len(clicks))
	for i, c := range clicks {
		out[i] = server.ButtonSummary{
			ID:        c.ID,
			SessionID: c.SessionID,
			Label:     c.Label,
			CreatedAt: c.CreatedAt,
		}
	}
	return out, nil
}

func printTurns(w io.Writer, turns []server.TurnSummary) error {
	if len(turns) == 0 {
		_, err := fmt.Fprintln(w, "No turns logged.")
		return err
	}
	for _, t := range turns {
		if _, err := fmt.Fprintf(w, "%s  %-36s  %-9s  %s\n",
			t.CreatedAt.Local().Format(timeLayout), t.SessionID, t.Role, t.Content); err != nil {
			return err
		}
	}
	return nil
}

func printButtons(w io.Writer, clicks []server.ButtonSummary) error {
	if len(clicks) == 0 {
		_, err := fmt.Fprintln(w, "No button clicks logged.")
		return err
	}
	for _, c := range clicks {
		if _, err := fmt.Fprintf(w, "%s  %-36s  %s\n",
			c.CreatedAt.Local().Format(timeLayout), c.SessionID, c.Label); err != nil {
			return err
		}
	}
	return nil
}
