// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/parley/internal/store"
	"github.com/sigil-dev/parley/internal/transcript"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

func (s *Server) registerRoutes() {
	s.registerChatRoute()
	s.registerTTSRoute()

	huma.Register(s.api, huma.Operation{
		OperationID: "log-message",
		Method:      http.MethodPost,
		Path:        "/api/log/message",
		Summary:     "Archive a conversation turn",
		Tags:        []string{"transcript"},
	}, s.handleLogMessage)

	huma.Register(s.api, huma.Operation{
		OperationID: "log-button",
		Method:      http.MethodPost,
		Path:        "/api/log/button",
		Summary:     "Archive a button click",
		Tags:        []string{"transcript"},
	}, s.handleLogButton)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-turns",
		Method:      http.MethodGet,
		Path:        "/api/log/turns",
		Summary:     "List archived turns, oldest first",
		Tags:        []string{"transcript"},
	}, s.handleListTurns)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-buttons",
		Method:      http.MethodGet,
		Path:        "/api/log/buttons",
		Summary:     "List archived button clicks, oldest first",
		Tags:        []string{"transcript"},
	}, s.handleListButtons)
}

// --- Request/Response types for huma ---

// Fields are optional in the schema so a missing field is reported as 400
// by the handler rather than 422 by validation.
type logMessageInput struct {
	Body struct {
		Message string `json:"message,omitempty" doc:"Turn text"`
		From    string `json:"from,omitempty" doc:"Turn author: user or assistant"`
		UserID  string `json:"userId,omitempty" doc:"Device identifier"`
	}
}

type logButtonInput struct {
	Body struct {
		UserID        string `json:"userId,omitempty" doc:"Device identifier"`
		ButtonClicked string `json:"buttonClicked,omitempty" doc:"Button label"`
	}
}

type logOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

type listInput struct {
	SessionID string `query:"session_id" doc:"Only entries of this device"`
	Limit     int    `query:"limit" minimum:"0" maximum:"1000" doc:"Most recent entries to return (default 100)"`
}

// TurnSummary is an archived turn.
type TurnSummary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ButtonSummary is an archived button click.
type ButtonSummary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

type listTurnsOutput struct {
	Body struct {
		Turns []TurnSummary `json:"turns"`
	}
}

type listButtonsOutput struct {
	Body struct {
		Buttons []ButtonSummary `json:"buttons"`
	}
}

// --- Handlers ---

func (s *Server) handleLogMessage(ctx context.Context, input *logMessageInput) (*logOutput, error) {
	if input.Body.UserID == "" {
		return nil, huma.Error400BadRequest("userId is required")
	}
	return s.archive(ctx, transcript.TurnEvent{
		SessionID: input.Body.UserID,
		Role:      input.Body.From,
		Content:   input.Body.Message,
		At:        time.Now().UTC(),
	})
}

func (s *Server) handleLogButton(ctx context.Context, input *logButtonInput) (*logOutput, error) {
	if input.Body.UserID == "" || input.Body.ButtonClicked == "" {
		return nil, huma.Error400BadRequest("userId and buttonClicked are required")
	}
	return s.archive(ctx, transcript.ButtonClickEvent{
		SessionID: input.Body.UserID,
		Label:     input.Body.ButtonClicked,
		At:        time.Now().UTC(),
	})
}

func (s *Server) archive(ctx context.Context, event transcript.Event) (*logOutput, error) {
	if s.services.Transcripts == nil {
		return nil, huma.Error503ServiceUnavailable("transcript archive not configured")
	}

	if err := transcript.NewArchiveSink(s.services.Transcripts).Write(ctx, event); err != nil {
		if parleyerr.IsInvalidInput(err) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		slog.Error("archiving transcript event", "session_id", event.Session(), "error", err)
		return nil, huma.Error500InternalServerError("archiving transcript event")
	}

	out := &logOutput{}
	out.Body.Status = "ok"
	return out, nil
}

func (s *Server) handleListTurns(ctx context.Context, input *listInput) (*listTurnsOutput, error) {
	if s.services.Transcripts == nil {
		return nil, huma.Error503ServiceUnavailable("transcript archive not configured")
	}

	turns, err := s.services.Transcripts.ListTurns(ctx, store.ListOpts{SessionID: input.SessionID, Limit: input.Limit})
	if err != nil {
		return nil, huma.Error500InternalServerError("listing turns", err)
	}

	out := &listTurnsOutput{}
	out.Body.Turns = make([]TurnSummary, 0, len(turns))
	for _, t := range turns {
		out.Body.Turns = append(out.Body.Turns, TurnSummary{
			ID:        t.ID,
			SessionID: t.SessionID,
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		})
	}
	return out, nil
}

func (s *Server) handleListButtons(ctx context.Context, input *listInput) (*listButtonsOutput, error) {
	if s.services.Transcripts == nil {
		return nil, huma.Error503ServiceUnavailable("transcript archive not configured")
	}

	clicks, err := s.services.Transcripts.ListClicks(ctx, store.ListOpts{SessionID: input.SessionID, Limit: input.Limit})
	if err != nil {
		return nil, huma.Error500InternalServerError("listing button clicks", err)
	}

	out := &listButtonsOutput{}
	out.Body.Buttons = make([]ButtonSummary, 0, len(clicks))
	for _, c := range clicks {
		out.Body.Buttons = append(out.Body.Buttons, ButtonSummary{
			ID:        c.ID,
			SessionID: c.SessionID,
			Label:     c.Label,
			CreatedAt: c.CreatedAt,
		})
	}
	return out, nil
}
