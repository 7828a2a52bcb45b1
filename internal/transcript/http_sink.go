// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// MessagePayload is the body posted for a TurnEvent.
type MessagePayload struct {
	Message string `json:"message"`
	From    string `json:"from"`
	UserID  string `json:"userId"`
}

// ButtonPayload is the body posted for a ButtonClickEvent.
type ButtonPayload struct {
	UserID        string `json:"userId"`
	ButtonClicked string `json:"buttonClicked"`
}

// HTTPSink posts events to the log backend. An empty endpoint disables that
// kind of event.
type HTTPSink struct {
	messageEndpoint string
	buttonEndpoint  string
	http            *http.Client
}

func NewHTTPSink(messageEndpoint, buttonEndpoint string, httpClient *http.Client) *HTTPSink {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPSink{messageEndpoint: messageEndpoint, buttonEndpoint: buttonEndpoint, http: httpClient}
}

func (s *HTTPSink) Write(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case TurnEvent:
		return s.post(ctx, s.messageEndpoint, MessagePayload{Message: e.Content, From: e.Role, UserID: e.SessionID})
	case ButtonClickEvent:
		return s.post(ctx, s.buttonEndpoint, ButtonPayload{UserID: e.SessionID, ButtonClicked: e.Label})
	default:
		return parleyerr.Errorf(parleyerr.CodeTranscriptEventInvalid, "unsupported transcript event %T", event)
	}
}

func (s *HTTPSink) post(ctx context.Context, endpoint string, payload any) error {
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeTranscriptEventInvalid, "encoding transcript event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeTranscriptSinkFailure, "building transcript request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return parleyerr.Wrap(err, parleyerr.CodeTranscriptSinkFailure, "posting transcript event", parleyerr.FieldEndpoint(endpoint))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parleyerr.New(parleyerr.CodeTranscriptSinkFailure, "log backend returned "+resp.Status,
			parleyerr.FieldEndpoint(endpoint), parleyerr.FieldStatus(resp.StatusCode))
	}
	return nil
}
