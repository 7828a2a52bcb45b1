// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package chat talks to the chat backend: it posts the conversation and hands
// back the streamed JSON-lines body.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Message is one conversation entry in the request payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body posted to the chat backend.
type Request struct {
	Messages []Message `json:"messages"`
}

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 512

// Client posts chat requests to a single endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a Client for endpoint. A nil httpClient uses a client
// without a timeout; streamed replies are bounded by the caller's context.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Stream sends messages and returns the response body once a success status
// has been received. The caller must close the body. Cancelling ctx aborts
// both the request and any in-progress body read.
func (c *Client) Stream(ctx context.Context, messages []Message) (io.ReadCloser, error) {
	payload, err := json.Marshal(Request{Messages: messages})
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeChatRequestInvalid, "encoding chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeChatRequestInvalid, "building chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, parleyerr.Wrap(err, parleyerr.CodeChatRequestFailure, "chat backend is not reachable",
				parleyerr.FieldEndpoint(c.endpoint))
		}
		return nil, parleyerr.Wrap(err, parleyerr.CodeChatRequestFailure, "sending chat request",
			parleyerr.FieldEndpoint(c.endpoint))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, parleyerr.New(parleyerr.CodeChatUpstreamFailure, "chat backend returned "+resp.Status+": "+string(bytes.TrimSpace(body)),
			parleyerr.FieldEndpoint(c.endpoint), parleyerr.FieldStatus(resp.StatusCode))
	}

	// A zero-length body is an empty stream, not an error.
	return resp.Body, nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
