// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package speech voices finished assistant replies: it fetches synthesized
// audio from the speech backend, hands it to a player, and tracks whether
// playback is in progress.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Audio is one synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

const maxErrorBody = 512

// maxAudioBytes caps a synthesized clip; larger responses are rejected.
var maxAudioBytes int64 = 32 << 20

// Client posts {text} to the speech backend.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a Client for endpoint. A nil httpClient uses
// http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Synthesize requests audio for text. The response must be 2xx with an audio
// content type; a base64 transfer encoding is decoded.
func (c *Client) Synthesize(ctx context.Context, text string) (*Audio, error) {
	payload, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSpeechRequestInvalid, "encoding speech request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeSpeechRequestInvalid, "building speech request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		msg := "sending speech request"
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			msg = "speech backend is not reachable"
		}
		return nil, parleyerr.Wrap(err, parleyerr.CodeSpeechRequestFailure, msg, parleyerr.FieldEndpoint(c.endpoint))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, parleyerr.New(parleyerr.CodeSpeechUpstreamFailure, "speech backend returned "+resp.Status+": "+string(bytes.TrimSpace(body)),
			parleyerr.FieldEndpoint(c.endpoint), parleyerr.FieldStatus(resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if !isAudio(contentType) {
		return nil, parleyerr.New(parleyerr.CodeSpeechResponseInvalid, "speech backend returned non-audio content type "+strconv.Quote(contentType),
			parleyerr.FieldEndpoint(c.endpoint))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, parleyerr.Wrap(err, parleyerr.CodeSpeechRequestFailure, "reading speech response", parleyerr.FieldEndpoint(c.endpoint))
	}
	if int64(len(data)) > maxAudioBytes {
		return nil, parleyerr.Errorf(parleyerr.CodeSpeechResponseInvalid, "speech response exceeds %d bytes", maxAudioBytes)
	}

	if strings.EqualFold(resp.Header.Get("Content-Transfer-Encoding"), "base64") {
		decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
		if err != nil {
			return nil, parleyerr.Wrap(err, parleyerr.CodeSpeechResponseInvalid, "decoding base64 audio", parleyerr.FieldEndpoint(c.endpoint))
		}
		data = decoded
	}

	if len(data) == 0 {
		return nil, parleyerr.New(parleyerr.CodeSpeechResponseInvalid, "speech backend returned no audio", parleyerr.FieldEndpoint(c.endpoint))
	}

	return &Audio{Data: data, ContentType: contentType}, nil
}

func isAudio(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "audio/") || mediaType == "application/octet-stream"
}
