// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/parley/internal/provider"
)

const maxTTSBody = 64 << 10

// TTSRequest is the body of POST /api/tts.
type TTSRequest struct {
	Text string `json:"text"`
}

func (s *Server) registerTTSRoute() {
	// Registered for every method so non-POST requests get our 405 body.
	s.router.HandleFunc("/api/tts", s.handleTTS)

	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "tts",
		Method:      http.MethodPost,
		Path:        "/api/tts",
		Summary:     "Synthesize speech",
		Tags:        []string{"speech"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:       "object",
						Required:   []string{"text"},
						Properties: map[string]*huma.Schema{"text": {Type: "string"}},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Synthesized audio",
				Content: map[string]*huma.MediaType{
					"audio/mpeg": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
					"audio/wav":  {Schema: &huma.Schema{Type: "string", Format: "binary"}},
				},
			},
			"400": {Description: "Missing text"},
			"405": {Description: "Method not allowed"},
			"500": {Description: "Synthesis failed"},
		},
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.services.Speech == nil {
		writeError(w, http.StatusServiceUnavailable, "speech provider not configured")
		return
	}

	var req TTSRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTTSBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	v := s.services.Voice
	audio, err := s.services.Speech.Synthesize(r.Context(), provider.SpeechRequest{
		Text:  req.Text,
		Model: v.Model,
		Voice: v.Voice,
		Speed: v.Speed,
	})
	if err != nil {
		slog.Warn("speech synthesis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		slog.Debug("client went away during audio write", "error", err)
	}
}
