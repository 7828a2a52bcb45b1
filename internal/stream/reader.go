// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package stream decodes a chat completion body delivered as JSON lines into
// a pull-based sequence of content fragments.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/openai/openai-go"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Fragment is one piece of assistant text.
type Fragment struct {
	Content string
	// Line is the 1-based line of the body the fragment came from.
	Line int
}

// MalformedFunc observes a line that could not be decoded.
type MalformedFunc func(line int, raw []byte, err error)

// Option configures a Reader.
type Option func(*Reader)

// OnMalformed replaces the default handler, which logs a warning.
func OnMalformed(fn MalformedFunc) Option {
	return func(r *Reader) { r.onMalformed = fn }
}

// Reader yields fragments from a JSON-lines body. Lines may be split across
// or packed into reads of the underlying io.Reader arbitrarily. A Reader is
// single-use: once Next returns an error it keeps returning it.
type Reader struct {
	src         *bufio.Reader
	line        int
	malformed   int
	onMalformed MalformedFunc
	err         error
}

// NewReader returns a Reader over body.
func NewReader(body io.Reader, opts ...Option) *Reader {
	r := &Reader{
		src:         bufio.NewReader(body),
		onMalformed: logMalformed,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next non-empty fragment, or io.EOF once the body ends.
func (r *Reader) Next() (Fragment, error) {
	for r.err == nil {
		raw, err := r.src.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			r.err = parleyerr.Wrapf(err, parleyerr.CodeStreamReadFailure, "reading stream line %d", r.line+1)
			break
		}
		if errors.Is(err, io.EOF) {
			// Process a final unterminated line before reporting the end.
			r.err = io.EOF
			if len(raw) == 0 {
				break
			}
		}

		r.line++
		if content, ok := r.decode(raw); ok {
			return Fragment{Content: content, Line: r.line}, nil
		}
	}
	return Fragment{}, r.err
}

// Malformed returns how many lines failed to decode so far.
func (r *Reader) Malformed() int {
	return r.malformed
}

// Fragments adapts the reader for range-over-func. Iteration stops at the end
// of the body, on the first read error (yielded once), or when ctx is done.
func (r *Reader) Fragments(ctx context.Context) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(Fragment{}, err)
				return
			}

			frag, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(frag, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) decode(raw []byte) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		r.malformed++
		r.onMalformed(r.line, raw, parleyerr.Wrapf(err, parleyerr.CodeStreamDecodeInvalidFormat, "decoding stream line %d", r.line))
		return "", false
	}

	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}

func logMalformed(line int, raw []byte, err error) {
	const maxLogged = 200
	if len(raw) > maxLogged {
		raw = raw[:maxLogged]
	}
	slog.Warn("skipping malformed stream line", "line", line, "raw", string(raw), "error", err)
}
