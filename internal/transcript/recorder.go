// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package transcript

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 10 * time.Second
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithQueueSize bounds the number of undelivered events.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithWriteTimeout bounds each sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// Recorder hands events to a Sink on a background worker.
type Recorder struct {
	sink         Sink
	queueSize    int
	writeTimeout time.Duration

	queue    chan Event
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a Recorder delivering to sink.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:         sink,
		queueSize:    DefaultQueueSize,
		writeTimeout: DefaultWriteTimeout,
		done:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan Event, r.queueSize)

	go r.run()
	return r
}

// Record enqueues event and returns at once. It reports false when the event
// was dropped because the queue is full or the recorder is closed.
func (r *Recorder) Record(event Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}

	select {
	case r.queue <- event:
		return true
	default:
		r.dropped.Add(1)
		slog.Warn("transcript queue full, dropping event",
			"session_id", event.Session(),
			"queue_size", r.queueSize,
		)
		return false
	}
}

// Dropped returns the number of events that were never queued.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered.
// Events still queued when ctx ends are abandoned.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		// Unblock the worker so it stops after the current write.
		r.stopOnce.Do(func() { close(r.stop) })
		return parleyerr.Wrapf(ctx.Err(), parleyerr.CodeTranscriptSinkFailure, "draining transcript queue")
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for event := range r.queue {
		select {
		case <-r.stop:
			return
		default:
		}
		r.deliver(event)
	}
}

func (r *Recorder) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.sink.Write(ctx, event); err != nil {
		slog.Warn("transcript sink write failed",
			"session_id", event.Session(),
			"error", err,
		)
	}
}
