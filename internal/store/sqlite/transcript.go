// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/parley/internal/store"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// Compile-time interface check.
var _ store.TranscriptStore = (*TranscriptStore)(nil)

// TranscriptStore implements store.TranscriptStore backed by SQLite.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore opens (or creates) a SQLite database at dbPath and
// initialises the turns and button_clicks tables.
func NewTranscriptStore(dbPath string) (*TranscriptStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "opening transcript db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "pinging transcript db")
	}

	if err := migrateTranscript(db); err != nil {
		_ = db.Close()
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "migrating transcript tables")
	}

	return &TranscriptStore{db: db}, nil
}

func migrateTranscript(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT UNIQUE NOT NULL,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);

CREATE TABLE IF NOT EXISTS button_clicks (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT UNIQUE NOT NULL,
	session_id TEXT NOT NULL,
	label      TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_button_clicks_session ON button_clicks(session_id, seq);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *TranscriptStore) Close() error {
	return s.db.Close()
}

// AppendTurn inserts a turn.
func (s *TranscriptStore) AppendTurn(ctx context.Context, turn *store.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO turns (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, turn.ID, turn.SessionID, string(turn.Role), turn.Content, formatTime(turn.CreatedAt))
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "appending turn %s", turn.ID)
	}
	return nil
}

// AppendClick inserts a button click.
func (s *TranscriptStore) AppendClick(ctx context.Context, click *store.ButtonClick) error {
	if err := click.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO button_clicks (id, session_id, label, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, click.ID, click.SessionID, click.Label, formatTime(click.CreatedAt))
	if err != nil {
		return parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "appending button click %s", click.ID)
	}
	return nil
}

// ListTurns returns the most recent turns, oldest first.
func (s *TranscriptStore) ListTurns(ctx context.Context, opts store.ListOpts) ([]*store.Turn, error) {
	const q = `SELECT id, session_id, role, content, created_at FROM (
	SELECT seq, id, session_id, role, content, created_at FROM turns
	WHERE ? = '' OR session_id = ?
	ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, opts.SessionID, opts.SessionID, opts.EffectiveLimit())
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "listing turns")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var turns []*store.Turn
	for rows.Next() {
		var t store.Turn
		var role, createdAt string
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &createdAt); err != nil {
			return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "scanning turn row")
		}
		t.Role = store.Role(role)
		t.CreatedAt = parseTime(createdAt)
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "iterating turn rows")
	}
	return turns, nil
}

// ListClicks returns the most recent button clicks, oldest first.
func (s *TranscriptStore) ListClicks(ctx context.Context, opts store.ListOpts) ([]*store.ButtonClick, error) {
	const q = `SELECT id, session_id, label, created_at FROM (
	SELECT seq, id, session_id, label, created_at FROM button_clicks
	WHERE ? = '' OR session_id = ?
	ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, opts.SessionID, opts.SessionID, opts.EffectiveLimit())
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "listing button clicks")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var clicks []*store.ButtonClick
	for rows.Next() {
		var c store.ButtonClick
		var createdAt string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Label, &createdAt); err != nil {
			return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "scanning button click row")
		}
		c.CreatedAt = parseTime(createdAt)
		clicks = append(clicks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeStoreDatabaseFailure, "iterating button click rows")
	}
	return clicks, nil
}

// formatTime serialises t for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
