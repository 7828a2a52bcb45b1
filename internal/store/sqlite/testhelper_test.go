// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/sigil-dev/parley/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

func newTestStore(t *testing.T) *sqlite.TranscriptStore {
	t.Helper()
	s, err := sqlite.NewTranscriptStore(testDBPath(t, "transcript"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
