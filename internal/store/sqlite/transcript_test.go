// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sigil-dev/parley/internal/store"
	"github.com/sigil-dev/parley/internal/store/sqlite"
	parleyerr "github.com/sigil-dev/parley/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptStore_AppendAndListTurns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)

	require.NoError(t, s.AppendTurn(ctx, &store.Turn{
		ID: "t1", SessionID: "device-1", Role: store.RoleUser,
		Content: "What are the current BMW models available?", CreatedAt: created,
	}))
	require.NoError(t, s.AppendTurn(ctx, &store.Turn{
		ID: "t2", SessionID: "device-1", Role: store.RoleAssistant,
		Content: "", CreatedAt: created.Add(time.Second),
	}))

	turns, err := s.ListTurns(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "t1", turns[0].ID)
	assert.Equal(t, store.RoleUser, turns[0].Role)
	assert.Equal(t, "What are the current BMW models available?", turns[0].Content)
	assert.True(t, created.Equal(turns[0].CreatedAt))
	assert.Equal(t, store.RoleAssistant, turns[1].Role)
	assert.Empty(t, turns[1].Content)
}

func TestTranscriptStore_ListLimitAndSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := range 6 {
		session := "a"
		if i >= 3 {
			session = "b"
		}
		require.NoError(t, s.AppendTurn(ctx, &store.Turn{
			ID: fmt.Sprintf("t%d", i), SessionID: session, Role: store.RoleUser,
			Content: "x", CreatedAt: time.Now(),
		}))
	}

	turns, err := s.ListTurns(ctx, store.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "t4", turns[0].ID)
	assert.Equal(t, "t5", turns[1].ID)

	turns, err = s.ListTurns(ctx, store.ListOpts{SessionID: "a"})
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "t0", turns[0].ID)
	assert.Equal(t, "t2", turns[2].ID)
}

func TestTranscriptStore_Clicks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendClick(ctx, &store.ButtonClick{
		ID: "c1", SessionID: "device-1", Label: "More information about BMW", CreatedAt: time.Now(),
	}))

	clicks, err := s.ListClicks(ctx, store.ListOpts{SessionID: "device-1"})
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, "More information about BMW", clicks[0].Label)

	clicks, err = s.ListClicks(ctx, store.ListOpts{SessionID: "other"})
	require.NoError(t, err)
	assert.Empty(t, clicks)
}

func TestTranscriptStore_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.AppendTurn(ctx, &store.Turn{ID: "t1", SessionID: "d", Role: "tool", CreatedAt: time.Now()})
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeStoreInvalidInput))
}

func TestTranscriptStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	turn := &store.Turn{ID: "t1", SessionID: "d", Role: store.RoleUser, CreatedAt: time.Now()}

	require.NoError(t, s.AppendTurn(ctx, turn))
	err := s.AppendTurn(ctx, turn)
	assert.True(t, parleyerr.HasCode(err, parleyerr.CodeStoreDatabaseFailure))
}

func TestTranscriptStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "reopen")

	s, err := sqlite.NewTranscriptStore(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(ctx, &store.Turn{ID: "t1", SessionID: "d", Role: store.RoleUser, CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = sqlite.NewTranscriptStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	turns, err := s.ListTurns(ctx, store.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}
