// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/feedscout/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEngineStateStore(t *testing.T) {
	store := NewEngineStateStore(newTestDB(t).Conn())
	ctx := context.Background()

	t.Run("unknown key yields zero", func(t *testing.T) {
		v, err := store.GetLocal(ctx, 1, "never_set")
		require.NoError(t, err)
		assert.Zero(t, v)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.SetLocal(ctx, 1, "auto_dl_supported", 1))

		v, err := store.GetLocal(ctx, 1, "auto_dl_supported")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		require.NoError(t, store.SetLocal(ctx, 1, "auto_dl_supported", 2))

		v, err := store.GetLocal(ctx, 1, "auto_dl_supported")
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
	})

	t.Run("keys scoped per engine", func(t *testing.T) {
		require.NoError(t, store.SetLocal(ctx, 2, "auto_dl_supported", 1))

		v, err := store.GetLocal(ctx, 1, "auto_dl_supported")
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := store.GetLocal(ctx, 1, "  ")
		assert.Error(t, err)
		assert.Error(t, store.SetLocal(ctx, 1, "", 1))
	})

	t.Run("delete engine removes only its rows", func(t *testing.T) {
		require.NoError(t, store.DeleteEngine(ctx, 1))

		v, err := store.GetLocal(ctx, 1, "auto_dl_supported")
		require.NoError(t, err)
		assert.Zero(t, v)

		v, err = store.GetLocal(ctx, 2, "auto_dl_supported")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
	})
}
