// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/feedscout/internal/dbinterface"
)

// EngineStateStore persists per-engine key/value state in SQLite. It backs
// the extraction engine's auto-download flag and link classification cache so
// both survive restarts.
type EngineStateStore struct {
	db dbinterface.Querier
}

// NewEngineStateStore constructs a new engine state store.
func NewEngineStateStore(db dbinterface.Querier) *EngineStateStore {
	return &EngineStateStore{db: db}
}

// GetLocal returns the stored value for an engine-scoped key. Unknown keys
// yield 0 without error.
func (s *EngineStateStore) GetLocal(ctx context.Context, engineID int64, key string) (int64, error) {
	if strings.TrimSpace(key) == "" {
		return 0, fmt.Errorf("state key cannot be empty")
	}

	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_state WHERE engine_id = ? AND key = ?`,
		engineID, key,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("get engine state: %w", err)
	}
	return value, nil
}

// SetLocal upserts the value for an engine-scoped key.
func (s *EngineStateStore) SetLocal(ctx context.Context, engineID int64, key string, value int64) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("state key cannot be empty")
	}

	const query = `
		INSERT INTO engine_state (engine_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(engine_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, engineID, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set engine state: %w", err)
	}
	return nil
}

// DeleteEngine removes all state rows of one engine.
func (s *EngineStateStore) DeleteEngine(ctx context.Context, engineID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM engine_state WHERE engine_id = ?`, engineID); err != nil {
		return fmt.Errorf("delete engine state: %w", err)
	}
	return nil
}
