// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface defines the minimal database access surface the model
// stores depend on, so they work against both *sql.DB and *sql.Tx.
package dbinterface

import (
	"context"
	"database/sql"
)

// Querier is the query surface shared by a database handle and a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxQuerier is a Querier that additionally supports prepared statements,
// satisfied by *sql.Tx.
type TxQuerier interface {
	Querier
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}
