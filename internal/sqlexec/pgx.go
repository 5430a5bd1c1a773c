// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PgxRunner executes statements using a PostgreSQL connection pool.
type PgxRunner struct {
	// Pool is the PostgreSQL connection pool
	Pool *pgxpool.Pool
	// inspector caches information_schema lookups for Describe
	inspector *SchemaInspector
	logger    *zap.Logger
}

// NewPgxRunner creates a runner from an existing pgx pool.
func NewPgxRunner(pool *pgxpool.Pool, logger *zap.Logger) *PgxRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgxRunner{
		Pool:      pool,
		inspector: NewSchemaInspector(pool),
		logger:    logger,
	}
}

// Run executes stmt on a pooled connection. Writes are wrapped in a
// transaction that is committed only if Exec succeeds.
func (r *PgxRunner) Run(ctx context.Context, stmt string, write bool, maxRows int) (*Result, error) {
	conn, err := r.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	res := newResult()

	if write {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx) // no-op after commit

		ct, err := tx.Exec(ctx, stmt)
		if err != nil {
			return nil, err
		}
		res.RowsAffected = ct.RowsAffected()

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit failed: %w", err)
		}
		r.logger.Debug("write committed", zap.Int64("rows_affected", res.RowsAffected))
		return res, nil
	}

	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	res.Columns = make([]string, len(fds))
	for i, fd := range fds {
		res.Columns[i] = fd.Name
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("query scanned",
		zap.Int("rows", len(res.Rows)),
		zap.Bool("truncated", res.Truncated))
	return res, nil
}

// Tables lists base tables outside the system schemas.
func (r *PgxRunner) Tables(ctx context.Context) ([]string, error) {
	return r.inspector.Tables(ctx)
}

// Describe renders the columns of every table for prompting.
func (r *PgxRunner) Describe(ctx context.Context) (string, error) {
	return r.inspector.Describe(ctx)
}

func (r *PgxRunner) Ping(ctx context.Context) error { return r.Pool.Ping(ctx) }

func (r *PgxRunner) Close() error {
	r.Pool.Close()
	return nil
}
