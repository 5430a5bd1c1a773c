// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"time"

	"sqlgate/cli/internal/dsn"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PingTimeout bounds the connectivity check made by Open.
const PingTimeout = 5 * time.Second

// Open resolves rawDSN, connects with the matching driver and verifies the
// connection. The caller owns the returned backend and must Close it.
func Open(ctx context.Context, rawDSN string, logger *zap.Logger) (Backend, error) {
	normalized, err := dsn.Parse(rawDSN)
	if err != nil {
		return nil, err
	}

	var backend Backend
	switch dsn.DetectDBType(normalized) {
	case dsn.DBTypePostgreSQL:
		pool, err := pgxpool.New(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("create connection pool: %w", err)
		}
		backend = NewPgxRunner(pool, logger)
	case dsn.DBTypeSQLite:
		backend, err = OpenSQLite(normalized, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, dsn.NewParseError(rawDSN, "unsupported database type", "use postgres:// or sqlite:<path>")
	}

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("connection check failed: %w", err)
	}
	return backend, nil
}
