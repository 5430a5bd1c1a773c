// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	// registers the pure-Go "sqlite" driver
	_ "modernc.org/sqlite"
)

// sampleRows is how many example rows Describe includes per table.
const sampleRows = 3

// SQLiteRunner executes statements through database/sql. Schema listing reads
// sqlite_master, so it expects a SQLite database.
type SQLiteRunner struct {
	DB     *sql.DB
	logger *zap.Logger
}

// NewSQLiteRunner wraps an open database handle.
func NewSQLiteRunner(db *sql.DB, logger *zap.Logger) *SQLiteRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteRunner{DB: db, logger: logger}
}

// OpenSQLite opens the database file at path with the modernc driver.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteRunner, error) {
	dsn := path
	if !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLiteRunner(db, logger), nil
}

// Run executes stmt. Writes run in a transaction; reads are scanned with
// byte slices converted to strings.
func (r *SQLiteRunner) Run(ctx context.Context, stmt string, write bool, maxRows int) (*Result, error) {
	if write {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		sr, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return nil, err
		}
		res := newResult()
		if n, err := sr.RowsAffected(); err == nil {
			res.RowsAffected = n
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit failed: %w", err)
		}
		return res, nil
	}

	rows, err := r.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	res, err := scanRows(rows, maxRows)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("query scanned",
		zap.Int("rows", len(res.Rows)),
		zap.Bool("truncated", res.Truncated))
	return res, nil
}

func scanRows(rows *sql.Rows, maxRows int) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := newResult()
	res.Columns = cols

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}

// Tables lists user tables from sqlite_master.
func (r *SQLiteRunner) Tables(ctx context.Context) ([]string, error) {
	tables, err := r.tableDDL(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.name
	}
	return names, nil
}

type tableDDL struct {
	name string
	ddl  string
}

func (r *SQLiteRunner) tableDDL(ctx context.Context) ([]tableDDL, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT name, sql FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []tableDDL
	for rows.Next() {
		var t tableDDL
		var ddl sql.NullString
		if err := rows.Scan(&t.name, &ddl); err != nil {
			return nil, err
		}
		t.ddl = ddl.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// Describe returns each table's CREATE statement followed by a few sample rows.
func (r *SQLiteRunner) Describe(ctx context.Context) (string, error) {
	tables, err := r.tableDDL(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(t.ddl))
		if sample, err := r.sample(ctx, t.name); err == nil && sample != "" {
			b.WriteString("\n\n")
			b.WriteString(sample)
		}
	}
	return b.String(), nil
}

func (r *SQLiteRunner) sample(ctx context.Context, table string) (string, error) {
	q := fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, strings.ReplaceAll(table, `"`, `""`), sampleRows)
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	res, err := scanRows(rows, sampleRows)
	if err != nil || len(res.Rows) == 0 {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "/*\n%d rows from %s table:\n%s\n", len(res.Rows), table, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteString("\n")
	}
	b.WriteString("*/")
	return b.String(), nil
}

func (r *SQLiteRunner) Ping(ctx context.Context) error { return r.DB.PingContext(ctx) }

func (r *SQLiteRunner) Close() error { return r.DB.Close() }
