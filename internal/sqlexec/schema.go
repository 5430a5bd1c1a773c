// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Column describes one table column.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	// EnumValues lists allowed values extracted from a CHECK constraint.
	EnumValues []string
}

// SchemaInfo holds the columns and key of one table.
type SchemaInfo struct {
	// TableName is "schema.table"
	TableName      string
	Columns        []Column
	PrimaryKeyCols []string
}

// SchemaInspector queries information_schema and caches what it learns, so a
// long chat session only pays for introspection once per table.
type SchemaInspector struct {
	pool  *pgxpool.Pool
	cache map[string]*SchemaInfo
	// mu protects concurrent access to the cache
	mu sync.RWMutex
}

// NewSchemaInspector creates a new SchemaInspector with the given connection pool.
func NewSchemaInspector(pool *pgxpool.Pool) *SchemaInspector {
	return &SchemaInspector{
		pool:  pool,
		cache: make(map[string]*SchemaInfo),
	}
}

// Tables returns "schema.table" names for every base table outside the
// PostgreSQL system schemas.
func (si *SchemaInspector) Tables(ctx context.Context) ([]string, error) {
	rows, err := si.pool.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return nil, err
		}
		names = append(names, schema+"."+table)
	}
	return names, rows.Err()
}

// Describe renders every table as a block of "column type" lines.
func (si *SchemaInspector) Describe(ctx context.Context) (string, error) {
	tables, err := si.Tables(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, t := range tables {
		info, err := si.GetSchemaInfo(ctx, t)
		if err != nil {
			return "", fmt.Errorf("describe %s: %w", t, err)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		writeTableInfo(&b, info)
	}
	return b.String(), nil
}

func writeTableInfo(b *strings.Builder, info *SchemaInfo) {
	fmt.Fprintf(b, "Table %s", info.TableName)
	if len(info.PrimaryKeyCols) > 0 {
		fmt.Fprintf(b, " (primary key: %s)", strings.Join(info.PrimaryKeyCols, ", "))
	}
	b.WriteString("\n")
	for _, c := range info.Columns {
		fmt.Fprintf(b, "  %s %s", c.Name, c.DataType)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if len(c.EnumValues) > 0 {
			fmt.Fprintf(b, " -- one of: %s", strings.Join(c.EnumValues, ", "))
		}
		b.WriteString("\n")
	}
}

// GetSchemaInfo retrieves or caches schema information for a table.
// The tableName can be either "table" or "schema.table".
func (si *SchemaInspector) GetSchemaInfo(ctx context.Context, tableName string) (*SchemaInfo, error) {
	si.mu.RLock()
	if info, exists := si.cache[tableName]; exists {
		si.mu.RUnlock()
		return info, nil
	}
	si.mu.RUnlock()

	schema, table := parseTableName(tableName)
	info := &SchemaInfo{TableName: schema + "." + table}

	conn, err := si.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	if err := si.loadColumns(ctx, conn, schema, table, info); err != nil {
		return nil, err
	}
	if err := si.loadPrimaryKeys(ctx, conn, schema, table, info); err != nil {
		return nil, err
	}
	// Check constraints only add hints; a failure here is not fatal.
	_ = si.loadCheckConstraints(ctx, conn, schema, table, info)

	si.mu.Lock()
	si.cache[tableName] = info
	si.mu.Unlock()

	return info, nil
}

// parseTableName splits a table name into schema and table components.
// If no schema is specified, it defaults to "public".
func parseTableName(tableName string) (schema string, table string) {
	parts := strings.Split(tableName, ".")
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "public", tableName
}

func (si *SchemaInspector) loadColumns(ctx context.Context, conn *pgxpool.Conn, schema, table string, info *SchemaInfo) error {
	rows, err := conn.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return err
		}
		info.Columns = append(info.Columns, c)
	}
	return rows.Err()
}

func (si *SchemaInspector) loadPrimaryKeys(ctx context.Context, conn *pgxpool.Conn, schema, table string, info *SchemaInfo) error {
	rows, err := conn.Query(ctx, `
		SELECT kc.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kc
		  ON tc.constraint_name = kc.constraint_name AND tc.table_schema = kc.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kc.ordinal_position`, schema, table)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return err
		}
		info.PrimaryKeyCols = append(info.PrimaryKeyCols, col)
	}
	return rows.Err()
}

// loadCheckConstraints attaches enum-like CHECK values to their columns.
func (si *SchemaInspector) loadCheckConstraints(ctx context.Context, conn *pgxpool.Conn, schema, table string, info *SchemaInfo) error {
	rows, err := conn.Query(ctx, `
		SELECT ccu.column_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.constraint_column_usage ccu
		  ON cc.constraint_name = ccu.constraint_name AND cc.constraint_schema = ccu.constraint_schema
		WHERE ccu.table_schema = $1 AND ccu.table_name = $2`, schema, table)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var col, clause string
		if err := rows.Scan(&col, &clause); err != nil {
			continue
		}
		values := extractEnumValues(clause)
		if len(values) == 0 {
			continue
		}
		for i := range info.Columns {
			if info.Columns[i].Name == col {
				info.Columns[i].EnumValues = values
			}
		}
	}
	return rows.Err()
}

var (
	reCheckIn  = regexp.MustCompile(`(?i)IN\s*\(\s*([^)]+)\)`)
	reCheckAny = regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*ARRAY\s*\[([^\]]+)\]`)
)

// extractEnumValues extracts enum values from a check constraint clause.
// It supports patterns like:
//   - "status IN ('queued','running','done','failed')"
//   - "status = ANY (ARRAY['queued'::text, 'running'::text, ...])"
func extractEnumValues(checkClause string) []string {
	if m := reCheckIn.FindStringSubmatch(checkClause); len(m) > 1 {
		return parseEnumValueList(m[1])
	}
	if m := reCheckAny.FindStringSubmatch(checkClause); len(m) > 1 {
		return parseEnumValueList(m[1])
	}
	return nil
}

// parseEnumValueList splits a comma-separated list, dropping quotes and casts.
func parseEnumValueList(valueList string) []string {
	var result []string
	for _, val := range strings.Split(valueList, ",") {
		val = strings.TrimSpace(val)
		if idx := strings.Index(val, "::"); idx >= 0 {
			val = val[:idx]
		}
		val = strings.Trim(strings.TrimSpace(val), "'\"()")
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}
