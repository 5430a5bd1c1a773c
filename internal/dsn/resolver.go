// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
)

var sqliteSuffixes = []string{".db", ".sqlite", ".sqlite3"}

// DetectDBType detects the database type from a DSN string.
// Bare paths ending in .db, .sqlite or .sqlite3 are treated as SQLite files.
func DetectDBType(dsn string) DBType {
	lower := strings.ToLower(strings.TrimSpace(dsn))

	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DBTypePostgreSQL
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "file:"), lower == ":memory:":
		return DBTypeSQLite
	case strings.HasPrefix(lower, "mysql://"):
		return DBTypeMySQL
	}

	if !strings.Contains(lower, "://") {
		path := lower
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		for _, suffix := range sqliteSuffixes {
			if strings.HasSuffix(path, suffix) {
				return DBTypeSQLite
			}
		}
	}
	return DBTypeUnknown
}

// resolverFor returns the resolver for the DSN's database type.
func resolverFor(dsn string) (Resolver, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	switch DetectDBType(dsn) {
	case DBTypePostgreSQL:
		return NewPostgreSQLResolver(), nil
	case DBTypeSQLite:
		return NewSQLiteResolver(), nil
	case DBTypeMySQL:
		return nil, NewParseError(dsn, "MySQL support not yet implemented", "use PostgreSQL or SQLite")
	default:
		return nil, NewParseError(dsn, "unknown database type", "use postgres://, sqlite:<path> or a .db file path")
	}
}

// Parse parses a DSN string and returns a normalized connection string.
// This is the main entry point for DSN parsing.
func Parse(dsn string) (string, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return "", err
	}
	info, err := resolver.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return "", err
	}
	return resolver.Normalize(info)
}

// Validate validates a DSN string without normalizing it
func Validate(dsn string) error {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return err
	}
	return resolver.Validate(strings.TrimSpace(dsn))
}

// ParseInfo parses a DSN string and returns detailed DSN info.
// Useful for inspecting connection details
func ParseInfo(dsn string) (*DSNInfo, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return nil, err
	}
	return resolver.Parse(strings.TrimSpace(dsn))
}
