// Package sqlexec runs gate-approved statements against a database and describes
// its schema for prompting.
//
// Two backends are provided: PgxRunner over a pgx connection pool for
// PostgreSQL, and SQLiteRunner over database/sql with the pure-Go modernc
// driver. Both cap scanned rows, run writes inside a transaction and return a
// Result that marshals to stable JSON.
package sqlexec

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Backend is a database the gate can run statements against.
type Backend interface {
	// Run executes stmt. Reads stop scanning after maxRows rows when maxRows
	// is positive; writes run in a transaction and report rows affected.
	Run(ctx context.Context, stmt string, write bool, maxRows int) (*Result, error)
	// Tables lists user tables.
	Tables(ctx context.Context) ([]string, error)
	// Describe returns a human-readable schema listing for prompts.
	Describe(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Result represents a normalized SQL result for JSON marshaling.
type Result struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	// Truncated is set when more rows were available than the cap allowed.
	Truncated bool `json:"truncated,omitempty"`
}

func newResult() *Result {
	return &Result{Columns: []string{}, Rows: [][]any{}}
}

// MarshalJSON renders driver-specific values (UUID byte arrays, bytea) as strings.
func (r Result) MarshalJSON() ([]byte, error) {
	type Alias Result
	a := Alias(r)

	if len(r.Rows) > 0 {
		rows := make([][]any, len(r.Rows))
		for i, row := range r.Rows {
			rows[i] = make([]any, len(row))
			for j, val := range row {
				rows[i][j] = jsonValue(val)
			}
		}
		a.Rows = rows
	}
	return json.Marshal(a)
}

// DisplayValue returns val as it appears in the JSON payload.
func DisplayValue(val any) any { return jsonValue(val) }

func jsonValue(val any) any {
	switch v := val.(type) {
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		if len(v) == 16 && !utf8.Valid(v) {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		if utf8.Valid(v) {
			return string(v)
		}
		return fmt.Sprintf("\\x%x", v)
	default:
		return v
	}
}

// Text returns the result as compact JSON, the payload handed to the model.
func (r *Result) Text() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%v", r.Rows)
	}
	return string(b)
}
