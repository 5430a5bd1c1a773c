// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gate

import "time"

// Defaults applied when a session does not override them.
const (
	DefaultMaxRows             = 100
	DefaultQueryTimeout        = 10 * time.Second
	DefaultResultSizeWarnBytes = 10000
	DefaultMaxConcurrentReads  = 4
)

// Config holds the per-session gate parameters. It is passed by value and never
// mutated after a session starts, so concurrent sessions may share one.
type Config struct {
	// MaxRows is the row cap injected into unbounded SELECTs and the ceiling
	// any explicit LIMIT must stay under.
	MaxRows int
	// QueryTimeout is the deadline armed for every execution.
	QueryTimeout time.Duration
	// ResultSizeWarnBytes is the serialized-size threshold above which a
	// completed outcome is flagged as oversized. Zero disables the flag.
	ResultSizeWarnBytes int
	// ReadOnly rejects INSERT and UPDATE in addition to the destructive denylist.
	ReadOnly bool
	// MaxConcurrentReads bounds reads in flight; a write waits for all of them.
	MaxConcurrentReads int
}

// DefaultConfig returns the stock gate configuration.
func DefaultConfig() Config {
	return Config{
		MaxRows:             DefaultMaxRows,
		QueryTimeout:        DefaultQueryTimeout,
		ResultSizeWarnBytes: DefaultResultSizeWarnBytes,
		MaxConcurrentReads:  DefaultMaxConcurrentReads,
	}
}

func (c Config) permits() int64 {
	if c.MaxConcurrentReads < 1 {
		return 1
	}
	return int64(c.MaxConcurrentReads)
}
