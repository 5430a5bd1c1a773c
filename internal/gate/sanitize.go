// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package gate turns untrusted model output into a single bounded SQL statement
// and runs it under a deadline.
//
// The pipeline has four stages:
//   - Sanitize recovers one statement from free-form text
//   - InjectLimit adds a row cap to unbounded SELECTs
//   - Validate applies the policy checks and returns a Decision
//   - Executor.Execute runs an allowed statement through a Runner with a deadline
//
// The first three stages are pure functions. Only the executor blocks, and it
// never blocks the caller past the configured timeout.
package gate

import (
	"regexp"
	"strings"

	"sqlgate/cli/internal/errors"
)

// ErrEmptyInput is returned by Sanitize when nothing remains after cleaning.
var ErrEmptyInput = errors.New(errors.EmptyInput, "no SQL statement found in the model output")

const fence = "```"

var (
	// leadPatterns recognize the start of a statement. Mutation verbs and WITH
	// must look structurally like SQL so prose such as "with a limit" is skipped.
	leadPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bSELECT\b`),
		regexp.MustCompile(`(?i)\bINSERT\s+(?:OR\s+\w+\s+)?INTO\b`),
		regexp.MustCompile(`(?i)\bUPDATE\s+\S+\s+SET\b`),
		regexp.MustCompile(`(?i)\bDELETE\s+FROM\b`),
		regexp.MustCompile(`(?i)\bWITH\s+(?:RECURSIVE\s+)?["\x60\w.]+\s*(?:\([^)]*\))?\s*AS\s*\(`),
	}

	// sqlTail matches anything after a terminator that might be a second
	// statement; such tails are kept so the validator can see them.
	sqlTail = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|REPLACE|MERGE|PRAGMA|ATTACH|DETACH|VACUUM|EXEC|EXECUTE|CALL|COPY)\b`)

	langTag = regexp.MustCompile(`^[A-Za-z0-9_+#.-]+$`)
)

// Sanitize extracts a single terminated statement from raw model output.
//
// It keeps only the first fenced code block when one is present, drops blank
// lines and "--" comments (whole-line or trailing), joins the rest with single
// spaces, discards any
// prose before the first recognized statement keyword and any prose after the
// statement's terminator, then ends the result with exactly one ";".
// Text without a recognized keyword passes through so that validation can
// reject it.
func Sanitize(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = firstFencedBlock(text)
	text = joinCodeLines(text)

	if start := leadingKeywordIndex(text); start > 0 {
		text = text[start:]
	}
	text = dropTrailingProse(text)

	text = strings.TrimRight(text, "; \t\r\n")
	if text == "" {
		return "", ErrEmptyInput
	}
	return text + ";", nil
}

// firstFencedBlock returns the body of the first fenced block, or s unchanged
// when s has no fence. An unclosed fence runs to the end of s.
func firstFencedBlock(s string) string {
	open := strings.Index(s, fence)
	if open < 0 {
		return s
	}
	body := s[open+len(fence):]

	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(body[:nl]); tag == "" || isLanguageTag(tag) {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return body
}

func isLanguageTag(s string) bool {
	if !langTag.MatchString(s) {
		return false
	}
	switch strings.ToUpper(s) {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH":
		return false
	}
	return true
}

// joinCodeLines flattens s onto one line. A "--" comment must be cut per line
// first: once joined it would swallow every following clause.
func joinCodeLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if i := indexUnquoted(line, "--"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

// leadingKeywordIndex returns the byte offset of the earliest recognized
// statement keyword, or -1 when there is none.
func leadingKeywordIndex(s string) int {
	best := -1
	for _, re := range leadPatterns {
		loc := re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		if best < 0 || loc[0] < best {
			best = loc[0]
		}
	}
	return best
}

// dropTrailingProse cuts s after its first unquoted terminator when the rest
// reads as prose. A tail that could be another statement is left in place.
func dropTrailingProse(s string) string {
	end := firstTerminator(s)
	if end < 0 || end == len(s)-1 {
		return s
	}
	if sqlTail.MatchString(s[end+1:]) {
		return s
	}
	return s[:end+1]
}

// firstTerminator returns the index of the first ';' outside single or double
// quotes, or -1.
func firstTerminator(s string) int { return indexUnquoted(s, ";") }

// indexUnquoted returns the index of the first sep outside single or double
// quotes, or -1. An unclosed quote runs to the end of s.
func indexUnquoted(s, sep string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(s[i:], sep):
			return i
		}
	}
	return -1
}
