// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gate

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	reLeadingWord = regexp.MustCompile(`^\s*\(?\s*([A-Za-z]+)`)
	reRowCap      = regexp.MustCompile(`(?i)\bLIMIT\b`)
	// reAggregate is lexical: an aggregate anywhere, including a subquery,
	// marks the whole statement as aggregate-only.
	reAggregate = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MAX|MIN)\s*\(`)
	reWriteVerb = regexp.MustCompile(`(?i)\b(INSERT\s+(?:OR\s+\w+\s+)?INTO|UPDATE\s+\S+\s+SET|DELETE\s+FROM|REPLACE\s+INTO|MERGE\s+INTO)\b`)
)

// LeadingKeyword returns the upper-cased first word of stmt, or "" when stmt
// does not start with a word.
func LeadingKeyword(stmt string) string {
	m := reLeadingWord.FindStringSubmatch(stmt)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// HasRowCap reports whether stmt contains a LIMIT clause outside quotes.
func HasRowCap(stmt string) bool { return reRowCap.MatchString(blankQuoted(stmt)) }

// IsAggregate reports whether stmt calls COUNT, SUM, AVG, MAX or MIN outside
// quotes.
func IsAggregate(stmt string) bool { return reAggregate.MatchString(blankQuoted(stmt)) }

// blankQuoted replaces the contents of single- and double-quoted spans with
// spaces, keeping the quotes and every offset. Only checks that grant an
// exemption read this form; the denylist still sees literals.
func blankQuoted(s string) string {
	b := []byte(s)
	var quote byte
	for i, c := range b {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				b[i] = ' '
			}
		case c == '\'' || c == '"':
			quote = c
		}
	}
	return string(b)
}

// IsWrite reports whether stmt is write-class and must run exclusively.
func IsWrite(stmt string) bool {
	switch LeadingKeyword(stmt) {
	case "INSERT", "UPDATE", "DELETE", "REPLACE", "MERGE":
		return true
	case "WITH":
		return reWriteVerb.MatchString(stmt)
	}
	return false
}

// InjectLimit appends "LIMIT maxRows" to a SELECT that has neither a row cap
// nor an aggregate. Every other statement is returned unchanged, as is any
// statement when maxRows is not positive.
func InjectLimit(stmt string, maxRows int) string {
	if maxRows <= 0 || LeadingKeyword(stmt) != "SELECT" {
		return stmt
	}
	if HasRowCap(stmt) || IsAggregate(stmt) {
		return stmt
	}
	body := strings.TrimRight(stmt, "; \t\r\n")
	return fmt.Sprintf("%s LIMIT %d;", body, maxRows)
}
