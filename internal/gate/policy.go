// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gate

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sqlgate/cli/internal/errors"
)

// Check names the policy rule that produced a Decision.
type Check string

const (
	CheckDestructive    Check = "destructive"
	CheckUnboundedScan  Check = "unbounded_scan"
	CheckMissingBound   Check = "missing_bound"
	CheckBoundCeiling   Check = "bound_ceiling"
	CheckMultiStatement Check = "multi_statement"
	CheckStatementClass Check = "statement_class"
	CheckReadOnly       Check = "read_only"
	// CheckEmptyInput marks text that held no statement at all.
	CheckEmptyInput     Check = "empty_input"
)

// Denylist is the set of schema and data mutating keywords that are always
// rejected, wherever they appear in a statement.
var Denylist = []string{"DROP", "TRUNCATE", "DELETE", "ALTER", "CREATE", "GRANT", "REVOKE"}

var (
	reDenylist  = regexp.MustCompile(`\b(` + strings.Join(Denylist, "|") + `)\b`)
	reWildcard  = regexp.MustCompile(`(?i)\bSELECT\s+(?:DISTINCT\s+|ALL\s+)?\*`)
	reSelect    = regexp.MustCompile(`(?i)\bSELECT\b`)
	reLimitVals = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)(?:\s*,\s*(\d+))?`)
)

// recognized lists the statement classes the gate will consider at all.
var recognized = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "WITH": true,
}

// Decision is the outcome of Validate. Use Allow and Reject to build one.
type Decision struct {
	Allowed   bool
	Statement string
	Check     Check
	Reason    string
}

// Allow returns a passing decision for stmt.
func Allow(stmt string) Decision { return Decision{Allowed: true, Statement: stmt} }

// Reject returns a failing decision naming the check and the reason.
func Reject(stmt string, check Check, reason string) Decision {
	return Decision{Statement: stmt, Check: check, Reason: reason}
}

// Err returns nil for an allowed decision and a policy_rejected error otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errors.New(errors.PolicyRejected, d.Reason)
}

// Validate runs the policy checks in order and stops at the first violation.
func Validate(stmt string, cfg Config) Decision {
	upper := strings.ToUpper(stmt)
	capped := HasRowCap(stmt)
	aggregate := IsAggregate(stmt)

	if kw := firstDenied(upper); kw != "" {
		return Reject(stmt, CheckDestructive, fmt.Sprintf("%s operations are not allowed", kw))
	}

	if reWildcard.MatchString(stmt) && !capped && !aggregate {
		return Reject(stmt, CheckUnboundedScan,
			fmt.Sprintf("SELECT * must include LIMIT %d to prevent loading too much data", cfg.MaxRows))
	}

	if reSelect.MatchString(stmt) && !capped && !aggregate {
		return Reject(stmt, CheckMissingBound,
			fmt.Sprintf("Please add LIMIT %d to your SELECT query", cfg.MaxRows))
	}

	if capped {
		if v, over := limitOverCeiling(stmt, cfg.MaxRows); over {
			return Reject(stmt, CheckBoundCeiling,
				fmt.Sprintf("LIMIT %s exceeds maximum allowed (%d)", v, cfg.MaxRows))
		}
	}

	if strings.Count(stmt, ";") > 1 {
		return Reject(stmt, CheckMultiStatement, "Multiple SQL statements are not allowed")
	}

	kw := LeadingKeyword(stmt)
	if !recognized[kw] {
		return Reject(stmt, CheckStatementClass,
			"Unrecognized statement: expected SELECT, INSERT, UPDATE, DELETE or WITH")
	}

	if cfg.ReadOnly && IsWrite(stmt) {
		return Reject(stmt, CheckReadOnly, fmt.Sprintf("%s statements are disabled in read-only mode", kw))
	}

	return Allow(stmt)
}

// firstDenied returns the denylisted keyword that appears earliest in upper.
func firstDenied(upper string) string {
	m := reDenylist.FindStringSubmatch(upper)
	if m == nil {
		return ""
	}
	return m[1]
}

// limitOverCeiling reports the first LIMIT value greater than maxRows. For
// "LIMIT offset, count" the count is checked. Values too large to parse count
// as over the ceiling; anything that is not a plain integer is ignored.
func limitOverCeiling(stmt string, maxRows int) (string, bool) {
	for _, m := range reLimitVals.FindAllStringSubmatch(blankQuoted(stmt), -1) {
		raw := m[1]
		if m[2] != "" {
			raw = m[2]
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			if stderrors.Is(err, strconv.ErrRange) {
				return raw, true
			}
			continue
		}
		if n > int64(maxRows) {
			return raw, true
		}
	}
	return "", false
}
