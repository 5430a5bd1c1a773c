// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/logging"

	"go.uber.org/zap"
)

// FailureMarker starts every user-facing failure message.
const FailureMarker = "❌"

// IsFailure reports whether msg is a gate failure message.
func IsFailure(msg string) bool {
	return strings.HasPrefix(strings.TrimSpace(msg), FailureMarker)
}

// Report describes one pass of raw text through the gate.
type Report struct {
	Raw       string
	Sanitized string
	// Statement is the sanitized text after limit injection.
	Statement string
	Injected  bool
	Decision  Decision
	// Outcome is nil when the statement was not executed.
	Outcome *Outcome
	// Err is the failure that ended the pass, if any.
	Err error
	// Message is the row payload on success or a marked failure message.
	Message string
}

// OK reports whether the statement was allowed and, when executed, completed.
func (r Report) OK() bool {
	if r.Err != nil || !r.Decision.Allowed {
		return false
	}
	return r.Outcome == nil || r.Outcome.State == Completed
}

// Gate wires the pipeline stages to one executor.
type Gate struct {
	cfg    Config
	exec   *Executor
	logger *zap.Logger
}

// New creates a gate that executes through runner. runner may be nil for a
// gate that only prepares statements.
func New(runner Runner, cfg Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{cfg: cfg, logger: logger}
	if runner != nil {
		g.exec = NewExecutor(runner, cfg, logger)
	}
	return g
}

// Config returns the gate's immutable configuration.
func (g *Gate) Config() Config { return g.cfg }

// Prepare sanitizes, bounds and validates raw without executing it.
func (g *Gate) Prepare(raw string) Report {
	rep := Report{Raw: raw}

	sanitized, err := Sanitize(raw)
	if err != nil {
		rep.Err = err
		rep.Decision = Reject("", CheckEmptyInput, "No SQL statement found in the model output")
		rep.Message = failure(rep.Decision.Reason)
		g.logger.Debug("sanitize failed", zap.String("stage", "sanitize"))
		return rep
	}
	rep.Sanitized = sanitized
	rep.Statement = InjectLimit(sanitized, g.cfg.MaxRows)
	rep.Injected = rep.Statement != sanitized

	rep.Decision = Validate(rep.Statement, g.cfg)
	if !rep.Decision.Allowed {
		rep.Err = rep.Decision.Err()
		rep.Message = failure(rep.Decision.Reason)
	}
	g.logger.Debug("statement prepared",
		zap.String("stage", "validate"),
		zap.String("sql", logging.Mask(rep.Statement)),
		zap.Bool("injected", rep.Injected),
		zap.Bool("allowed", rep.Decision.Allowed),
		zap.String("check", string(rep.Decision.Check)))
	return rep
}

// Run prepares raw and, when allowed, executes it. Failures are never retried.
func (g *Gate) Run(ctx context.Context, raw string) Report {
	rep := g.Prepare(raw)
	if !rep.Decision.Allowed {
		return rep
	}
	if g.exec == nil {
		rep.Err = errors.New(errors.ConfigInvalid, "no database configured")
		rep.Message = failure("SQL Error: no database configured")
		return rep
	}

	out := g.exec.Execute(ctx, rep.Statement)
	rep.Outcome = &out
	switch out.State {
	case Completed:
		rep.Message = string(out.Payload)
	case TimedOut:
		rep.Err = out.Err
		rep.Message = failure(fmt.Sprintf("Query timeout (%ss). Please add more filters or use aggregation.",
			seconds(g.exec.cfg.QueryTimeout)))
	default:
		rep.Err = out.Err
		rep.Message = failure("SQL Error: " + out.Detail())
	}
	g.logger.Info("statement executed",
		zap.String("stage", "execute"),
		zap.String("state", out.State.String()),
		zap.Duration("elapsed", out.Elapsed),
		zap.Int("bytes", out.ByteSize))
	return rep
}

func failure(msg string) string { return FailureMarker + " " + msg }

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
