// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gate

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/sqlexec"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner executes one statement against a database.
type Runner interface {
	Run(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error)

func (f RunnerFunc) Run(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error) {
	return f(ctx, stmt, write, maxRows)
}

// State is a step of the executor state machine.
type State int

const (
	Idle State = iota
	Running
	Completed
	TimedOut
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends an execution.
func (s State) Terminal() bool { return s == Completed || s == TimedOut || s == Errored }

// Outcome is the result of one Execute call. Exactly one terminal state is
// reached per call.
type Outcome struct {
	State     State
	Statement string
	// Result and Payload are set when State is Completed.
	Result  *sqlexec.Result
	Payload []byte
	// ByteSize is len(Payload).
	ByteSize  int
	Oversized bool
	Truncated bool
	Elapsed   time.Duration
	// Err is set for TimedOut and Errored.
	Err error
	// Transitions records every state entered, starting with Idle.
	Transitions []State
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Transitions = append(o.Transitions, s)
}

// Detail returns the error text for a failed outcome.
func (o Outcome) Detail() string {
	if o.Err == nil {
		return ""
	}
	var e *errors.E
	if stderrors.As(o.Err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return o.Err.Error()
}

type runResult struct {
	res *sqlexec.Result
	err error
}

// Executor runs statements under a deadline. Reads share a pool of permits;
// a write takes every permit so it never overlaps another statement.
type Executor struct {
	runner  Runner
	cfg     Config
	permits *semaphore.Weighted
	size    int64
	logger  *zap.Logger
}

// NewExecutor creates an executor for runner using cfg's timeout, row cap and
// concurrency limit.
func NewExecutor(runner Runner, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	size := cfg.permits()
	return &Executor{
		runner:  runner,
		cfg:     cfg,
		permits: semaphore.NewWeighted(size),
		size:    size,
		logger:  logger,
	}
}

// Execute runs stmt and returns when it completes, fails, or the deadline
// passes, whichever comes first. On timeout the underlying call is abandoned:
// its context is cancelled and its eventual result is discarded.
func (e *Executor) Execute(ctx context.Context, stmt string) Outcome {
	out := Outcome{Statement: stmt}
	out.enter(Idle)
	out.enter(Running)

	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	write := IsWrite(stmt)
	weight := int64(1)
	if write {
		weight = e.size
	}

	if err := e.permits.Acquire(dctx, weight); err != nil {
		return e.interrupted(dctx, out, start)
	}

	done := make(chan runResult, 1)
	go func() {
		// The permit is held until the driver really returns, so an abandoned
		// write still excludes later statements.
		defer e.permits.Release(weight)
		res, err := e.runner.Run(dctx, stmt, write, e.cfg.MaxRows)
		done <- runResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if stderrors.Is(dctx.Err(), context.DeadlineExceeded) {
				return e.timedOut(out, start)
			}
			return e.errored(out, start, r.err)
		}
		return e.completed(out, start, r.res)
	case <-dctx.Done():
		return e.interrupted(dctx, out, start)
	}
}

func (e *Executor) interrupted(dctx context.Context, out Outcome, start time.Time) Outcome {
	if stderrors.Is(dctx.Err(), context.DeadlineExceeded) {
		return e.timedOut(out, start)
	}
	return e.errored(out, start, dctx.Err())
}

func (e *Executor) timedOut(out Outcome, start time.Time) Outcome {
	out.Elapsed = time.Since(start)
	out.Err = errors.New(errors.Timeout, fmt.Sprintf("query exceeded %s", e.cfg.QueryTimeout))
	out.enter(TimedOut)
	e.logger.Warn("statement timed out",
		zap.Duration("elapsed", out.Elapsed),
		zap.Duration("timeout", e.cfg.QueryTimeout))
	return out
}

func (e *Executor) errored(out Outcome, start time.Time, err error) Outcome {
	out.Elapsed = time.Since(start)
	out.Err = errors.Wrap(errors.SQLError, "statement failed", err)
	out.enter(Errored)
	e.logger.Debug("statement failed", zap.Error(err), zap.Duration("elapsed", out.Elapsed))
	return out
}

func (e *Executor) completed(out Outcome, start time.Time, res *sqlexec.Result) Outcome {
	if res == nil {
		res = &sqlexec.Result{Columns: []string{}, Rows: [][]any{}}
	}
	payload, err := res.MarshalJSON()
	if err != nil {
		return e.errored(out, start, fmt.Errorf("encode result: %w", err))
	}
	out.Elapsed = time.Since(start)
	out.Result = res
	out.Payload = payload
	out.ByteSize = len(payload)
	out.Truncated = res.Truncated
	out.Oversized = e.cfg.ResultSizeWarnBytes > 0 && out.ByteSize > e.cfg.ResultSizeWarnBytes
	out.enter(Completed)
	e.logger.Debug("statement completed",
		zap.Duration("elapsed", out.Elapsed),
		zap.Int("bytes", out.ByteSize),
		zap.Bool("oversized", out.Oversized))
	return out
}
