// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package assistant turns a natural-language question into a gated SQL
// statement, runs it and asks the model to explain the result.
//
// An Assistant holds only read-only state: the model, the gate, the schema
// description and its options. Conversation context is passed in on every
// call and each finished turn is handed to a Recorder.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/history"
	"sqlgate/cli/internal/llm"

	"go.uber.org/zap"
)

// Recorder persists finished turns.
type Recorder interface {
	Append(rec history.Record) error
}

// Options tune prompt construction and recording.
type Options struct {
	// ContextTurns is how many earlier question/answer pairs are replayed.
	ContextTurns int
	// ExampleTurns is how many recent records are scanned for SQL examples.
	ExampleTurns int
	// StoredResultChars caps the result text written to the recorder.
	StoredResultChars int
}

// DefaultOptions matches the configuration defaults.
func DefaultOptions() Options {
	return Options{ContextTurns: 5, ExampleTurns: 3, StoredResultChars: 1000}
}

// Turn is the outcome of one question.
type Turn struct {
	Question string
	// Report is the gate pass for the generated statement.
	Report gate.Report
	// Result is the row payload or the gate failure message.
	Result string
	Answer string
	Failed bool
}

// SQL returns the statement that was validated, falling back to the
// sanitized text when the gate rejected the input before bounding it.
func (t Turn) SQL() string {
	if t.Report.Statement != "" {
		return t.Report.Statement
	}
	if t.Report.Sanitized != "" {
		return t.Report.Sanitized
	}
	return strings.TrimSpace(t.Report.Raw)
}

// Assistant answers questions about one database.
type Assistant struct {
	model  llm.Model
	gate   *gate.Gate
	rec    Recorder
	system string
	opts   Options
	logger *zap.Logger
}

// New creates an assistant. rec may be nil to skip recording.
func New(model llm.Model, g *gate.Gate, rec Recorder, schema string, tables []string, opts Options, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		model:  model,
		gate:   g,
		rec:    rec,
		system: systemPrompt(g.Config().MaxRows, schema, tables),
		opts:   opts,
		logger: logger,
	}
}

// SystemPrompt returns the fixed instructions sent with every request.
func (a *Assistant) SystemPrompt() string { return a.system }

// Ask answers question using recent as conversation context. A gate
// failure is not an error: the returned turn is marked Failed and carries
// the failure message as its answer. Errors are returned only when the
// model cannot produce a statement at all.
func (a *Assistant) Ask(ctx context.Context, question string, recent []history.Record) (Turn, error) {
	question = strings.TrimSpace(question)
	turn := Turn{Question: question}
	if question == "" {
		return turn, errors.New(errors.EmptyInput, "question is empty")
	}

	base := a.contextMessages(recent)
	maxRows := a.gate.Config().MaxRows

	prompt := sqlPrompt(question, maxRows, examples(recent, a.opts.ExampleTurns))
	raw, err := a.model.Complete(ctx, append(base, llm.User(prompt)))
	if err != nil {
		turn.Failed = true
		turn.Answer = fmt.Sprintf("%s LLM Error: %v", gate.FailureMarker, err)
		return turn, errors.Wrap(errors.ModelFailed, "generate sql", err)
	}

	turn.Report = a.gate.Run(ctx, raw)
	turn.Result = turn.Report.Message
	a.logger.Debug("question gated",
		zap.Bool("allowed", turn.Report.Decision.Allowed),
		zap.String("check", string(turn.Report.Decision.Check)))

	if !turn.Report.OK() {
		turn.Failed = true
		turn.Answer = turn.Report.Message
		a.record(history.Record{
			Question: question,
			SQL:      turn.SQL(),
			Result:   history.Truncate(turn.Result, a.opts.StoredResultChars),
			Answer:   history.Truncate(turn.Answer, a.opts.StoredResultChars),
			Status:   history.StatusFailed,
		})
		return turn, nil
	}

	answer, err := a.model.Complete(ctx, append(base, llm.User(answerPrompt(question, turn.SQL(), turn.Result))))
	if err != nil {
		a.logger.Warn("answer generation failed", zap.Error(err))
		answer = fmt.Sprintf("Query succeeded but answer generation failed: %v\n\nRaw result: %s", err, turn.Result)
	}
	turn.Answer = strings.TrimSpace(answer)

	a.record(history.Record{
		Question: question,
		SQL:      turn.SQL(),
		Result:   history.Truncate(turn.Result, a.opts.StoredResultChars),
		Answer:   history.Truncate(turn.Answer, a.opts.StoredResultChars),
		Status:   history.StatusSuccess,
	})
	return turn, nil
}

// contextMessages returns the system prompt followed by the last
// ContextTurns question/answer pairs.
func (a *Assistant) contextMessages(recent []history.Record) []llm.Message {
	msgs := []llm.Message{llm.System(a.system)}
	n := a.opts.ContextTurns
	if n <= 0 {
		return msgs
	}
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	for _, r := range recent {
		msgs = append(msgs, llm.User(r.Question), llm.Assistant(r.Answer))
	}
	return msgs
}

func (a *Assistant) record(rec history.Record) {
	if a.rec == nil {
		return
	}
	if err := a.rec.Append(rec); err != nil {
		a.logger.Warn("failed to record turn", zap.Error(err))
	}
}
