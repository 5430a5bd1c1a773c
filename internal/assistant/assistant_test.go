package assistant

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/history"
	"sqlgate/cli/internal/llm"
	"sqlgate/cli/internal/sqlexec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel replies with its responses in order and keeps every request.
type scriptedModel struct {
	replies []string
	errs    []error
	calls   [][]llm.Message
}

func (m *scriptedModel) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	i := len(m.calls)
	m.calls = append(m.calls, append([]llm.Message(nil), msgs...))
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	return m.replies[i], nil
}

type memoryRecorder struct{ records []history.Record }

func (r *memoryRecorder) Append(rec history.Record) error {
	r.records = append(r.records, rec)
	return nil
}

func countRunner(calls *int) gate.Runner {
	return gate.RunnerFunc(func(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error) {
		*calls++
		return &sqlexec.Result{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}}, nil
	})
}

func newAssistant(t *testing.T, model llm.Model, runner gate.Runner, rec Recorder) *Assistant {
	t.Helper()
	cfg := gate.DefaultConfig()
	cfg.QueryTimeout = time.Second
	g := gate.New(runner, cfg, nil)
	return New(model, g, rec, "TABLE orders (id integer, total numeric)", []string{"orders", "customers"}, DefaultOptions(), nil)
}

func TestAskSuccess(t *testing.T) {
	var calls int
	model := &scriptedModel{replies: []string{
		"Here you go:\n```sql\nSELECT COUNT(*) FROM orders\n```",
		"There are 42 orders.",
	}}
	rec := &memoryRecorder{}
	a := newAssistant(t, model, countRunner(&calls), rec)

	turn, err := a.Ask(context.Background(), "  how many orders?  ", nil)
	require.NoError(t, err)

	assert.False(t, turn.Failed)
	assert.Equal(t, "how many orders?", turn.Question)
	assert.Equal(t, "SELECT COUNT(*) FROM orders;", turn.SQL())
	assert.False(t, turn.Report.Injected, "aggregates are not bounded")
	assert.JSONEq(t, `{"columns":["count"],"rows":[[42]]}`, turn.Result)
	assert.Equal(t, "There are 42 orders.", turn.Answer)
	assert.Equal(t, 1, calls)

	require.Len(t, model.calls, 2)
	sqlReq := model.calls[0]
	require.Len(t, sqlReq, 2)
	assert.Equal(t, llm.RoleSystem, sqlReq[0].Role)
	assert.Contains(t, sqlReq[0].Content, "ALWAYS add LIMIT 100")
	assert.Contains(t, sqlReq[0].Content, "Available Tables: orders, customers")
	assert.Contains(t, sqlReq[1].Content, "Question: how many orders?")

	answerReq := model.calls[1]
	assert.Contains(t, answerReq[len(answerReq)-1].Content, "SQL Query Used: SELECT COUNT(*) FROM orders;")
	assert.Contains(t, answerReq[len(answerReq)-1].Content, `Database Result: {"columns":["count"]`)

	require.Len(t, rec.records, 1)
	assert.Equal(t, history.StatusSuccess, rec.records[0].Status)
	assert.Equal(t, "SELECT COUNT(*) FROM orders;", rec.records[0].SQL)
	assert.Equal(t, "There are 42 orders.", rec.records[0].Answer)
}

func TestAskRejectedIsRecordedAsFailed(t *testing.T) {
	var calls int
	model := &scriptedModel{replies: []string{"DROP TABLE orders;"}}
	rec := &memoryRecorder{}
	a := newAssistant(t, model, countRunner(&calls), rec)

	turn, err := a.Ask(context.Background(), "delete everything", nil)
	require.NoError(t, err)

	assert.True(t, turn.Failed)
	assert.Equal(t, "❌ DROP operations are not allowed", turn.Answer)
	assert.Equal(t, turn.Answer, turn.Result)
	assert.Zero(t, calls)
	assert.Len(t, model.calls, 1, "no answer request after a rejection")

	require.Len(t, rec.records, 1)
	got := rec.records[0]
	assert.True(t, got.Failed())
	assert.Equal(t, got.Answer, got.Result)
	assert.Equal(t, "DROP TABLE orders;", got.SQL)
}

func TestAskAnswerFallback(t *testing.T) {
	var calls int
	model := &scriptedModel{
		replies: []string{"SELECT COUNT(*) FROM orders;", ""},
		errs:    []error{nil, stderrors.New("upstream 502")},
	}
	rec := &memoryRecorder{}
	a := newAssistant(t, model, countRunner(&calls), rec)

	turn, err := a.Ask(context.Background(), "how many orders?", nil)
	require.NoError(t, err)
	assert.False(t, turn.Failed)
	assert.True(t, strings.HasPrefix(turn.Answer, "Query succeeded but answer generation failed: upstream 502\n\nRaw result: "))
	assert.Contains(t, turn.Answer, `"rows":[[42]]`)
	require.Len(t, rec.records, 1)
	assert.Equal(t, history.StatusSuccess, rec.records[0].Status)
}

func TestAskModelFailure(t *testing.T) {
	var calls int
	model := &scriptedModel{errs: []error{stderrors.New("no key")}}
	rec := &memoryRecorder{}
	a := newAssistant(t, model, countRunner(&calls), rec)

	turn, err := a.Ask(context.Background(), "how many orders?", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ModelFailed))
	assert.True(t, turn.Failed)
	assert.Equal(t, "❌ LLM Error: no key", turn.Answer)
	assert.Zero(t, calls)
	assert.Empty(t, rec.records)
}

func TestAskEmptyQuestion(t *testing.T) {
	a := newAssistant(t, &scriptedModel{}, nil, nil)
	_, err := a.Ask(context.Background(), "   ", nil)
	assert.True(t, errors.Is(err, errors.EmptyInput))
}

func TestAskUsesRecentContext(t *testing.T) {
	var calls int
	model := &scriptedModel{replies: []string{"SELECT COUNT(*) FROM customers;", "7 customers."}}
	a := newAssistant(t, model, countRunner(&calls), nil)

	recent := make([]history.Record, 0, 7)
	for i := 0; i < 6; i++ {
		recent = append(recent, history.Record{
			Question: "q" + string(rune('0'+i)),
			SQL:      "SELECT " + string(rune('0'+i)) + ";",
			Answer:   "a" + string(rune('0'+i)),
			Status:   history.StatusSuccess,
		})
	}
	recent = append(recent, history.Record{Question: "bad", SQL: "DROP TABLE x;", Answer: "❌ no", Status: history.StatusFailed})

	_, err := a.Ask(context.Background(), "and customers?", recent)
	require.NoError(t, err)

	req := model.calls[0]
	// system + five replayed pairs + the SQL prompt
	require.Len(t, req, 1+2*5+1)
	assert.Equal(t, "q2", req[1].Content)
	assert.Equal(t, llm.RoleAssistant, req[len(req)-2].Role)
	assert.Equal(t, "❌ no", req[len(req)-2].Content)

	prompt := req[len(req)-1].Content
	assert.Contains(t, prompt, "Recent successful queries")
	assert.Contains(t, prompt, "- Q: q4\n  SQL: SELECT 4;")
	assert.Contains(t, prompt, "- Q: q5")
	assert.NotContains(t, prompt, "q3", "only the last three records are examples")
	assert.NotContains(t, prompt, "DROP TABLE x", "failed turns are not examples")
}

func TestAskStoredResultIsTruncated(t *testing.T) {
	runner := gate.RunnerFunc(func(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error) {
		return &sqlexec.Result{Columns: []string{"note"}, Rows: [][]any{{strings.Repeat("x", 3000)}}}, nil
	})
	model := &scriptedModel{replies: []string{"SELECT note FROM notes WHERE id = 1 LIMIT 1;", "long"}}
	rec := &memoryRecorder{}
	a := newAssistant(t, model, runner, rec)

	turn, err := a.Ask(context.Background(), "note?", nil)
	require.NoError(t, err)
	assert.Greater(t, len(turn.Result), 3000)
	require.Len(t, rec.records, 1)
	assert.Len(t, rec.records[0].Result, 1000)
}

func TestAskStoredAnswerIsTruncated(t *testing.T) {
	calls := 0
	long := strings.Repeat("é", 2500)
	model := &scriptedModel{replies: []string{"SELECT COUNT(*) FROM orders;", long}}
	rec := &memoryRecorder{}
	a := newAssistant(t, model, countRunner(&calls), rec)

	turn, err := a.Ask(context.Background(), "how many orders?", nil)
	require.NoError(t, err)
	assert.Equal(t, long, turn.Answer)
	require.Len(t, rec.records, 1)
	assert.Equal(t, strings.Repeat("é", 1000), rec.records[0].Answer)
}

func TestExamplesEmpty(t *testing.T) {
	assert.Empty(t, examples(nil, 3))
	assert.Empty(t, examples([]history.Record{{Status: history.StatusFailed}}, 3))
	assert.Empty(t, examples([]history.Record{{Question: "q"}}, 0))
}
