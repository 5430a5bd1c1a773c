package cmd

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"sqlgate/cli/internal/config"
	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/history"
	"sqlgate/cli/internal/render"
	"sqlgate/cli/internal/sqlexec"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfig(t *testing.T) {
	t.Helper()
	c := config.Defaults()
	prev := cfg
	cfg = &c
	t.Cleanup(func() { cfg = prev })
	pterm.DisableColor()
}

func newTestREPL(t *testing.T, confirm bool) (*repl, *bytes.Buffer) {
	t.Helper()
	useConfig(t)

	store, err := history.Open(filepath.Join(t.TempDir(), "chat_history.json"), 50)
	require.NoError(t, err)
	require.NoError(t, store.Append(history.Record{Question: "how many orders?", SQL: "SELECT COUNT(*) FROM orders;", Answer: "42"}))
	require.NoError(t, store.Append(history.Record{Question: "drop orders", SQL: "DROP TABLE orders;", Answer: "❌ DROP operations are not allowed", Status: history.StatusFailed}))

	var out bytes.Buffer
	return &repl{
		out: &out,
		sess: &chatSession{
			store:  store,
			schema: "TABLE orders (id integer)",
			tables: []string{"orders", "customers"},
		},
		confirm: func(string) bool { return confirm },
		spin:    func(string) func() { return func() {} },
	}, &out
}

func TestREPLCommands(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "schema", want: "TABLE orders (id integer)"},
		{line: "tables", want: "📋 Tables: orders, customers"},
		{line: "history", want: "how many orders?"},
		{line: "history all", want: "drop orders"},
		{line: "history 1", want: "drop orders"},
		{line: "history zero", want: "Usage: history [all|N]"},
		{line: "search ORDERS", want: "Found 2 matches for 'ORDERS'"},
		{line: "search nothing-here", want: "No matches found for 'nothing-here'"},
		{line: "search", want: "Usage: search <word>"},
		{line: "stats", want: "1 (50.0%)"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r, out := newTestREPL(t, false)
			quit := r.handle(context.Background(), tt.line)
			assert.False(t, quit)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestREPLQuit(t *testing.T) {
	for _, line := range []string{"quit", "exit", "q", "  QUIT "} {
		r, _ := newTestREPL(t, false)
		assert.True(t, r.handle(context.Background(), line), line)
	}
	r, out := newTestREPL(t, false)
	assert.False(t, r.handle(context.Background(), "   "))
	assert.Empty(t, out.String())
}

func TestREPLClear(t *testing.T) {
	r, out := newTestREPL(t, false)
	r.handle(context.Background(), "clear")
	assert.Contains(t, out.String(), "Cancelled.")
	assert.Equal(t, 2, r.sess.store.Len())

	r, out = newTestREPL(t, true)
	r.handle(context.Background(), "clear")
	assert.Contains(t, out.String(), "✅ History cleared!")
	assert.Zero(t, r.sess.store.Len())
}

// scriptedLines feeds lines to repl.run and then returns err forever.
func scriptedLines(err error, lines ...string) (func() (string, error), *int) {
	calls := 0
	return func() (string, error) {
		calls++
		if calls <= len(lines) {
			return lines[calls-1], nil
		}
		return "", err
	}, &calls
}

func TestREPLRunStopsOnReadError(t *testing.T) {
	r, out := newTestREPL(t, false)
	broken := stderrors.New("terminal gone")
	read, calls := scriptedLines(broken, "tables")

	err := r.run(context.Background(), read)
	require.ErrorIs(t, err, broken)
	assert.Equal(t, 2, *calls)
	assert.Contains(t, out.String(), "📋 Tables")
}

func TestREPLRunEndsCleanly(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		lines []string
		calls int
	}{
		{name: "eof", err: io.EOF, calls: 1},
		{name: "interrupt on empty line", err: readline.ErrInterrupt, calls: 1},
		{name: "quit command", lines: []string{"schema", "quit"}, calls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestREPL(t, false)
			read, calls := scriptedLines(tt.err, tt.lines...)
			require.NoError(t, r.run(context.Background(), read))
			assert.Equal(t, tt.calls, *calls)
		})
	}
}

func TestResolveDSNPrecedence(t *testing.T) {
	useConfig(t)
	cfg.DB.DSN = "sqlite:./from-config.db"

	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "x"}
		c.Flags().String("dsn", "", "")
		return c
	}

	t.Setenv("SQLGATE_DSN", "")
	t.Setenv("DATABASE_URL", "")
	got, src, err := resolveDSN(newCmd())
	require.NoError(t, err)
	assert.Equal(t, "sqlite:./from-config.db", got)
	assert.Equal(t, sourceConfig, src)

	t.Setenv("DATABASE_URL", "postgres://u@db/app")
	_, src, _ = resolveDSN(newCmd())
	assert.Equal(t, sourceDatabaseURL, src)

	t.Setenv("SQLGATE_DSN", "sqlite:./env.db")
	got, src, _ = resolveDSN(newCmd())
	assert.Equal(t, "sqlite:./env.db", got)
	assert.Equal(t, sourceEnv, src)

	c := newCmd()
	require.NoError(t, c.Flags().Set("dsn", "sqlite:./flag.db"))
	got, src, _ = resolveDSN(c)
	assert.Equal(t, "sqlite:./flag.db", got)
	assert.Equal(t, sourceFlag, src)
}

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "postgres://app:hunter2@db:5432/shop", want: "postgres://app:***@db:5432/shop"},
		{in: "postgres://app@db/shop", want: "postgres://app@db/shop"},
		{in: "sqlite:./shop.db", want: "sqlite:./shop.db"},
		{in: "postgres://app:hunter2 x@db/shop", want: "postgres://app:***@db/shop"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := maskPassword(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "hunter2")
		})
	}
}

func TestReadStatement(t *testing.T) {
	got, err := readStatement(strings.NewReader("SELECT 1;\n"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;\n", got)

	got, err = readStatement(strings.NewReader("ignored"), []string{"SELECT 2;"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2;", got)
}

func TestPrintReport(t *testing.T) {
	useConfig(t)
	runner := gate.RunnerFunc(func(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error) {
		return &sqlexec.Result{Columns: []string{"id"}, Rows: [][]any{{int64(7)}}}, nil
	})
	g := gate.New(runner, cfg.Gate(), nil)

	var out bytes.Buffer
	require.NoError(t, printReport(&out, g.Prepare("SELECT id FROM orders"), render.Table))
	assert.Contains(t, out.String(), "Bounded:   SELECT id FROM orders LIMIT 100;")
	assert.Contains(t, out.String(), "✅ Allowed")

	out.Reset()
	require.NoError(t, printReport(&out, g.Run(context.Background(), "SELECT id FROM orders"), render.CSV))
	assert.Contains(t, out.String(), "id\n7\n")

	out.Reset()
	err := printReport(&out, g.Prepare("TRUNCATE orders;"), render.Table)
	require.Error(t, err)
	assert.Contains(t, out.String(), "❌ TRUNCATE operations are not allowed")
}
