package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/history"
	"sqlgate/cli/internal/sqlexec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *sqlexec.Result {
	return &sqlexec.Result{
		Columns: []string{"id", "name", "note"},
		Rows: [][]any{
			{int64(1), "Alice", nil},
			{int64(2), "Bob, Jr.", []byte(`say "hi"`)},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{in: "", want: Table, ok: true},
		{in: "JSON", want: JSON, ok: true},
		{in: " csv ", want: CSV, ok: true},
		{in: "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if !tt.ok {
				assert.True(t, errors.Is(err, errors.ConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Result(&buf, sample(), CSV))
	assert.Equal(t, "id,name,note\n1,Alice,NULL\n2,\"Bob, Jr.\",\"say \"\"hi\"\"\"\n", buf.String())
}

func TestResultJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Result(&buf, sample(), JSON))
	assert.JSONEq(t, `{"columns":["id","name","note"],"rows":[[1,"Alice",null],[2,"Bob, Jr.","say \"hi\""]]}`, buf.String())
}

func TestResultTable(t *testing.T) {
	var buf bytes.Buffer
	res := sample()
	res.Truncated = true
	require.NoError(t, Result(&buf, res, Table))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Bob, Jr.")
	assert.Contains(t, out, "NULL")
	assert.True(t, strings.HasSuffix(out, "(2 rows, truncated)\n"))
}

func TestResultTableEmptyAndWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Result(&buf, &sqlexec.Result{Columns: []string{"id"}}, Table))
	assert.Equal(t, "(0 rows)\n", buf.String())

	buf.Reset()
	require.NoError(t, Result(&buf, &sqlexec.Result{RowsAffected: 3}, Table))
	assert.Equal(t, "(3 rows affected)\n", buf.String())
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	History(&buf, nil)
	assert.Equal(t, "No history.\n", buf.String())

	buf.Reset()
	History(&buf, []history.Record{
		{Timestamp: time.Now(), Question: "how many?", SQL: "SELECT COUNT(*) FROM t;", Answer: "3", Status: history.StatusSuccess},
		{Timestamp: time.Now(), Question: "drop it", SQL: "DROP TABLE t;", Answer: "❌ DROP operations are not allowed", Status: history.StatusFailed},
	})
	out := buf.String()
	assert.Contains(t, out, "how many?")
	assert.Contains(t, out, "✅")
	assert.Contains(t, out, "❌")
}

func TestStats(t *testing.T) {
	var buf bytes.Buffer
	Stats(&buf, history.Stats{}, 100, 10)
	assert.Equal(t, "No queries yet.\n", buf.String())

	buf.Reset()
	Stats(&buf, history.Stats{Total: 4, Successful: 3, Failed: 1}, 100, 10)
	out := buf.String()
	assert.Contains(t, out, "3 (75.0%)")
	assert.Contains(t, out, "1 (25.0%)")
	assert.Contains(t, out, "10s")
}
