package terminal

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  sqlite:./shop.db  \nnext"))

	got, err := ReadLine(&out, r, "DSN: ")
	require.NoError(t, err)
	assert.Equal(t, "sqlite:./shop.db", got)
	assert.Equal(t, "DSN: ", out.String())

	got, err = ReadLine(&out, r, "")
	require.NoError(t, err)
	assert.Equal(t, "next", got, "last line without newline")

	_, err = ReadLine(&out, r, "")
	assert.Error(t, err)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "Y\n", want: true},
		{input: "no\n", want: false},
		{input: "maybe\n", want: false},
		{input: "", want: false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := Confirm(&out, bufio.NewReader(strings.NewReader(tt.input)), "Clear history?")
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "Clear history? (yes/no): ")
	}
}

func TestSpinnerClearsLine(t *testing.T) {
	var out safeBuffer
	stop := StartSpinner(&out, "thinking", nil, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()
	stop()

	s := out.String()
	assert.Contains(t, s, "thinking")
	assert.True(t, strings.HasSuffix(s, "\r"))
}

func TestClearPrompt(t *testing.T) {
	var out bytes.Buffer
	ClearPrompt(&out, "DSN: ", "sqlite:./shop.db")
	assert.Equal(t, "\r\x1b[2K\x1b[1A\r\x1b[2K", out.String())

	out.Reset()
	ClearPrompt(&out, strings.Repeat("p", 70), strings.Repeat("é", 20))
	assert.Equal(t, 3, strings.Count(out.String(), "\x1b[2K"))
	assert.Equal(t, 2, strings.Count(out.String(), "\x1b[1A"))
}

func TestWrappedLines(t *testing.T) {
	assert.Equal(t, 1, wrappedLines(0, 80))
	assert.Equal(t, 1, wrappedLines(80, 80))
	assert.Equal(t, 2, wrappedLines(81, 80))
	assert.Equal(t, 1, wrappedLines(10, 0))
}
