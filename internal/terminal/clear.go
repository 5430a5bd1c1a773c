// Package terminal holds the interactive pieces of the CLI: prompts, the
// spinner, and erasing a prompt whose answer should not stay on screen.
package terminal

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"
)

const defaultWidth = 80

// ClearPrompt erases a prompt and the answer typed after it, plus the empty
// line the cursor moved to on Enter. A DSN with a password must not be left
// in the scrollback.
func ClearPrompt(w io.Writer, prompt, answer string) {
	n := utf8.RuneCountInString(prompt) + utf8.RuneCountInString(answer)
	clearLines(w, wrappedLines(n, width(w))+1)
}

// width is the column count of w when it is a terminal.
func width(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
		return cols
	}
	return defaultWidth
}

// wrappedLines is how many rows n characters occupy at the given width.
func wrappedLines(n, width int) int {
	if n <= 0 || width <= 0 {
		return 1
	}
	return (n + width - 1) / width
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}
