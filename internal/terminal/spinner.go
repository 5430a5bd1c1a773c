package terminal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"atomicgo.dev/cursor"
)

// DefaultFrames is the stick-style animation used across commands.
var DefaultFrames = []string{"|", "/", "-", "\\"}

// StartSpinner draws frames followed by text on a single line of w until the
// returned stop function is called. The cursor is hidden while it spins and
// the line is cleared on stop. Calling stop more than once is safe.
func StartSpinner(w io.Writer, text string, frames []string, interval time.Duration) (stop func()) {
	if len(frames) == 0 {
		frames = DefaultFrames
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	var once sync.Once

	cursor.Hide()
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		i := 0
		width := 0
		for {
			select {
			case <-done:
				fmt.Fprintf(w, "\r%*s\r", width, "")
				return
			case <-ticker.C:
				line := fmt.Sprintf("%s %s (%ds)", frames[i%len(frames)], text, int(time.Since(start).Seconds()))
				if len(line) > width {
					width = len(line)
				}
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()

	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			cursor.Show()
		})
	}
}
