// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sqlgate/cli/internal/assistant"
	"sqlgate/cli/internal/history"
	"sqlgate/cli/internal/logging"
	"sqlgate/cli/internal/render"
	"sqlgate/cli/internal/terminal"
	"sqlgate/cli/internal/xdg"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const chatPrompt = "❓ You: "

// chatCmd starts the interactive question loop.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about your database interactively",
	Long: `The chat command opens an interactive session. Every question is turned into
SQL by the model, checked by the gate, executed and explained. Earlier turns
are remembered and used as context.

Commands inside the session:
  schema            show the database schema
  tables            list tables
  history           show the last 5 turns (history all, history <N>)
  search <word>     search questions, SQL and answers
  stats             show success statistics
  clear             delete the history
  quit              leave the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := newChatSession(ctx, cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		histFile, _ := xdg.StateFile("readline_history")
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          chatPrompt,
			HistoryFile:     histFile,
			AutoComplete:    chatCompleter(sess.tables),
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize chat: %w", err)
		}
		defer func() { _ = rl.Close() }()

		r := &repl{
			out:  rl.Stdout(),
			sess: sess,
			confirm: func(question string) bool {
				rl.SetPrompt(question + " (yes/no): ")
				defer rl.SetPrompt(chatPrompt)
				answer, err := rl.Readline()
				if err != nil {
					return false
				}
				a := strings.ToLower(strings.TrimSpace(answer))
				return a == "y" || a == "yes"
			},
		}
		r.banner()

		err = r.run(ctx, rl.Readline)
		fmt.Fprintln(r.out, "👋 Goodbye!")
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// run reads lines until quit, EOF, an interrupt on an empty line or a
// cancelled context. Any other read error ends the session.
func (r *repl) run(ctx context.Context, readLine func() (string, error)) error {
	for {
		line, err := readLine()
		switch {
		case stderrors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case stderrors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}
		if r.handle(ctx, line) || ctx.Err() != nil {
			return nil
		}
	}
}

func chatCompleter(tables []string) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("quit"),
		readline.PcItem("schema"),
		readline.PcItem("tables"),
		readline.PcItem("history", readline.PcItem("all")),
		readline.PcItem("search"),
		readline.PcItem("stats"),
		readline.PcItem("clear"),
	}
	for _, t := range tables {
		items = append(items, readline.PcItem(t))
	}
	return readline.NewPrefixCompleter(items...)
}

// repl dispatches one chat line at a time.
type repl struct {
	out     io.Writer
	sess    *chatSession
	confirm func(question string) bool
	// spin starts a progress indicator; nil disables it.
	spin func(text string) (stop func())
}

func (r *repl) banner() {
	fmt.Fprintln(r.out, "🤖 SQL Chat Assistant")
	fmt.Fprintf(r.out, "Max rows per query: %d · Query timeout: %ds\n", cfg.Gate.MaxRows, cfg.Gate.QueryTimeoutSeconds)
	fmt.Fprintf(r.out, "Loaded %d previous conversations\n", r.sess.store.Len())
	fmt.Fprintln(r.out, "Commands: schema, tables, history, search <word>, stats, clear, quit")
	fmt.Fprintln(r.out)
}

// handle runs one line and reports whether the session should end.
func (r *repl) handle(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	fields := strings.Fields(line)
	command := strings.ToLower(fields[0])

	switch {
	case command == "quit" || command == "exit" || command == "q":
		return true

	case command == "schema" && len(fields) == 1:
		fmt.Fprintln(r.out, r.sess.schema)

	case command == "tables" && len(fields) == 1:
		fmt.Fprintf(r.out, "📋 Tables: %s\n", strings.Join(r.sess.tables, ", "))

	case command == "history" && len(fields) <= 2:
		n := 5
		if len(fields) == 2 {
			if strings.EqualFold(fields[1], "all") {
				n = 0
			} else if v, err := strconv.Atoi(fields[1]); err == nil && v > 0 {
				n = v
			} else {
				fmt.Fprintln(r.out, "Usage: history [all|N]")
				return false
			}
		}
		render.History(r.out, r.sess.store.Recent(n))

	case command == "search":
		keyword := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		if keyword == "" {
			fmt.Fprintln(r.out, "Usage: search <word>")
			return false
		}
		printSearch(r.out, r.sess.store, keyword)

	case command == "stats" && len(fields) == 1:
		render.Stats(r.out, r.sess.store.Stats(), cfg.Gate.MaxRows, float64(cfg.Gate.QueryTimeoutSeconds))

	case command == "clear" && len(fields) == 1:
		if r.confirm == nil || !r.confirm("Clear all history?") {
			fmt.Fprintln(r.out, "Cancelled.")
			return false
		}
		if err := r.sess.store.Clear(); err != nil {
			fmt.Fprintln(r.out, logging.PresentError("❌ Failed to clear history", err))
			return false
		}
		fmt.Fprintln(r.out, "✅ History cleared!")

	default:
		r.ask(ctx, line)
	}
	return false
}

func (r *repl) ask(ctx context.Context, question string) {
	stop := func() {}
	if r.spin != nil {
		stop = r.spin("Thinking")
	} else if terminal.IsInteractive() {
		stop = terminal.StartSpinner(r.out, "Thinking", terminal.DefaultFrames, 120*time.Millisecond)
	}
	turn, err := r.sess.ask(ctx, question)
	stop()

	if err != nil {
		logger.Warn("turn failed", zap.Error(err))
	}
	printTurn(r.out, turn)
}

// printTurn shows the statement, a result preview and the answer.
func printTurn(w io.Writer, turn assistant.Turn) {
	if sql := turn.SQL(); sql != "" {
		fmt.Fprintf(w, "\n📝 Generated SQL: %s\n", sql)
	}
	if out := turn.Report.Outcome; out != nil {
		if !turn.Failed {
			fmt.Fprintf(w, "📊 Result: %s\n", history.Ellipsis(turn.Result, 500))
			fmt.Fprintf(w, "%s\n", pterm.Gray(fmt.Sprintf("⏱  %s · %d bytes", out.Elapsed.Round(time.Millisecond), out.ByteSize)))
		}
		if out.Oversized {
			fmt.Fprintf(w, "%s\n", pterm.Yellow(fmt.Sprintf("⚠️  Large result (%d bytes). Consider adding filters or aggregation.", out.ByteSize)))
		}
		if out.Truncated {
			fmt.Fprintf(w, "%s\n", pterm.Yellow("⚠️  More rows matched than the row limit allows; showing the first ones."))
		}
	}
	fmt.Fprintf(w, "\n🤖 %s\n\n", turn.Answer)
}

func printSearch(w io.Writer, store *history.Store, keyword string) {
	matches := store.Search(keyword)
	if len(matches) == 0 {
		fmt.Fprintf(w, "No matches found for '%s'\n", keyword)
		return
	}
	fmt.Fprintf(w, "🔍 Found %d matches for '%s':\n", len(matches), keyword)
	if len(matches) > 5 {
		matches = matches[len(matches)-5:]
	}
	render.History(w, matches)
}
