package cmd

import (
	"fmt"
	"strings"
	"time"

	"sqlgate/cli/internal/terminal"

	"github.com/spf13/cobra"
)

var askShowSQL bool

// askCmd answers a single question and exits.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question about your database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := newChatSession(ctx, cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		stop := func() {}
		if terminal.IsInteractive() {
			stop = terminal.StartSpinner(cmd.ErrOrStderr(), "Thinking", terminal.DefaultFrames, 120*time.Millisecond)
		}
		turn, err := sess.ask(ctx, strings.Join(args, " "))
		stop()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if askShowSQL && turn.SQL() != "" {
			fmt.Fprintf(out, "📝 %s\n\n", turn.SQL())
		}
		fmt.Fprintln(out, turn.Answer)
		if turn.Failed {
			return turn.Report.Err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askShowSQL, "sql", false, "print the executed SQL before the answer")
}
