package cmd

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"sqlgate/cli/internal/render"
	"sqlgate/cli/internal/terminal"

	"github.com/spf13/cobra"
)

var historyYes bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the question history",
}

var historyListCmd = &cobra.Command{
	Use:   "list [N]",
	Short: "Show the last N turns (all when N is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 0
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("N must be a positive number, got %q", args[0])
			}
			n = v
		}
		store, err := openHistory()
		if err != nil {
			return err
		}
		render.History(cmd.OutOrStdout(), store.Recent(n))
		return nil
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Find turns whose question, SQL or answer mentions keyword",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		printSearch(cmd.OutOrStdout(), store, strings.Join(args, " "))
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show success statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		render.Stats(cmd.OutOrStdout(), store.Stats(), cfg.Gate.MaxRows, float64(cfg.Gate.QueryTimeoutSeconds))
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored turns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !historyYes && !terminal.Confirm(out, bufio.NewReader(cmd.InOrStdin()), "Clear all history?") {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(out, "✅ History cleared!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historySearchCmd, historyStatsCmd, historyClearCmd)
	historyClearCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "do not ask for confirmation")
}
