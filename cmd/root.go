// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for sqlgate.
// It wires configuration, logging, secrets and the query gate into Cobra
// subcommands: an interactive chat, one-shot questions, a raw statement
// checker, history management and a gRPC gate server.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sqlgate/cli/internal/config"
	"sqlgate/cli/internal/logging"
	"sqlgate/cli/internal/xdg"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile     string
	verbose     bool
	showVersion bool

	// cfg and cfgPath are set by loadRuntime before any subcommand runs.
	cfg     *config.Config
	cfgPath string
	logger  = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sqlgate",
	Short: "Ask questions about your database through a SQL safety gate",
	Long: `sqlgate turns natural-language questions into SQL with a language model and
runs every generated statement through a safety gate first: model output is
cleaned up, SELECTs get a row limit, destructive or unbounded statements are
rejected and execution is bounded by a timeout.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlgate %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application. An interrupt cancels the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		logging.PresentFailure(err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/sqlgate/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.String("dsn", "", "database DSN (postgres://... or sqlite:<path>)")
	pf.Int("max-rows", 0, "maximum rows a query may return")
	pf.Int("timeout", 0, "query timeout in seconds")
	pf.Bool("read-only", false, "reject INSERT, UPDATE and other writes")
	pf.String("model", "", "model name, e.g. openai/gpt-4o-mini")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
}

// loadRuntime reads configuration and installs the global logger.
func loadRuntime(cmd *cobra.Command, args []string) error {
	c, used, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg, cfgPath = c, used

	logPath, err := xdg.StateFile(logging.LogFileName)
	if err != nil {
		logPath = ""
	}
	l, err := logging.NewLogger(cfg.LogLevel, verbose, logPath)
	if err != nil {
		return err
	}
	logger = l
	zap.ReplaceGlobals(logger)

	logger.Debug("configuration loaded",
		zap.String("command", cmd.CommandPath()),
		zap.String("config_file", cfgPath),
		zap.Int("max_rows", cfg.Gate.MaxRows),
		zap.Int("timeout_seconds", cfg.Gate.QueryTimeoutSeconds),
		zap.Bool("read_only", cfg.Gate.ReadOnly))
	return nil
}
