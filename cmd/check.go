// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/render"
	"sqlgate/cli/internal/rpc"
	"sqlgate/cli/internal/sqlexec"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var (
	checkExecute bool
	checkRemote  string
	checkFormat  string
	checkTLS     bool
)

// checkCmd runs raw text through the gate without involving the model.
var checkCmd = &cobra.Command{
	Use:   "check [sql|-]",
	Short: "Run a statement through the safety gate",
	Long: `The check command sanitizes, bounds and validates a statement exactly as model
output would be. Pass the text as an argument or "-" to read it from stdin.
With --execute an allowed statement is also run against the database; with
--remote the checks run on a gate server started by 'sqlgate serve'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(checkFormat)
		if err != nil {
			return err
		}
		raw, err := readStatement(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		if checkRemote != "" {
			return checkRemotely(cmd.Context(), cmd.OutOrStdout(), raw, format)
		}

		var runner gate.Runner
		if checkExecute {
			backend, err := openBackend(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()
			runner = backend
		}
		g := gate.New(runner, cfg.Gate(), logger)

		var rep gate.Report
		if checkExecute {
			rep = g.Run(cmd.Context(), raw)
		} else {
			rep = g.Prepare(raw)
		}
		return printReport(cmd.OutOrStdout(), rep, format)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVarP(&checkExecute, "execute", "x", false, "execute the statement when allowed")
	checkCmd.Flags().StringVar(&checkRemote, "remote", "", "address of a gate server (host:port)")
	checkCmd.Flags().BoolVar(&checkTLS, "tls", false, "use TLS for --remote")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "table", "result format: table, json or csv")
}

func readStatement(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read statement: %w", err)
		}
		return string(b), nil
	}
	return args[0], nil
}

func printReport(w io.Writer, rep gate.Report, format render.Format) error {
	if rep.Sanitized != "" {
		fmt.Fprintf(w, "Sanitized: %s\n", rep.Sanitized)
	}
	if rep.Injected {
		fmt.Fprintf(w, "Bounded:   %s\n", rep.Statement)
	}
	if !rep.Decision.Allowed {
		fmt.Fprintf(w, "%s\n", pterm.Red(rep.Message))
		return rep.Err
	}

	out := rep.Outcome
	if out == nil {
		fmt.Fprintln(w, pterm.Green("✅ Allowed"))
		return nil
	}
	if out.State != gate.Completed {
		fmt.Fprintf(w, "%s\n", pterm.Red(rep.Message))
		return rep.Err
	}
	if err := render.Result(w, out.Result, format); err != nil {
		return err
	}
	if out.Oversized {
		fmt.Fprintf(w, "%s\n", pterm.Yellow(fmt.Sprintf("⚠️  Large result (%d bytes)", out.ByteSize)))
	}
	fmt.Fprintf(w, "%s\n", pterm.Gray(fmt.Sprintf("⏱  %s", out.Elapsed.Round(time.Millisecond))))
	return nil
}

func checkRemotely(ctx context.Context, w io.Writer, raw string, format render.Format) error {
	var opts []grpc.DialOption
	if checkTLS {
		opts = append(opts, rpc.TLSOption(checkRemote))
	}
	c, err := rpc.Dial(checkRemote, cfg.Server.Token, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	call := c.Check
	if checkExecute {
		call = c.Run
	}
	resp, err := call(ctx, raw)
	if err != nil {
		return errors.Wrap(errors.ConfigInvalid, "remote gate "+checkRemote, err)
	}

	if resp.Sanitized != "" {
		fmt.Fprintf(w, "Sanitized: %s\n", resp.Sanitized)
	}
	if resp.Statement != "" && resp.Statement != resp.Sanitized {
		fmt.Fprintf(w, "Bounded:   %s\n", resp.Statement)
	}
	if !resp.Allowed {
		fmt.Fprintf(w, "%s\n", pterm.Red(gate.FailureMarker+" "+resp.Reason))
		return errors.New(errors.PolicyRejected, resp.Reason)
	}
	if !checkExecute {
		fmt.Fprintln(w, pterm.Green("✅ Allowed"))
		return nil
	}
	if resp.State != gate.Completed.String() {
		fmt.Fprintf(w, "%s\n", pterm.Red(resp.Message))
		kind := errors.SQLError
		if resp.State == gate.TimedOut.String() {
			kind = errors.Timeout
		}
		return errors.New(kind, strings.TrimSpace(strings.TrimPrefix(resp.Message, gate.FailureMarker)))
	}

	res := &sqlexec.Result{Columns: resp.Columns, Rows: resp.Rows, Truncated: resp.Truncated}
	if err := render.Result(w, res, format); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", pterm.Gray(fmt.Sprintf("⏱  %dms", resp.ElapsedMS)))
	return nil
}

