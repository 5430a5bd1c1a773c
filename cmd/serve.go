// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"net"

	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/rpc"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

// serveCmd exposes the gate to other processes over gRPC.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query gate over gRPC",
	Long: `The serve command starts a gRPC server implementing sqlgate.v1.QueryGate and the
standard health service. Clients send raw statements and receive the gate's
decision and, for Run, the bounded result. Set server.token in the config or
SQLGATE_SERVER_TOKEN to require a shared secret.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		backend, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrap(errors.ConfigInvalid, "listen on "+addr, err)
		}

		srv := rpc.NewServer(gate.New(backend, cfg.Gate(), logger), cfg.Server.Token, logger)
		fmt.Fprintf(cmd.OutOrStdout(), "🚦 Gate listening on %s (Ctrl+C to stop)\n", lis.Addr())

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("stopping gate server")
			srv.GracefulStop()
			return nil
		})

		if err := g.Wait(); err != nil {
			return fmt.Errorf("gate server: %w", err)
		}
		logger.Info("gate server stopped", zap.String("addr", addr))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
}
