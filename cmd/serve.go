// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"clustersql/cli/internal/adapter"
	"clustersql/cli/internal/health"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveListen string

// serveCmd holds one cluster session open and reports it over gRPC health.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Hold a cluster session and expose its state over gRPC health",
	Long: `The serve command opens one cluster session and keeps it until interrupted.
Its state is published through the standard grpc.health.v1 service:
SERVING while connected, NOT_SERVING otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lis, err := net.Listen("tcp", serveListen)
		if err != nil {
			return err
		}
		hs := health.NewServer(hostServiceName, logger)
		serveErr := make(chan error, 1)
		go func() { serveErr <- hs.Serve(lis) }()
		defer hs.Stop()

		a, err := openAdapter(ctx, connectionConfig(), adapter.WithSessionListener(hs.Listener()))
		if err != nil {
			return err
		}
		logger.Info("session ready", "connection", a.Descriptor().String())

		select {
		case <-ctx.Done():
		case err = <-serveErr:
			if errors.Is(err, grpc.ErrServerStopped) {
				err = nil
			}
		}
		logger.Info("shutting down")
		_ = a.Disconnect(context.WithoutCancel(ctx))
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "127.0.0.1:8086", "gRPC health listen address")
}
