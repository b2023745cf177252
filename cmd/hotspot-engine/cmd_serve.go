package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-hotspot/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and gRPC APIs",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting mirador-hotspot",
		slog.String("http", a.cfg.Server.HTTPAddress),
		slog.String("grpc", a.cfg.Server.GRPCAddress),
		slog.String("version", version))

	server, err := api.NewServer(a.cfg.Server, a.logger, a.service)
	if err != nil {
		return err
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			a.logger.Error("server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	a.logger.Info("mirador-hotspot stopped")
	return nil
}
