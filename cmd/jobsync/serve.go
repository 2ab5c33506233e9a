package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsync/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin API without the scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: http.addr from config, else :8080)")
	rootCmd.AddCommand(serveCmd)
}

func newServer(p *pipeline, logger *slog.Logger) *server.Server {
	return server.New(server.Deps{
		Crawler:     p.crawler,
		Syncer:      p.syncer,
		Reprocessor: p.processor,
		Keywords:    p.store,
		Raws:        p.store,
		DB:          p.store,
	}, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	addr := serveAddr
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	if addr == "" {
		addr = ":8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer p.Close()

	return newServer(p, logger).Run(ctx, addr)
}
