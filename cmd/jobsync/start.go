package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobsync/internal/config"
	"github.com/amishk599/jobsync/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the crawl and sync daemon",
	Long:  "Recovers interrupted work, then crawls due keywords and syncs new jobs on their intervals. Serves the admin API when http.addr is set. Blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	logger.Info("config loaded",
		"crawl_interval", cfg.Crawl.Interval.String(),
		"sync_interval", cfg.Sync.Interval.String(),
		"keywords", len(cfg.Keywords),
		"canonical_store", cfg.CanonicalStore.Driver,
		"http_addr", cfg.HTTP.Addr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer p.Close()

	recoverWork(ctx, p, logger)

	sched := scheduler.NewScheduler(schedulerTasks(cfg, p, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if cfg.HTTP.Addr != "" {
		srv := newServer(p, logger)
		g.Go(func() error {
			return srv.Run(gctx, cfg.HTTP.Addr)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("daemon error", "error", err)
		return err
	}

	logger.Info("goodbye")
	return nil
}

// recoverWork resets raw responses left PROCESSING by a crash and processes
// everything still PENDING. New rows wait for the first sync tick.
func recoverWork(ctx context.Context, p *pipeline, logger *slog.Logger) {
	reset, err := p.processor.RecoverStale(ctx)
	if err != nil {
		logger.Error("recovering stale raw responses failed", "error", err)
		return
	}
	if reset > 0 {
		logger.Info("reset stale raw responses", "count", reset)
	}

	batch, err := p.processor.ReprocessPending(ctx)
	if err != nil {
		logger.Error("processing pending raw responses failed", "error", err)
		return
	}
	if batch.Processed > 0 {
		logger.Info("processed pending raw responses",
			"processed", batch.Processed,
			"completed", batch.Completed,
			"failed", batch.Failed,
			"new_jobs", len(batch.NewJobs),
		)
	}
}

func schedulerTasks(cfg *config.Config, p *pipeline, logger *slog.Logger) []scheduler.Task {
	return []scheduler.Task{
		{
			Name:     "crawl-due",
			Interval: cfg.Crawl.Interval,
			Run: func(ctx context.Context) error {
				sum, err := p.crawler.CrawlDue(ctx)
				if err != nil {
					return err
				}
				for _, msg := range sum.Messages {
					logger.Warn("crawl issue", "run_id", sum.RunID, "message", msg)
				}
				return nil
			},
		},
		{
			Name:     "sync-unsynced",
			Interval: cfg.Sync.Interval,
			Run: func(ctx context.Context) error {
				_, err := p.syncer.SyncUnsynced(ctx)
				return err
			},
		},
	}
}
