package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsync/internal/crawler"
	"github.com/amishk599/jobsync/internal/syncer"
)

var (
	crawlKeyword string
	crawlPortal  string
	reprocessID  int64
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl once and exit",
	Long: `Crawls due keywords once. With --portal, crawls every active keyword of that
portal regardless of its last crawl. With --keyword and --portal, crawls that
registered keyword only.`,
	RunE: runCrawl,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Tag and merge every unsynced external job",
	RunE:  runSync,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-run ingestion on stored raw responses",
	Long:  "Processes every PENDING raw response, or with --id reprocesses one COMPLETED or FAILED response.",
	RunE:  runReprocess,
}

func init() {
	crawlCmd.Flags().StringVar(&crawlKeyword, "keyword", "", "registered keyword to crawl (requires --portal)")
	crawlCmd.Flags().StringVar(&crawlPortal, "portal", "", "portal to crawl")
	reprocessCmd.Flags().Int64Var(&reprocessID, "id", 0, "raw response id")
	rootCmd.AddCommand(crawlCmd, syncCmd, reprocessCmd)
}

// withPipeline loads config, wires the pipeline and runs fn until it returns
// or the process is interrupted.
func withPipeline(fn func(ctx context.Context, p *pipeline) error) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer p.Close()
	return fn(ctx, p)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	if crawlKeyword != "" && crawlPortal == "" {
		return fmt.Errorf("--keyword requires --portal")
	}
	return withPipeline(func(ctx context.Context, p *pipeline) error {
		sum, err := p.crawler.CrawlNow(ctx, crawler.CrawlRequest{Keyword: crawlKeyword, PortalName: crawlPortal})
		if err != nil {
			return err
		}
		printCrawlSummary(sum)
		return nil
	})
}

func runSync(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, p *pipeline) error {
		sum, err := p.syncer.SyncUnsynced(ctx)
		printSyncSummary(sum)
		return err
	})
}

func runReprocess(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, p *pipeline) error {
		if reprocessID != 0 {
			res, err := p.processor.Reprocess(ctx, reprocessID)
			if err != nil {
				return err
			}
			fmt.Printf("raw response %d: %s, %d new, %d duplicate, %d filtered, %d row errors\n",
				res.RawID, res.Status, len(res.NewJobs), res.Duplicates, res.Filtered, res.RowErrors)
			if res.Error != "" {
				fmt.Printf("error: %s\n", res.Error)
			}
			return nil
		}

		batch, err := p.processor.ReprocessPending(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("processed %d raw responses: %d completed, %d failed, %d new jobs\n",
			batch.Processed, batch.Completed, batch.Failed, len(batch.NewJobs))
		return nil
	})
}

func printCrawlSummary(sum crawler.Summary) {
	fmt.Printf("run %s\n", sum.RunID)
	fmt.Printf("  keywords:   %d (%d ok, %d failed)\n", sum.Keywords, sum.Succeeded, sum.Failed)
	fmt.Printf("  pages:      %d\n", sum.Pages)
	fmt.Printf("  new jobs:   %d\n", sum.NewJobs)
	fmt.Printf("  duplicates: %d\n", sum.Duplicates)
	fmt.Printf("  filtered:   %d\n", sum.Filtered)
	fmt.Printf("  row errors: %d\n", sum.RowErrors)
	printSyncSummary(sum.Sync)
	for _, m := range sum.Messages {
		fmt.Printf("  ! %s\n", m)
	}
}

func printSyncSummary(sum syncer.Summary) {
	fmt.Printf("sync: %d total, %d created, %d merged, %d already existed, %d tag failures, %d errors\n",
		sum.Total, sum.Created, sum.Merged, sum.AlreadyExists, sum.TagFailed, sum.Errors)
}
