package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/filter"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/retry"
)

var (
	checkPortal  string
	checkKeyword string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch one page, print parsed jobs, exit",
	Long:  "One-shot fetch of the first result page for a keyword on a portal. Prints the parsed jobs and filter decisions. Does not write to the store.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPortal, "portal", "", "portal name")
	checkCmd.Flags().StringVar(&checkKeyword, "keyword", "", "search keyword")
	_ = checkCmd.MarkFlagRequired("portal")
	_ = checkCmd.MarkFlagRequired("keyword")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	logger.Info("check mode: nothing will be stored")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.Crawl.RequestTimeout}
	a, err := buildRegistry(cfg, httpClient, logger).Lookup(strings.ToLower(checkPortal))
	if err != nil {
		return err
	}

	kw := model.CrawlKeyword{Keyword: checkKeyword, PortalName: a.Name(), IsActive: true}
	url, err := a.BuildRequestURL(kw, model.PageRequest{Start: 0, Limit: cfg.Crawl.PageSize})
	if err != nil {
		return err
	}
	logger.Info("fetching", "url", url)

	var res adapter.FetchResult
	policy := retry.New(cfg.Crawl.MaxRetries, cfg.Crawl.RetryDelay, logger)
	err = policy.Do(ctx, func(ctx context.Context) error {
		var ferr error
		res, ferr = a.Fetch(ctx, url, a.Headers())
		return ferr
	})
	if err != nil {
		logger.Error("fetch failed", "portal", a.Name(), "error", err)
		return err
	}

	parsed, err := a.Parse(res.Body)
	if err != nil {
		logger.Error("payload could not be parsed", "portal", a.Name(), "bytes", len(res.Body), "error", err)
		return err
	}

	f := filter.NewIngestFilter(cfg.Filters.ExcludeTitles, cfg.Filters.Locations, cfg.Filters.MaxAge)
	allowed := 0
	for _, j := range parsed.Jobs {
		ok, reason := f.Allow(j)
		mark := "+"
		if ok {
			allowed++
		} else {
			mark = "-"
		}
		fmt.Printf("%s %-12s %-45s %-25s %s", mark, j.PortalJobID, truncate(j.JobTitle, 45), truncate(j.CompanyName, 25), strings.Join(j.Locations, "/"))
		if reason != "" {
			fmt.Printf("  (%s)", reason)
		}
		fmt.Println()
	}
	for _, rowErr := range parsed.RowErrors {
		fmt.Printf("! %v\n", rowErr)
	}

	fmt.Printf("\nHTTP %d, %d bytes: %d jobs parsed, %d kept by filters, %d row errors\n",
		res.StatusCode, len(res.Body), len(parsed.Jobs), allowed, len(parsed.RowErrors))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
