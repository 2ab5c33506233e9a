package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsync/internal/filter"
	"github.com/amishk599/jobsync/internal/ingest"
	"github.com/amishk599/jobsync/internal/inspect"
	"github.com/amishk599/jobsync/internal/store"
)

var inspectLimit int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Browse raw responses and external jobs interactively (TUI)",
	Long:  "Shows the portal picker TUI, then launches the split-pane inspector over recent raw responses and external jobs.",
	RunE:  runInspectCmd,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 200, "rows of each kind to load")
	rootCmd.AddCommand(inspectCmd)
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Any log output while the alt-screen is active corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := buildRegistry(cfg, &http.Client{Timeout: cfg.Crawl.RequestTimeout}, silentLogger)
	ingestFilter := filter.NewIngestFilter(cfg.Filters.ExcludeTitles, cfg.Filters.Locations, cfg.Filters.MaxAge)
	processor := ingest.NewProcessor(st, st, registry, ingestFilter, silentLogger)

	for {
		portal, err := inspect.RunPortalPicker(registry.Names())
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return nil
		}
		if portal == "" {
			return nil
		}

		snap, err := inspect.RunLoader("Loading "+portal, func(ctx context.Context) (inspect.Snapshot, error) {
			return inspect.LoadSnapshot(ctx, st, portal, inspectLimit)
		})
		if err != nil {
			fmt.Printf("Error loading data: %v\n", err)
			continue
		}

		wantQuit, err := inspect.RunInspectTUI(snap, processor)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return nil
		}
		// else: loop → back to picker
	}
}
