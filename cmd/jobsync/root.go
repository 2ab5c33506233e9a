package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/config"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/notifier"
	"github.com/amishk599/jobsync/internal/ratelimit"
	"github.com/amishk599/jobsync/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobsync",
	Short: "Job portal ingestion pipeline",
	Long:  "jobsync crawls job portals, stores their raw responses, and merges the postings into one deduplicated job table.",
	// Default to `start` so that `jobsync` with no args runs the daemon.
	RunE:         runStart,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; variables may come from the environment.
		_ = godotenv.Load()
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBSYNC_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBSYNC_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBSYNC_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func mustLoadConfig(logger *slog.Logger) *config.Config {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// portalNames lists the portals with a built-in adapter.
var portalNames = []string{"foundit", "linkedin"}

func createAdapter(name string, opts adapter.Options, httpClient *http.Client) (adapter.Adapter, bool) {
	switch name {
	case "foundit":
		return adapter.NewFounditAdapter(opts, httpClient), true
	case "linkedin":
		return adapter.NewLinkedInAdapter(opts, httpClient), true
	default:
		return nil, false
	}
}

// buildRegistry registers every supported portal behind one shared rate limiter.
func buildRegistry(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *adapter.Registry {
	logger.Info("portal min_delay", "min_delay", cfg.Crawl.RequestDelay.String())
	limiter := ratelimit.NewPortalLimiter(cfg.Crawl.RequestDelay)

	for name := range cfg.Portals {
		if !slices.Contains(portalNames, name) {
			logger.Warn("unsupported portal in config, skipping", "portal", name)
		}
	}

	registry := adapter.NewRegistry()
	for _, name := range portalNames {
		pc := cfg.Portals[name]
		a, _ := createAdapter(name, adapter.Options{
			BaseURL:   pc.BaseURL,
			UserAgent: pc.UserAgent,
			Country:   pc.Country,
		}, httpClient)
		limiter.SetDelay(a.Name(), cfg.DelayFor(name))
		registry.Register(ratelimit.Wrap(a, limiter))
	}
	return registry
}

// seedKeywords registers the configured keywords. Existing rows keep their
// crawl history and active flag.
func seedKeywords(ctx context.Context, ks model.KeywordStore, cfg *config.Config, logger *slog.Logger) error {
	for _, kw := range cfg.Keywords {
		if _, err := ks.RegisterKeyword(ctx, kw.Keyword, kw.Portal, kw.PortalURL); err != nil {
			return fmt.Errorf("seeding keywords: %w", err)
		}
		logger.Debug("registered keyword", "keyword", kw.Keyword, "portal", kw.Portal)
	}
	return nil
}

// withStore opens only the SQLite store, for commands that manage registry data.
func withStore(fn func(ctx context.Context, st *store.Store) error) error {
	logger := setupLogger(debug)
	cfg := mustLoadConfig(logger)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return err
	}
	defer st.Close()
	return fn(context.Background(), st)
}
