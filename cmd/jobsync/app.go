package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/ai"
	"github.com/amishk599/jobsync/internal/config"
	"github.com/amishk599/jobsync/internal/crawler"
	"github.com/amishk599/jobsync/internal/filter"
	"github.com/amishk599/jobsync/internal/ingest"
	"github.com/amishk599/jobsync/internal/merge"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/notifier"
	"github.com/amishk599/jobsync/internal/retry"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/amishk599/jobsync/internal/store/postgres"
	"github.com/amishk599/jobsync/internal/syncer"
	"github.com/amishk599/jobsync/internal/tagger"
)

// pipeline is the fully wired ingestion stack shared by the commands.
type pipeline struct {
	store     *store.Store
	registry  *adapter.Registry
	processor *ingest.Processor
	syncer    *syncer.Syncer
	crawler   *crawler.Crawler
	closers   []func()
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	p := &pipeline{store: st}
	p.closers = append(p.closers, func() { st.Close() })

	if err := seedKeywords(ctx, st, cfg, logger); err != nil {
		p.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Crawl.RequestTimeout}
	p.registry = buildRegistry(cfg, httpClient, logger)

	ingestFilter := filter.NewIngestFilter(cfg.Filters.ExcludeTitles, cfg.Filters.Locations, cfg.Filters.MaxAge)
	p.processor = ingest.NewProcessor(st, st, p.registry, ingestFilter, logger)

	repo, err := openCanonicalRepo(ctx, cfg, st, p, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = tagger.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, func() { rdb.Close() })
		logger.Info("redis connected")
	}

	resolver := buildResolver(cfg, st, rdb, logger)
	engine := merge.NewEngine(repo, logger, merge.WithLookback(cfg.Sync.LookbackWindow))

	notifiers := []model.Notifier{setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)}
	if rdb != nil {
		notifiers = append(notifiers, notifier.NewRedisNotifier(rdb, cfg.Redis.Channel))
	}
	p.syncer = syncer.New(st, tagger.New(resolver, logger), engine, cfg.Sync.Workers, logger, notifiers...)

	p.crawler = crawler.New(st, st, p.registry, p.processor, p.syncer, crawler.Config{
		Pages:          cfg.Crawl.Pages,
		PageSize:       cfg.Crawl.PageSize,
		RequestTimeout: cfg.Crawl.RequestTimeout,
		RecrawlAfter:   cfg.Crawl.RecrawlAfter,
		Retry:          retry.New(cfg.Crawl.MaxRetries, cfg.Crawl.RetryDelay, logger),
	}, logger)

	return p, nil
}

func openCanonicalRepo(ctx context.Context, cfg *config.Config, st *store.Store, p *pipeline, logger *slog.Logger) (model.CanonicalJobRepository, error) {
	if cfg.CanonicalStore.Driver != "postgres" {
		return st.CanonicalJobs(), nil
	}
	pool, err := postgres.NewPool(ctx, cfg.CanonicalStore.DSN)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, pool.Close)

	repo := postgres.NewCanonicalJobs(pool)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("using postgres canonical store")
	return repo, nil
}

// buildResolver chains directory lookup, the optional AI designation matcher,
// and the optional Redis cache in front of both.
func buildResolver(cfg *config.Config, st *store.Store, rdb *redis.Client, logger *slog.Logger) model.EntityResolver {
	var resolver model.EntityResolver = tagger.NewDirectoryResolver(st)

	if cfg.AI.Enabled {
		provider := ai.NewOpenAIProvider(
			cfg.AI.BaseURL,
			cfg.AI.APIKey,
			cfg.AI.Model,
			&http.Client{Timeout: cfg.AI.Timeout},
			retry.New(cfg.AI.MaxRetries, 2*time.Second, logger),
		)
		matcher := ai.NewDesignationMatcher(provider, ai.DesignationMatchTemplate, logger)
		resolver = tagger.NewAIResolver(resolver, st, matcher, logger)
		logger.Info("AI designation matching enabled", "model", cfg.AI.Model)
	}

	if rdb != nil {
		resolver = tagger.NewCachedResolver(resolver, tagger.NewRedisCache(rdb), cfg.Redis.CacheTTL, logger)
	}
	return resolver
}
