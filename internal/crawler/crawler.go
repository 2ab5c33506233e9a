package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/ingest"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/retry"
	"github.com/amishk599/jobsync/internal/syncer"
)

// AdapterLookup finds the adapter for a keyword's portal.
type AdapterLookup interface {
	Lookup(portal string) (adapter.Adapter, error)
}

// Processor turns a stored raw response into external job rows.
type Processor interface {
	Process(ctx context.Context, raw model.RawResponse) (ingest.Result, error)
}

// Syncer reconciles freshly ingested rows.
type Syncer interface {
	SyncRows(ctx context.Context, rows []model.ExternalJobDetail) (syncer.Summary, error)
}

// Config holds the crawl tunables.
type Config struct {
	Pages          int           // pages fetched per keyword
	PageSize       int           // rows requested per page
	RequestTimeout time.Duration // per page fetch
	RecrawlAfter   time.Duration // a keyword is due once its last crawl is this old
	Retry          retry.Policy  // applied to each page fetch
}

func (c Config) withDefaults() Config {
	if c.Pages <= 0 {
		c.Pages = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RecrawlAfter <= 0 {
		c.RecrawlAfter = 24 * time.Hour
	}
	return c
}

// CrawlRequest selects what CrawlNow crawls. Both fields set: one registered
// keyword. Portal only: every active keyword of that portal. Neither: every
// due keyword.
type CrawlRequest struct {
	Keyword    string `json:"keyword"`
	PortalName string `json:"portalName"`
}

// Summary aggregates one crawl run. Failures are reported as messages.
type Summary struct {
	RunID      string         `json:"runId"`
	Keywords   int            `json:"keywords"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Pages      int            `json:"pages"`
	NewJobs    int            `json:"newJobs"`
	Duplicates int            `json:"duplicates"`
	Filtered   int            `json:"filtered"`
	RowErrors  int            `json:"rowErrors"`
	Sync       syncer.Summary `json:"sync"`
	Messages   []string       `json:"messages,omitempty"`
}

// Crawler fetches portal search pages for registered keywords and feeds them
// through ingestion and sync.
type Crawler struct {
	keywords  model.KeywordStore
	raws      model.RawResponseStore
	adapters  AdapterLookup
	processor Processor
	syncer    Syncer
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a crawler. sy may be nil to leave new rows for a later sync pass.
func New(
	keywords model.KeywordStore,
	raws model.RawResponseStore,
	adapters AdapterLookup,
	processor Processor,
	sy Syncer,
	cfg Config,
	logger *slog.Logger,
) *Crawler {
	return &Crawler{
		keywords:  keywords,
		raws:      raws,
		adapters:  adapters,
		processor: processor,
		syncer:    sy,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		logger:    logger,
	}
}

// CrawlDue crawls every active keyword whose last crawl is older than the
// recrawl threshold, one keyword at a time.
func (c *Crawler) CrawlDue(ctx context.Context) (Summary, error) {
	due, err := c.keywords.DueKeywords(ctx, c.cfg.RecrawlAfter, c.now())
	if err != nil {
		return Summary{}, fmt.Errorf("listing due keywords: %w", err)
	}
	return c.crawl(ctx, due), nil
}

// CrawlNow crawls what req selects regardless of when it was last crawled,
// except the empty request which crawls due keywords.
func (c *Crawler) CrawlNow(ctx context.Context, req CrawlRequest) (Summary, error) {
	switch {
	case req.Keyword != "" && req.PortalName != "":
		kw, err := c.keywords.GetKeyword(ctx, req.Keyword, req.PortalName)
		if errors.Is(err, model.ErrNotFound) {
			return Summary{}, fmt.Errorf("%q on %s: %w", req.Keyword, req.PortalName, model.ErrKeywordNotConfigured)
		}
		if err != nil {
			return Summary{}, err
		}
		if !kw.IsActive {
			return Summary{}, fmt.Errorf("%q on %s is disabled: %w", req.Keyword, req.PortalName, model.ErrKeywordNotConfigured)
		}
		return c.crawl(ctx, []model.CrawlKeyword{kw}), nil

	case req.PortalName != "":
		all, err := c.keywords.ListKeywords(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("listing keywords: %w", err)
		}
		var selected []model.CrawlKeyword
		for _, kw := range all {
			if kw.IsActive && kw.PortalName == req.PortalName {
				selected = append(selected, kw)
			}
		}
		if len(selected) == 0 {
			return Summary{}, fmt.Errorf("no active keywords for %s: %w", req.PortalName, model.ErrKeywordNotConfigured)
		}
		return c.crawl(ctx, selected), nil

	case req.Keyword != "":
		return Summary{}, errors.New("portalName is required when keyword is set")

	default:
		return c.CrawlDue(ctx)
	}
}

func (c *Crawler) crawl(ctx context.Context, keywords []model.CrawlKeyword) Summary {
	sum := Summary{RunID: uuid.NewString()}
	log := c.logger.With("run_id", sum.RunID)
	log.Info("crawl started", "keywords", len(keywords))

	for _, kw := range keywords {
		if err := ctx.Err(); err != nil {
			sum.Messages = append(sum.Messages, "cancelled: "+err.Error())
			break
		}
		sum.Keywords++

		kr, err := c.crawlKeyword(ctx, sum.RunID, kw)
		sum.Pages += kr.pages
		sum.NewJobs += len(kr.newJobs)
		sum.Duplicates += kr.duplicates
		sum.Filtered += kr.filtered
		sum.RowErrors += kr.rowErrors
		sum.Messages = append(sum.Messages, kr.messages...)
		if err != nil {
			sum.Failed++
			sum.Messages = append(sum.Messages, fmt.Sprintf("%s/%s: %v", kw.PortalName, kw.Keyword, err))
			log.Error("keyword crawl failed", "portal", kw.PortalName, "keyword", kw.Keyword, "error", err)
		} else {
			sum.Succeeded++
		}

		if c.syncer != nil && len(kr.newJobs) > 0 {
			ss, err := c.syncer.SyncRows(ctx, kr.newJobs)
			addSync(&sum.Sync, ss)
			if err != nil {
				sum.Messages = append(sum.Messages, "sync interrupted: "+err.Error())
			}
		}
	}

	log.Info("crawl finished",
		"keywords", sum.Keywords,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"pages", sum.Pages,
		"new_jobs", sum.NewJobs,
		"duplicates", sum.Duplicates,
	)
	return sum
}

func addSync(dst *syncer.Summary, s syncer.Summary) {
	dst.Total += s.Total
	dst.Created += s.Created
	dst.Merged += s.Merged
	dst.AlreadyExists += s.AlreadyExists
	dst.TagFailed += s.TagFailed
	dst.Errors += s.Errors
}
