package crawler

import (
	"context"
	"fmt"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/model"
)

type keywordResult struct {
	pages      int
	newJobs    []model.ExternalJobDetail
	duplicates int
	filtered   int
	rowErrors  int
	messages   []string
}

// crawlKeyword runs one keyword through the pipeline page by page:
// build URL → fetch → persist raw → process. Any fetch or storage failure
// aborts the keyword and leaves its last crawl date untouched, so it stays due.
func (c *Crawler) crawlKeyword(ctx context.Context, runID string, kw model.CrawlKeyword) (keywordResult, error) {
	var kr keywordResult

	a, err := c.adapters.Lookup(kw.PortalName)
	if err != nil {
		return kr, err
	}

	for page := 0; page < c.cfg.Pages; page++ {
		url, err := a.BuildRequestURL(kw, model.PageRequest{Start: page * c.cfg.PageSize, Limit: c.cfg.PageSize})
		if err != nil {
			return kr, fmt.Errorf("building request: %w", err)
		}

		fr, err := c.fetch(ctx, a, url)
		if err != nil {
			return kr, fmt.Errorf("fetching page %d: %w", page+1, err)
		}
		kr.pages++

		raw, err := c.raws.PersistRaw(ctx, model.RawResponse{
			RunID:             runID,
			PortalName:        a.Name(),
			Keyword:           kw.Keyword,
			RawPayload:        fr.Body,
			APIURL:            url,
			HTTPStatusCode:    fr.StatusCode,
			ResponseSizeBytes: len(fr.Body),
		})
		if err != nil {
			return kr, err
		}

		res, err := c.processor.Process(ctx, raw)
		kr.newJobs = append(kr.newJobs, res.NewJobs...)
		kr.duplicates += res.Duplicates
		kr.filtered += res.Filtered
		kr.rowErrors += res.RowErrors
		if err != nil {
			return kr, fmt.Errorf("processing raw response %d: %w", raw.ID, err)
		}
		if res.Status == model.StatusFailed {
			// The payload is kept for reprocessing; later pages would likely fail the same way.
			kr.messages = append(kr.messages, fmt.Sprintf("%s/%s page %d: %s", a.Name(), kw.Keyword, page+1, res.Error))
			break
		}

		rows := len(res.NewJobs) + res.Duplicates + res.Filtered + res.RowErrors
		if rows < c.cfg.PageSize {
			break
		}
	}

	if err := c.keywords.RecordCrawl(ctx, kw.ID, c.now()); err != nil {
		return kr, fmt.Errorf("recording crawl: %w", err)
	}

	c.logger.Info("crawled keyword",
		"portal", a.Name(),
		"keyword", kw.Keyword,
		"pages", kr.pages,
		"new", len(kr.newJobs),
		"duplicates", kr.duplicates,
		"filtered", kr.filtered,
	)
	return kr, nil
}

// fetch performs one page fetch under the request timeout, retrying
// transient failures.
func (c *Crawler) fetch(ctx context.Context, a adapter.Adapter, url string) (adapter.FetchResult, error) {
	var fr adapter.FetchResult
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		fctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		var err error
		fr, err = a.Fetch(fctx, url, a.Headers())
		return err
	})
	return fr, err
}
