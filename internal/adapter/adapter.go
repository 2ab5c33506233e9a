package adapter

import (
	"context"
	"net/http"

	"github.com/amishk599/jobsync/internal/model"
)

// Adapter is the per-portal strategy: it knows how to build a search request,
// which headers the portal expects, and how to read the portal's JSON shape.
type Adapter interface {
	Name() string
	CanHandle(portal string) bool
	BuildRequestURL(kw model.CrawlKeyword, req model.PageRequest) (string, error)
	Headers() http.Header
	Fetch(ctx context.Context, url string, h http.Header) (FetchResult, error)
	Parse(raw []byte) (ParseResult, error)
}

// FetchResult is a fully read portal response.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
}

// ParseResult holds the rows extracted from one payload. Rows that could not be
// read are reported in RowErrors and left out of Jobs.
type ParseResult struct {
	Jobs      []model.ExternalJobDetail
	RowErrors []error
}

// Options configures a portal adapter.
type Options struct {
	BaseURL   string // overrides the portal's default search endpoint
	UserAgent string // overrides the default browser user agent
	Country   string
}
