package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/amishk599/jobsync/internal/model"
)

const (
	founditName      = "foundit"
	founditBaseURL   = "https://www.foundit.in/middleware/jobsearch"
	founditSiteURL   = "https://www.foundit.in"
	founditCountries = "India"
)

// FounditAdapter searches the Foundit (formerly Monster India) job search middleware.
type FounditAdapter struct {
	baseURL   string
	countries string
	userAgent string
	client    *http.Client
}

// NewFounditAdapter creates a Foundit adapter. Empty options fall back to the
// public endpoint.
func NewFounditAdapter(opts Options, client *http.Client) *FounditAdapter {
	a := &FounditAdapter{
		baseURL:   opts.BaseURL,
		countries: opts.Country,
		userAgent: opts.UserAgent,
		client:    client,
	}
	if a.baseURL == "" {
		a.baseURL = founditBaseURL
	}
	if a.countries == "" {
		a.countries = founditCountries
	}
	return a
}

// Name returns "foundit".
func (a *FounditAdapter) Name() string { return founditName }

// CanHandle accepts "foundit" and its former name "monster".
func (a *FounditAdapter) CanHandle(portal string) bool {
	p := strings.ToLower(strings.TrimSpace(portal))
	return p == founditName || p == "monster"
}

// BuildRequestURL builds a paged search URL for kw. A keyword portal URL
// replaces the base URL.
func (a *FounditAdapter) BuildRequestURL(kw model.CrawlKeyword, req model.PageRequest) (string, error) {
	if strings.TrimSpace(kw.Keyword) == "" {
		return "", errors.New("foundit: empty keyword")
	}
	base := a.baseURL
	if kw.PortalURL != "" {
		base = kw.PortalURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("foundit: parsing base url: %w", err)
	}
	q := u.Query()
	q.Set("query", kw.Keyword)
	q.Set("start", strconv.Itoa(req.Start))
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("countries", a.countries)
	q.Set("queryDerived", "true")
	q.Set("variantName", "DEFAULT")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Headers returns browser headers with the site origin set.
func (a *FounditAdapter) Headers() http.Header {
	h := browserHeaders(a.userAgent, founditSiteURL+"/srp/results")
	h.Set("Origin", founditSiteURL)
	return h
}

// Fetch GETs url and returns the body unmodified.
func (a *FounditAdapter) Fetch(ctx context.Context, url string, h http.Header) (FetchResult, error) {
	return doGET(ctx, a.client, founditName, url, h)
}

// Parse reads jobSearchResponse.data[] (or a bare data[]) into job details.
func (a *FounditAdapter) Parse(raw []byte) (ParseResult, error) {
	root, err := decodePayload(raw)
	if err != nil {
		return ParseResult{}, fmt.Errorf("foundit parse: %w", err)
	}
	if _, ok := root.(map[string]any); !ok {
		return ParseResult{}, errors.New("foundit parse: payload is not a JSON object")
	}

	items, ok := arrayAt(root, "jobSearchResponse", "data")
	if !ok {
		items, _ = arrayAt(root, "data")
	}

	var res ParseResult
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			res.RowErrors = append(res.RowErrors, fmt.Errorf("foundit row %d: not an object", i))
			continue
		}
		job, err := a.parseRow(row)
		if err != nil {
			res.RowErrors = append(res.RowErrors, fmt.Errorf("foundit row %d: %w", i, err))
			continue
		}
		res.Jobs = append(res.Jobs, job)
	}
	return res, nil
}

func (a *FounditAdapter) parseRow(row map[string]any) (model.ExternalJobDetail, error) {
	id := stringField(row, "jobId", "id")
	if id == "" {
		return model.ExternalJobDetail{}, errors.New("missing jobId")
	}
	title := extractText(stringField(row, "title", "designation"))
	if title == "" {
		return model.ExternalJobDetail{}, errors.New("missing title")
	}

	minExp, maxExp := orderRange(
		intField(row, "minimumExperience", "minExperience"),
		intField(row, "maximumExperience", "maxExperience"),
	)
	minSal, maxSal := orderRange(
		decimalField(row, "minimumSalary", "minSalary"),
		decimalField(row, "maximumSalary", "maxSalary"),
	)

	jobURL := stringField(row, "seoJdUrl", "jdUrl", "redirectUrl")
	if strings.HasPrefix(jobURL, "/") {
		jobURL = founditSiteURL + jobURL
	}

	return model.ExternalJobDetail{
		PortalJobID:   id,
		PortalName:    founditName,
		JobTitle:      title,
		CompanyName:   extractText(stringField(row, "companyName", "company")),
		Locations:     stringListField(row, "locations", "location"),
		MinExperience: minExp,
		MaxExperience: maxExp,
		MinSalary:     minSal,
		MaxSalary:     maxSal,
		Description:   extractText(stringField(row, "description", "jobDescription")),
		Skills:        stringListField(row, "skills", "itSkills"),
		Industries:    stringListField(row, "industries", "industry"),
		JobURL:        jobURL,
		PostedDate:    timeField(row, "postedAt", "createdAt", "updatedAt"),
	}, nil
}
