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
	linkedinName     = "linkedin"
	linkedinBaseURL  = "https://www.linkedin.com/jobs-guest/api/jobs/search"
	linkedinSiteURL  = "https://www.linkedin.com"
	linkedinLocation = "India"
)

// LinkedInAdapter searches the LinkedIn guest jobs API.
type LinkedInAdapter struct {
	baseURL   string
	location  string
	userAgent string
	client    *http.Client
}

// NewLinkedInAdapter creates a LinkedIn guest-search adapter. Empty options
// fall back to the public endpoint and an India location.
func NewLinkedInAdapter(opts Options, client *http.Client) *LinkedInAdapter {
	a := &LinkedInAdapter{
		baseURL:   opts.BaseURL,
		location:  opts.Country,
		userAgent: opts.UserAgent,
		client:    client,
	}
	if a.baseURL == "" {
		a.baseURL = linkedinBaseURL
	}
	if a.location == "" {
		a.location = linkedinLocation
	}
	return a
}

// Name returns "linkedin".
func (a *LinkedInAdapter) Name() string { return linkedinName }

// CanHandle matches the portal name case-insensitively.
func (a *LinkedInAdapter) CanHandle(portal string) bool {
	return strings.EqualFold(strings.TrimSpace(portal), linkedinName)
}

// BuildRequestURL builds a paged search URL for kw, preferring the keyword's
// own portal URL over the configured base.
func (a *LinkedInAdapter) BuildRequestURL(kw model.CrawlKeyword, req model.PageRequest) (string, error) {
	if strings.TrimSpace(kw.Keyword) == "" {
		return "", errors.New("linkedin: empty keyword")
	}
	base := a.baseURL
	if kw.PortalURL != "" {
		base = kw.PortalURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("linkedin: parsing base url: %w", err)
	}
	q := u.Query()
	q.Set("keywords", kw.Keyword)
	q.Set("start", strconv.Itoa(req.Start))
	q.Set("count", strconv.Itoa(req.Limit))
	q.Set("location", a.location)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Headers returns browser headers marked as an XHR request.
func (a *LinkedInAdapter) Headers() http.Header {
	h := browserHeaders(a.userAgent, linkedinSiteURL+"/jobs/search/")
	h.Set("X-Requested-With", "XMLHttpRequest")
	return h
}

// Fetch GETs url and returns the body unmodified.
func (a *LinkedInAdapter) Fetch(ctx context.Context, url string, h http.Header) (FetchResult, error) {
	return doGET(ctx, a.client, linkedinName, url, h)
}

// Parse reads elements[] into job details.
func (a *LinkedInAdapter) Parse(raw []byte) (ParseResult, error) {
	root, err := decodePayload(raw)
	if err != nil {
		return ParseResult{}, fmt.Errorf("linkedin parse: %w", err)
	}
	if _, ok := root.(map[string]any); !ok {
		return ParseResult{}, errors.New("linkedin parse: payload is not a JSON object")
	}

	items, _ := arrayAt(root, "elements")

	var res ParseResult
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			res.RowErrors = append(res.RowErrors, fmt.Errorf("linkedin row %d: not an object", i))
			continue
		}
		job, err := a.parseRow(row)
		if err != nil {
			res.RowErrors = append(res.RowErrors, fmt.Errorf("linkedin row %d: %w", i, err))
			continue
		}
		res.Jobs = append(res.Jobs, job)
	}
	return res, nil
}

func (a *LinkedInAdapter) parseRow(row map[string]any) (model.ExternalJobDetail, error) {
	id := stringField(row, "jobPostingId")
	if id == "" {
		// urn:li:jobPosting:3812345678
		urn := stringField(row, "entityUrn", "trackingUrn")
		if i := strings.LastIndex(urn, ":"); i >= 0 {
			id = urn[i+1:]
		}
	}
	if id == "" {
		return model.ExternalJobDetail{}, errors.New("missing jobPostingId")
	}
	title := extractText(stringField(row, "title"))
	if title == "" {
		return model.ExternalJobDetail{}, errors.New("missing title")
	}

	var locations []string
	if loc := stringField(row, "formattedLocation"); loc != "" {
		locations = []string{loc}
	} else {
		locations = stringListField(row, "locations")
	}

	minExp, maxExp := orderRange(
		intField(row, "minExperience", "experienceMin"),
		intField(row, "maxExperience", "experienceMax"),
	)

	var minSal, maxSal float64
	if comp, ok := row["salary"].(map[string]any); ok {
		minSal, maxSal = orderRange(decimalField(comp, "min", "minimum"), decimalField(comp, "max", "maximum"))
	}

	jobURL := stringField(row, "jobUrl", "applyUrl")
	if jobURL == "" {
		jobURL = linkedinSiteURL + "/jobs/view/" + id
	}

	return model.ExternalJobDetail{
		PortalJobID:   id,
		PortalName:    linkedinName,
		JobTitle:      title,
		CompanyName:   extractText(stringField(row, "companyDetails", "companyName", "company")),
		Locations:     locations,
		MinExperience: minExp,
		MaxExperience: maxExp,
		MinSalary:     minSal,
		MaxSalary:     maxSal,
		Description:   extractText(stringField(row, "description")),
		Skills:        stringListField(row, "skills"),
		Industries:    stringListField(row, "industries"),
		JobURL:        jobURL,
		PostedDate:    timeField(row, "listedAt", "postedAt"),
	}, nil
}
