package filter

import (
	"strings"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

// IngestFilter decides which parsed postings are stored. Matching is
// case-insensitive substring matching. Empty lists and a zero MaxAge pass all.
type IngestFilter struct {
	excludeTitles []string
	locations     []string
	maxAge        time.Duration
	now           func() time.Time
}

// NewIngestFilter returns a filter that drops postings whose title contains an
// excluded keyword, whose locations match none of locations, or that were
// posted more than maxAge ago.
func NewIngestFilter(excludeTitles, locations []string, maxAge time.Duration) *IngestFilter {
	return &IngestFilter{
		excludeTitles: lowerAll(excludeTitles),
		locations:     lowerAll(locations),
		maxAge:        maxAge,
		now:           time.Now,
	}
}

// Allow reports whether job should be stored, with the reason when it is not.
func (f *IngestFilter) Allow(job model.ExternalJobDetail) (bool, string) {
	if f == nil {
		return true, ""
	}

	title := strings.ToLower(job.JobTitle)
	for _, kw := range f.excludeTitles {
		if strings.Contains(title, kw) {
			return false, "title excluded by " + kw
		}
	}

	if len(f.locations) > 0 && !anyLocationMatches(job.Locations, f.locations) {
		return false, "location not allowed"
	}

	if f.maxAge > 0 && job.PostedDate != nil && job.PostedDate.Before(f.now().Add(-f.maxAge)) {
		return false, "posting too old"
	}

	return true, ""
}

func anyLocationMatches(jobLocations, allowed []string) bool {
	for _, loc := range jobLocations {
		l := strings.ToLower(loc)
		for _, a := range allowed {
			if strings.Contains(l, a) {
				return true
			}
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
