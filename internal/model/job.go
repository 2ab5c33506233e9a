package model

import (
	"context"
	"time"
)

// CrawlKeyword is one unit of crawl work: a search keyword on a single portal.
type CrawlKeyword struct {
	ID              int64
	Keyword         string
	PortalName      string
	PortalURL       string // optional base URL override for this keyword
	IsActive        bool
	LastCrawledDate *time.Time // nil until the first successful fetch
	CreatedAt       time.Time
}

// DueAt reports whether the keyword should be crawled at now given the recrawl threshold.
func (k CrawlKeyword) DueAt(now time.Time, threshold time.Duration) bool {
	if !k.IsActive {
		return false
	}
	if k.LastCrawledDate == nil {
		return true
	}
	return !k.LastCrawledDate.After(now.Add(-threshold))
}

// RawResponse is the unmodified payload returned by a portal for one request.
type RawResponse struct {
	ID                int64
	RunID             string // shared by every response of one crawl run
	PortalName        string
	Keyword           string
	RawPayload        []byte
	APIURL            string
	HTTPStatusCode    int
	ResponseSizeBytes int
	ProcessingStatus  ProcessingStatus
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ExternalJobDetail is the portal-agnostic record extracted from a raw response.
// (PortalJobID, PortalName) is its natural key.
type ExternalJobDetail struct {
	ID                 int64
	PortalJobID        string
	PortalName         string
	JobTitle           string
	CompanyName        string
	CompanyID          int64 // set once tagged
	DesignationID      int64 // set once tagged
	Locations          []string
	MinExperience      int
	MaxExperience      int
	MinSalary          float64
	MaxSalary          float64
	Description        string
	Skills             []string
	Industries         []string
	JobURL             string
	PostedDate         *time.Time
	RawResponseID      int64
	IsSyncedToJobTable bool
	SyncError          string // tagging failure reason retained after sync
	CreatedAt          time.Time
}

// CanonicalJob is the deduplicated internal job posting.
type CanonicalJob struct {
	ID            int64
	Title         string
	CompanyID     int64
	CompanyName   string
	DesignationID int64
	City          string
	MinExperience int
	MaxExperience int
	MinSalary     float64
	MaxSalary     float64
	Description   string
	OpeningCount  int
	Active        bool
	PortalJobID   string // external job that created the row
	PortalName    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PageRequest selects one page of portal search results.
type PageRequest struct {
	Start int
	Limit int
}

// TagResult is the outcome of resolving an external job's free-text fields.
type TagResult struct {
	CompanyID     int64
	DesignationID int64
	City          string
	Err           error
}

// SyncOutcome names the terminal branch taken for one external job.
type SyncOutcome string

const (
	OutcomeCreated       SyncOutcome = "created"
	OutcomeMerged        SyncOutcome = "merged"
	OutcomeAlreadyExists SyncOutcome = "already_exists"
	OutcomeTagFailed     SyncOutcome = "tag_failed"
	OutcomeError         SyncOutcome = "error"
)

// SyncResult is returned by the merge engine for one external job.
type SyncResult struct {
	Success bool
	Outcome SyncOutcome
	Message string
	JobID   int64 // canonical job id, zero when none
}

// SyncEvent is published after an external job reaches a terminal branch.
type SyncEvent struct {
	ExternalJobID  int64
	PortalName     string
	PortalJobID    string
	Outcome        SyncOutcome
	CanonicalJobID int64
	Message        string
	At             time.Time
}

// EntityKind distinguishes the entity directories used for tagging.
type EntityKind string

const (
	EntityCompany     EntityKind = "company"
	EntityDesignation EntityKind = "designation"
	EntityCity        EntityKind = "city"
)

// Entity is a canonical company, designation or city.
type Entity struct {
	ID   int64
	Kind EntityKind
	Name string
}

// KeywordStore persists the crawl keyword registry.
type KeywordStore interface {
	RegisterKeyword(ctx context.Context, keyword, portal, portalURL string) (CrawlKeyword, error)
	GetKeyword(ctx context.Context, keyword, portal string) (CrawlKeyword, error)
	ListKeywords(ctx context.Context) ([]CrawlKeyword, error)
	DueKeywords(ctx context.Context, threshold time.Duration, now time.Time) ([]CrawlKeyword, error)
	RecordCrawl(ctx context.Context, id int64, at time.Time) error
	SetKeywordActive(ctx context.Context, id int64, active bool) error
}

// RawResponseStore persists raw portal payloads and their processing status.
type RawResponseStore interface {
	PersistRaw(ctx context.Context, r RawResponse) (RawResponse, error)
	GetRaw(ctx context.Context, id int64) (RawResponse, error)
	ListRawByStatus(ctx context.Context, status ProcessingStatus) ([]RawResponse, error)
	// TransitionRaw applies an automatic transition; anything else is ErrInvalidTransition.
	TransitionRaw(ctx context.Context, id int64, from, to ProcessingStatus, errMsg string) error
	// ReopenRaw moves a terminal row back to PROCESSING for an explicit reprocess.
	ReopenRaw(ctx context.Context, id int64) (RawResponse, error)
	RecoverStale(ctx context.Context) (int64, error)
	RawStats(ctx context.Context) (map[ProcessingStatus]int, error)
}

// ExternalJobStore persists normalized external job rows.
type ExternalJobStore interface {
	ExternalJobExists(ctx context.Context, portalName, portalJobID string) (bool, error)
	// InsertExternalJob returns ErrDuplicate when the natural key already exists.
	InsertExternalJob(ctx context.Context, j ExternalJobDetail) (ExternalJobDetail, error)
	ListUnsynced(ctx context.Context, limit int) ([]ExternalJobDetail, error)
	ListExternalJobs(ctx context.Context, limit int) ([]ExternalJobDetail, error)
	SetTags(ctx context.Context, id, companyID, designationID int64) error
	// MarkSynced flips the synced flag once; later calls are no-ops.
	MarkSynced(ctx context.Context, id int64, syncErr string) error
}

// CanonicalJobRepository is the persistence capability for canonical jobs.
type CanonicalJobRepository interface {
	// FindByPortalJob returns the canonical job linked to the external job, or
	// nil when none is linked.
	FindByPortalJob(ctx context.Context, portalName, portalJobID string) (*CanonicalJob, error)
	// FindMatching returns active jobs with the same designation, company and city
	// created at or after since, most recently created first.
	FindMatching(ctx context.Context, designationID, companyID int64, city string, since time.Time) ([]CanonicalJob, error)
	// MergeOpening links the external job to canonicalID and increments its opening
	// count atomically. Returns ErrDuplicate if the external job is already linked.
	MergeOpening(ctx context.Context, canonicalID int64, portalName, portalJobID string) (CanonicalJob, error)
	// Create inserts a new canonical job and its source link. Returns ErrDuplicate if
	// the external job is already linked.
	Create(ctx context.Context, j CanonicalJob) (CanonicalJob, error)
}

// EntityResolver resolves a free-text name to a canonical entity. Returns
// ErrNotFound when the name is unknown.
type EntityResolver interface {
	Resolve(ctx context.Context, kind EntityKind, name string) (Entity, error)
}

// Notifier receives sync events. Failures are logged by callers, never fatal.
type Notifier interface {
	Notify(ctx context.Context, ev SyncEvent) error
}
