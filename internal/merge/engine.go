package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/retry"
)

// DefaultLookback is how far back a canonical job may absorb a new opening.
const DefaultLookback = 30 * 24 * time.Hour

// Engine reconciles tagged external jobs against canonical jobs: link once,
// merge into a recent equivalent job, or create a new one.
type Engine struct {
	repo     model.CanonicalJobRepository
	lookback time.Duration
	now      func() time.Time
	race     retry.Policy
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLookback overrides DefaultLookback.
func WithLookback(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookback = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine over repo with a 30-day lookback unless overridden.
func NewEngine(repo model.CanonicalJobRepository, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		lookback: DefaultLookback,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(e)
	}
	// A lost race on the source link means another writer reconciled the
	// same external job; one more pass sees its link.
	e.race = retry.Policy{MaxRetries: 1, Retryable: retry.On(model.ErrDuplicate), Logger: logger}
	return e
}

// Reconcile decides the fate of one external job. tag must carry no error;
// the caller handles tagging failures.
func (e *Engine) Reconcile(ctx context.Context, job model.ExternalJobDetail, tag model.TagResult) model.SyncResult {
	if tag.Err != nil {
		return model.SyncResult{Outcome: model.OutcomeTagFailed, Message: tag.Err.Error()}
	}

	var res model.SyncResult
	err := e.race.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = e.reconcile(ctx, job, tag)
		return err
	})
	if err != nil {
		e.logger.Error("reconcile failed",
			"portal", job.PortalName,
			"portal_job_id", job.PortalJobID,
			"error", err,
		)
		return model.SyncResult{Outcome: model.OutcomeError, Message: err.Error()}
	}

	e.logger.Info("reconciled external job",
		"portal", job.PortalName,
		"portal_job_id", job.PortalJobID,
		"outcome", res.Outcome,
		"job_id", res.JobID,
	)
	return res
}

func (e *Engine) reconcile(ctx context.Context, job model.ExternalJobDetail, tag model.TagResult) (model.SyncResult, error) {
	linked, err := e.repo.FindByPortalJob(ctx, job.PortalName, job.PortalJobID)
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("looking up source link: %w", err)
	}
	if linked != nil {
		return model.SyncResult{
			Success: true,
			Outcome: model.OutcomeAlreadyExists,
			Message: "job already exists",
			JobID:   linked.ID,
		}, nil
	}

	now := e.now()
	candidates, err := e.repo.FindMatching(ctx, tag.DesignationID, tag.CompanyID, tag.City, now.Add(-e.lookback))
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("finding matching jobs: %w", err)
	}

	if len(candidates) > 0 {
		merged, err := e.repo.MergeOpening(ctx, candidates[0].ID, job.PortalName, job.PortalJobID)
		if err != nil {
			return model.SyncResult{}, fmt.Errorf("merging into job %d: %w", candidates[0].ID, err)
		}
		return model.SyncResult{
			Success: true,
			Outcome: model.OutcomeMerged,
			Message: "duplicate, opening count updated",
			JobID:   merged.ID,
		}, nil
	}

	created, err := e.repo.Create(ctx, canonicalFrom(job, tag, now))
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("creating job: %w", err)
	}
	return model.SyncResult{
		Success: true,
		Outcome: model.OutcomeCreated,
		Message: "new job created",
		JobID:   created.ID,
	}, nil
}

func canonicalFrom(job model.ExternalJobDetail, tag model.TagResult, now time.Time) model.CanonicalJob {
	return model.CanonicalJob{
		Title:         job.JobTitle,
		CompanyID:     tag.CompanyID,
		CompanyName:   job.CompanyName,
		DesignationID: tag.DesignationID,
		City:          tag.City,
		MinExperience: job.MinExperience,
		MaxExperience: job.MaxExperience,
		MinSalary:     job.MinSalary,
		MaxSalary:     job.MaxSalary,
		Description:   job.Description,
		OpeningCount:  1,
		Active:        true,
		PortalJobID:   job.PortalJobID,
		PortalName:    job.PortalName,
		CreatedAt:     now,
	}
}
