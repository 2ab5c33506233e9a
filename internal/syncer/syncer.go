package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobsync/internal/model"
)

// DefaultWorkers bounds concurrent row syncs when none is configured.
const DefaultWorkers = 4

// Tagger resolves an external job's free-text fields.
type Tagger interface {
	Resolve(ctx context.Context, job model.ExternalJobDetail) model.TagResult
}

// Reconciler merges a tagged job into the canonical table.
type Reconciler interface {
	Reconcile(ctx context.Context, job model.ExternalJobDetail, tag model.TagResult) model.SyncResult
}

// Summary counts the outcome of one sync pass.
type Summary struct {
	Total         int `json:"total"`
	Created       int `json:"created"`
	Merged        int `json:"merged"`
	AlreadyExists int `json:"alreadyExists"`
	TagFailed     int `json:"tagFailed"`
	Errors        int `json:"errors"` // rows left unsynced for the next pass
}

// Synced is the number of rows marked synced in the pass.
func (s Summary) Synced() int {
	return s.Created + s.Merged + s.AlreadyExists + s.TagFailed
}

func (s *Summary) add(o model.SyncOutcome) {
	s.Total++
	switch o {
	case model.OutcomeCreated:
		s.Created++
	case model.OutcomeMerged:
		s.Merged++
	case model.OutcomeAlreadyExists:
		s.AlreadyExists++
	case model.OutcomeTagFailed:
		s.TagFailed++
	default:
		s.Errors++
	}
}

// Syncer drives unsynced external jobs through tagging and reconciliation.
type Syncer struct {
	jobs      model.ExternalJobStore
	tagger    Tagger
	engine    Reconciler
	notifiers []model.Notifier
	workers   int
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Syncer. workers <= 0 means DefaultWorkers. Every notifier
// receives one event per reconciled job.
func New(jobs model.ExternalJobStore, tagger Tagger, engine Reconciler, workers int, logger *slog.Logger, notifiers ...model.Notifier) *Syncer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Syncer{
		jobs:      jobs,
		tagger:    tagger,
		engine:    engine,
		notifiers: notifiers,
		workers:   workers,
		now:       time.Now,
		logger:    logger,
	}
}

// SyncUnsynced syncs every external job not yet marked synced.
func (s *Syncer) SyncUnsynced(ctx context.Context) (Summary, error) {
	rows, err := s.jobs.ListUnsynced(ctx, -1)
	if err != nil {
		return Summary{}, fmt.Errorf("listing unsynced jobs: %w", err)
	}
	return s.SyncRows(ctx, rows)
}

// SyncRows syncs rows with at most the configured number of workers. Row
// failures are counted, not returned; the error is non-nil only when ctx is
// cancelled before every row was attempted.
func (s *Syncer) SyncRows(ctx context.Context, rows []model.ExternalJobDetail) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)
	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	var cancelled error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		g.Go(func() error {
			outcome := s.syncOne(ctx, row)
			mu.Lock()
			sum.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if sum.Total > 0 {
		s.logger.Info("sync pass finished",
			"total", sum.Total,
			"created", sum.Created,
			"merged", sum.Merged,
			"already_exists", sum.AlreadyExists,
			"tag_failed", sum.TagFailed,
			"errors", sum.Errors,
		)
	}
	return sum, cancelled
}

// syncOne runs tag → reconcile → mark for one row. Storage failures leave the
// row unsynced so the next pass retries it.
func (s *Syncer) syncOne(ctx context.Context, job model.ExternalJobDetail) model.SyncOutcome {
	log := s.logger.With("external_job_id", job.ID, "portal", job.PortalName, "portal_job_id", job.PortalJobID)

	tag := s.tagger.Resolve(ctx, job)
	if tag.Err != nil {
		if err := s.jobs.MarkSynced(ctx, job.ID, tag.Err.Error()); err != nil {
			log.Error("marking untaggable job synced failed", "error", err)
			return model.OutcomeError
		}
		log.Warn("tagging failed", "error", tag.Err)
		s.notify(ctx, job, model.SyncResult{Outcome: model.OutcomeTagFailed, Message: tag.Err.Error()})
		return model.OutcomeTagFailed
	}

	if err := s.jobs.SetTags(ctx, job.ID, tag.CompanyID, tag.DesignationID); err != nil {
		log.Error("storing tags failed", "error", err)
		return model.OutcomeError
	}

	res := s.engine.Reconcile(ctx, job, tag)
	if !res.Success {
		log.Error("reconcile failed", "outcome", res.Outcome, "message", res.Message)
		return model.OutcomeError
	}

	if err := s.jobs.MarkSynced(ctx, job.ID, ""); err != nil {
		log.Error("marking job synced failed", "error", err)
		return model.OutcomeError
	}
	s.notify(ctx, job, res)
	return res.Outcome
}

func (s *Syncer) notify(ctx context.Context, job model.ExternalJobDetail, res model.SyncResult) {
	ev := model.SyncEvent{
		ExternalJobID:  job.ID,
		PortalName:     job.PortalName,
		PortalJobID:    job.PortalJobID,
		Outcome:        res.Outcome,
		CanonicalJobID: res.JobID,
		Message:        res.Message,
		At:             s.now(),
	}
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			s.logger.Warn("notifier failed", "outcome", ev.Outcome, "error", err)
		}
	}
}
