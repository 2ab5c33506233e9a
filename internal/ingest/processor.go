package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amishk599/jobsync/internal/adapter"
	"github.com/amishk599/jobsync/internal/model"
)

// AdapterLookup finds the adapter owning a portal's payloads.
type AdapterLookup interface {
	Lookup(portal string) (adapter.Adapter, error)
}

// RowFilter decides which parsed postings are stored.
type RowFilter interface {
	Allow(job model.ExternalJobDetail) (bool, string)
}

// Result summarizes processing of one raw response.
type Result struct {
	RawID      int64
	Status     model.ProcessingStatus
	NewJobs    []model.ExternalJobDetail
	Duplicates int
	Filtered   int
	RowErrors  int
	Error      string // why the payload FAILED, empty otherwise
}

// BatchResult aggregates the results of a reprocess pass.
type BatchResult struct {
	Processed int
	Completed int
	Failed    int
	NewJobs   []model.ExternalJobDetail
}

// Processor turns stored raw responses into external job rows:
// parse → filter → existence check → insert → mark raw COMPLETED or FAILED.
type Processor struct {
	raws     model.RawResponseStore
	jobs     model.ExternalJobStore
	adapters AdapterLookup
	filter   RowFilter
	logger   *slog.Logger
}

// NewProcessor creates a processor. filter may be nil.
func NewProcessor(
	raws model.RawResponseStore,
	jobs model.ExternalJobStore,
	adapters AdapterLookup,
	filter RowFilter,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		raws:     raws,
		jobs:     jobs,
		adapters: adapters,
		filter:   filter,
		logger:   logger,
	}
}

// Process claims a PENDING raw response and processes it.
func (p *Processor) Process(ctx context.Context, raw model.RawResponse) (Result, error) {
	if err := p.raws.TransitionRaw(ctx, raw.ID, model.StatusPending, model.StatusProcessing, ""); err != nil {
		return Result{RawID: raw.ID, Status: raw.ProcessingStatus}, fmt.Errorf("claiming raw response %d: %w", raw.ID, err)
	}
	raw.ProcessingStatus = model.StatusProcessing
	return p.run(ctx, raw)
}

// Reprocess re-runs a COMPLETED or FAILED raw response. Already stored
// postings are skipped, so replay never duplicates rows.
func (p *Processor) Reprocess(ctx context.Context, id int64) (Result, error) {
	raw, err := p.raws.ReopenRaw(ctx, id)
	if err != nil {
		return Result{RawID: id}, fmt.Errorf("reopening raw response %d: %w", id, err)
	}
	return p.run(ctx, raw)
}

// ReprocessPending processes every PENDING raw response independently. A
// failure on one response does not stop the others; cancellation stops
// between responses.
func (p *Processor) ReprocessPending(ctx context.Context) (BatchResult, error) {
	pending, err := p.raws.ListRawByStatus(ctx, model.StatusPending)
	if err != nil {
		return BatchResult{}, fmt.Errorf("listing pending raw responses: %w", err)
	}

	var batch BatchResult
	for _, raw := range pending {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := p.Process(ctx, raw)
		batch.Processed++
		if err != nil {
			batch.Failed++
			p.logger.Error("reprocessing raw response failed", "raw_id", raw.ID, "error", err)
			continue
		}
		switch res.Status {
		case model.StatusCompleted:
			batch.Completed++
		case model.StatusFailed:
			batch.Failed++
		}
		batch.NewJobs = append(batch.NewJobs, res.NewJobs...)
	}

	if len(pending) > 0 {
		p.logger.Info("reprocessed pending raw responses",
			"processed", batch.Processed,
			"completed", batch.Completed,
			"failed", batch.Failed,
			"new_jobs", len(batch.NewJobs),
		)
	}
	return batch, nil
}

// RecoverStale returns responses abandoned in PROCESSING by a crash to PENDING.
func (p *Processor) RecoverStale(ctx context.Context) (int64, error) {
	n, err := p.raws.RecoverStale(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Warn("recovered stale raw responses", "count", n)
	}
	return n, nil
}

// run processes a raw response already in PROCESSING.
func (p *Processor) run(ctx context.Context, raw model.RawResponse) (Result, error) {
	res := Result{RawID: raw.ID, Status: model.StatusProcessing}

	a, err := p.adapters.Lookup(raw.PortalName)
	if err != nil {
		return p.fail(ctx, res, err.Error(), nil)
	}

	parsed, err := a.Parse(raw.RawPayload)
	if err != nil {
		return p.fail(ctx, res, err.Error(), nil)
	}

	res.RowErrors = len(parsed.RowErrors)
	for _, rowErr := range parsed.RowErrors {
		p.logger.Warn("skipping malformed row",
			"raw_id", raw.ID,
			"portal", raw.PortalName,
			"error", rowErr,
		)
	}

	for _, job := range parsed.Jobs {
		job.RawResponseID = raw.ID
		if job.PortalName == "" {
			job.PortalName = a.Name()
		}

		if p.filter != nil {
			if ok, reason := p.filter.Allow(job); !ok {
				res.Filtered++
				p.logger.Debug("filtered posting", "portal_job_id", job.PortalJobID, "reason", reason)
				continue
			}
		}

		exists, err := p.jobs.ExternalJobExists(ctx, job.PortalName, job.PortalJobID)
		if err != nil {
			return p.fail(ctx, res, "storage: "+err.Error(), err)
		}
		if exists {
			res.Duplicates++
			continue
		}

		inserted, err := p.jobs.InsertExternalJob(ctx, job)
		if errors.Is(err, model.ErrDuplicate) {
			res.Duplicates++
			continue
		}
		if err != nil {
			return p.fail(ctx, res, "storage: "+err.Error(), err)
		}
		res.NewJobs = append(res.NewJobs, inserted)
	}

	msg := ""
	if res.RowErrors > 0 {
		msg = fmt.Sprintf("skipped %d malformed rows", res.RowErrors)
	}
	if err := p.raws.TransitionRaw(ctx, raw.ID, model.StatusProcessing, model.StatusCompleted, msg); err != nil {
		return res, fmt.Errorf("completing raw response %d: %w", raw.ID, err)
	}
	res.Status = model.StatusCompleted

	p.logger.Info("processed raw response",
		"raw_id", raw.ID,
		"portal", raw.PortalName,
		"keyword", raw.Keyword,
		"parsed", len(parsed.Jobs),
		"new", len(res.NewJobs),
		"duplicates", res.Duplicates,
		"filtered", res.Filtered,
		"row_errors", res.RowErrors,
	)
	return res, nil
}

// fail marks the response FAILED. A non-nil cause is returned so the caller
// can tell a bad payload from an unavailable database.
func (p *Processor) fail(ctx context.Context, res Result, reason string, cause error) (Result, error) {
	if err := p.raws.TransitionRaw(ctx, res.RawID, model.StatusProcessing, model.StatusFailed, reason); err != nil {
		return res, fmt.Errorf("failing raw response %d: %w", res.RawID, err)
	}
	res.Status = model.StatusFailed
	res.Error = reason
	p.logger.Warn("raw response failed", "raw_id", res.RawID, "error", reason)
	return res, cause
}
