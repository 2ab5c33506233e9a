package tagger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amishk599/jobsync/internal/model"
)

// Tagger resolves the free-text company, designation and location of an
// external job into entity ids.
type Tagger struct {
	resolver model.EntityResolver
	logger   *slog.Logger
}

// New creates a tagger over resolver.
func New(resolver model.EntityResolver, logger *slog.Logger) *Tagger {
	return &Tagger{resolver: resolver, logger: logger}
}

// Resolve tags job. Result.Err is set when the company or designation cannot
// be resolved or the resolver fails; the caller then skips reconciliation.
// An unknown city is not an error: the cleaned location text is used.
func (t *Tagger) Resolve(ctx context.Context, job model.ExternalJobDetail) model.TagResult {
	var res model.TagResult

	if job.CompanyName == "" {
		res.Err = errors.New("company name missing")
		return res
	}
	company, err := t.resolver.Resolve(ctx, model.EntityCompany, job.CompanyName)
	if err != nil {
		res.Err = fmt.Errorf("company %q: %w", job.CompanyName, err)
		return res
	}
	res.CompanyID = company.ID

	designation, err := t.resolveDesignation(ctx, job.JobTitle)
	if err != nil {
		res.Err = fmt.Errorf("designation %q: %w", job.JobTitle, err)
		return res
	}
	res.DesignationID = designation.ID

	city, err := t.resolveCity(ctx, job.Locations)
	if err != nil {
		res.Err = fmt.Errorf("city: %w", err)
		return res
	}
	res.City = city

	t.logger.Debug("tagged external job",
		"portal", job.PortalName,
		"portal_job_id", job.PortalJobID,
		"company_id", res.CompanyID,
		"designation_id", res.DesignationID,
		"city", res.City,
	)
	return res
}

func (t *Tagger) resolveDesignation(ctx context.Context, title string) (model.Entity, error) {
	e, err := t.resolver.Resolve(ctx, model.EntityDesignation, title)
	if !errors.Is(err, model.ErrNotFound) {
		return e, err
	}
	simple := SimplifyTitle(title)
	if simple == "" || simple == title {
		return model.Entity{}, err
	}
	return t.resolver.Resolve(ctx, model.EntityDesignation, simple)
}

func (t *Tagger) resolveCity(ctx context.Context, locations []string) (string, error) {
	city := CityOf(locations)
	if city == "" {
		return "", nil
	}
	e, err := t.resolver.Resolve(ctx, model.EntityCity, city)
	if errors.Is(err, model.ErrNotFound) {
		return city, nil
	}
	if err != nil {
		return "", err
	}
	return e.Name, nil
}
