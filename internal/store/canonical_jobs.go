package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

const canonicalColumns = `c.id, c.title, c.company_id, c.company_name, c.designation_id, c.city,
	c.min_experience, c.max_experience, c.min_salary, c.max_salary, c.description, c.opening_count,
	c.active, c.portal_job_id, c.portal_name, c.created_at, c.updated_at`

// CanonicalJobs is the SQLite canonical job repository.
type CanonicalJobs struct {
	s *Store
}

// CanonicalJobs returns the canonical job repository backed by this store.
func (s *Store) CanonicalJobs() *CanonicalJobs {
	return &CanonicalJobs{s: s}
}

// FindByPortalJob returns the canonical job the external job is linked to, or nil.
func (r *CanonicalJobs) FindByPortalJob(ctx context.Context, portalName, portalJobID string) (*model.CanonicalJob, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_jobs c
		 JOIN canonical_job_sources l ON l.canonical_job_id = c.id
		 WHERE l.portal_name = ? AND l.portal_job_id = ?`,
		portalName, portalJobID,
	)
	j, err := scanCanonical(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding canonical job for %s/%s: %w", portalName, portalJobID, err)
	}
	return &j, nil
}

// FindMatching returns active candidates for the dedup key, newest first.
func (r *CanonicalJobs) FindMatching(ctx context.Context, designationID, companyID int64, city string, since time.Time) ([]model.CanonicalJob, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_jobs c
		 WHERE c.designation_id = ? AND c.company_id = ? AND lower(c.city) = lower(?)
		   AND c.active = 1 AND c.created_at >= ?
		 ORDER BY c.created_at DESC, c.id DESC`,
		designationID, companyID, city, toMillis(since),
	)
	if err != nil {
		return nil, fmt.Errorf("finding matching canonical jobs: %w", err)
	}
	defer rows.Close()

	var out []model.CanonicalJob
	for rows.Next() {
		j, err := scanCanonical(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning canonical job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MergeOpening links the external job to canonicalID and bumps its opening
// count in one transaction.
func (r *CanonicalJobs) MergeOpening(ctx context.Context, canonicalID int64, portalName, portalJobID string) (model.CanonicalJob, error) {
	now := toMillis(r.s.now())
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("merging into canonical job %d: %w", canonicalID, err)
	}
	defer tx.Rollback()

	if err := insertLink(ctx, tx, portalName, portalJobID, canonicalID, now); err != nil {
		return model.CanonicalJob{}, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE canonical_jobs SET opening_count = opening_count + 1, updated_at = ?
		 WHERE id = ? AND active = 1`,
		now, canonicalID,
	)
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("incrementing openings of canonical job %d: %w", canonicalID, err)
	}
	if err := requireRow(res, fmt.Sprintf("active canonical job %d", canonicalID)); err != nil {
		return model.CanonicalJob{}, err
	}

	j, err := scanCanonical(tx.QueryRowContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_jobs c WHERE c.id = ?`, canonicalID))
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("reloading canonical job %d: %w", canonicalID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.CanonicalJob{}, fmt.Errorf("committing merge into canonical job %d: %w", canonicalID, err)
	}
	return j, nil
}

// Create inserts a canonical job with one opening and links its source posting.
func (r *CanonicalJobs) Create(ctx context.Context, j model.CanonicalJob) (model.CanonicalJob, error) {
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.s.now()
	}
	j.CreatedAt = fromMillis(toMillis(createdAt))
	j.UpdatedAt = j.CreatedAt
	j.OpeningCount = 1
	j.Active = true

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("creating canonical job: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO canonical_jobs (title, company_id, company_name, designation_id, city, min_experience,
			max_experience, min_salary, max_salary, description, opening_count, active, portal_job_id,
			portal_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?, ?, ?)`,
		j.Title, j.CompanyID, j.CompanyName, j.DesignationID, j.City, j.MinExperience, j.MaxExperience,
		j.MinSalary, j.MaxSalary, j.Description, j.PortalJobID, j.PortalName,
		toMillis(j.CreatedAt), toMillis(j.UpdatedAt),
	)
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("inserting canonical job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("inserting canonical job: %w", err)
	}
	j.ID = id

	if err := insertLink(ctx, tx, j.PortalName, j.PortalJobID, id, toMillis(j.CreatedAt)); err != nil {
		return model.CanonicalJob{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.CanonicalJob{}, fmt.Errorf("committing canonical job: %w", err)
	}
	return j, nil
}

// SetActive toggles whether a canonical job takes part in matching.
func (r *CanonicalJobs) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE canonical_jobs SET active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), toMillis(r.s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating canonical job %d: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("canonical job %d", id))
}

// Get loads one canonical job, or model.ErrNotFound.
func (r *CanonicalJobs) Get(ctx context.Context, id int64) (model.CanonicalJob, error) {
	j, err := scanCanonical(r.s.db.QueryRowContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_jobs c WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CanonicalJob{}, fmt.Errorf("canonical job %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("loading canonical job %d: %w", id, err)
	}
	return j, nil
}

// Count returns the number of canonical jobs.
func (r *CanonicalJobs) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canonical_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting canonical jobs: %w", err)
	}
	return n, nil
}

func insertLink(ctx context.Context, tx *sql.Tx, portalName, portalJobID string, canonicalID, at int64) error {
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO canonical_job_sources (portal_name, portal_job_id, canonical_job_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		portalName, portalJobID, canonicalID, at,
	)
	if err != nil {
		return fmt.Errorf("linking %s/%s to canonical job %d: %w", portalName, portalJobID, canonicalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("linking %s/%s: %w", portalName, portalJobID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s already linked: %w", portalName, portalJobID, model.ErrDuplicate)
	}
	return nil
}

func scanCanonical(row scanner) (model.CanonicalJob, error) {
	var (
		j                    model.CanonicalJob
		active               int
		createdAt, updatedAt int64
	)
	err := row.Scan(&j.ID, &j.Title, &j.CompanyID, &j.CompanyName, &j.DesignationID, &j.City,
		&j.MinExperience, &j.MaxExperience, &j.MinSalary, &j.MaxSalary, &j.Description, &j.OpeningCount,
		&active, &j.PortalJobID, &j.PortalName, &createdAt, &updatedAt)
	if err != nil {
		return model.CanonicalJob{}, err
	}
	j.Active = active == 1
	j.CreatedAt = fromMillis(createdAt)
	j.UpdatedAt = fromMillis(updatedAt)
	return j, nil
}
