// Package postgres implements the canonical job repository on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobsync/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const columns = `c.id, c.title, c.company_id, c.company_name, c.designation_id, c.city,
	c.min_experience, c.max_experience, c.min_salary, c.max_salary, c.description, c.opening_count,
	c.active, c.portal_job_id, c.portal_name, c.created_at, c.updated_at`

// CanonicalJobs stores canonical jobs and their source links in PostgreSQL.
type CanonicalJobs struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPool creates and verifies a pgxpool connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// NewCanonicalJobs returns a repository on pool. Call Migrate before first use.
func NewCanonicalJobs(pool *pgxpool.Pool) *CanonicalJobs {
	return &CanonicalJobs{pool: pool, now: time.Now}
}

// Migrate creates the tables if they do not exist.
func (r *CanonicalJobs) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying canonical job schema: %w", err)
	}
	return nil
}

func (r *CanonicalJobs) FindByPortalJob(ctx context.Context, portalName, portalJobID string) (*model.CanonicalJob, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM canonical_jobs c
		 JOIN canonical_job_sources l ON l.canonical_job_id = c.id
		 WHERE l.portal_name = $1 AND l.portal_job_id = $2`,
		portalName, portalJobID,
	)
	j, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding canonical job for %s/%s: %w", portalName, portalJobID, err)
	}
	return &j, nil
}

func (r *CanonicalJobs) FindMatching(ctx context.Context, designationID, companyID int64, city string, since time.Time) ([]model.CanonicalJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+columns+` FROM canonical_jobs c
		 WHERE c.designation_id = $1 AND c.company_id = $2 AND lower(c.city) = lower($3)
		   AND c.active AND c.created_at >= $4
		 ORDER BY c.created_at DESC, c.id DESC`,
		designationID, companyID, city, since,
	)
	if err != nil {
		return nil, fmt.Errorf("finding matching canonical jobs: %w", err)
	}
	defer rows.Close()

	var out []model.CanonicalJob
	for rows.Next() {
		j, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning canonical job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MergeOpening links the posting and increments opening_count in one
// transaction. The UPDATE takes the row lock, so concurrent merges serialize.
func (r *CanonicalJobs) MergeOpening(ctx context.Context, canonicalID int64, portalName, portalJobID string) (model.CanonicalJob, error) {
	now := r.now()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("merging into canonical job %d: %w", canonicalID, err)
	}
	defer tx.Rollback(ctx)

	if err := insertLink(ctx, tx, portalName, portalJobID, canonicalID, now); err != nil {
		return model.CanonicalJob{}, err
	}

	j, err := scan(tx.QueryRow(ctx,
		`UPDATE canonical_jobs c SET opening_count = opening_count + 1, updated_at = $2
		 WHERE c.id = $1 AND c.active
		 RETURNING `+columns,
		canonicalID, now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CanonicalJob{}, fmt.Errorf("active canonical job %d: %w", canonicalID, model.ErrNotFound)
	}
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("incrementing openings of canonical job %d: %w", canonicalID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.CanonicalJob{}, fmt.Errorf("committing merge into canonical job %d: %w", canonicalID, err)
	}
	return j, nil
}

func (r *CanonicalJobs) Create(ctx context.Context, j model.CanonicalJob) (model.CanonicalJob, error) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = r.now()
	}
	j.UpdatedAt = j.CreatedAt

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("creating canonical job: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := scan(tx.QueryRow(ctx,
		`INSERT INTO canonical_jobs AS c (title, company_id, company_name, designation_id, city,
			min_experience, max_experience, min_salary, max_salary, description, opening_count, active,
			portal_job_id, portal_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, TRUE, $11, $12, $13, $13)
		 RETURNING `+columns,
		j.Title, j.CompanyID, j.CompanyName, j.DesignationID, j.City, j.MinExperience, j.MaxExperience,
		j.MinSalary, j.MaxSalary, j.Description, j.PortalJobID, j.PortalName, j.CreatedAt,
	))
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("inserting canonical job: %w", err)
	}

	if err := insertLink(ctx, tx, j.PortalName, j.PortalJobID, created.ID, j.CreatedAt); err != nil {
		return model.CanonicalJob{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.CanonicalJob{}, fmt.Errorf("committing canonical job: %w", err)
	}
	return created, nil
}

func insertLink(ctx context.Context, tx pgx.Tx, portalName, portalJobID string, canonicalID int64, at time.Time) error {
	tag, err := tx.Exec(ctx,
		`INSERT INTO canonical_job_sources (portal_name, portal_job_id, canonical_job_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (portal_name, portal_job_id) DO NOTHING`,
		portalName, portalJobID, canonicalID, at,
	)
	if err != nil {
		return fmt.Errorf("linking %s/%s to canonical job %d: %w", portalName, portalJobID, canonicalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s already linked: %w", portalName, portalJobID, model.ErrDuplicate)
	}
	return nil
}

func scan(row pgx.Row) (model.CanonicalJob, error) {
	var j model.CanonicalJob
	err := row.Scan(&j.ID, &j.Title, &j.CompanyID, &j.CompanyName, &j.DesignationID, &j.City,
		&j.MinExperience, &j.MaxExperience, &j.MinSalary, &j.MaxSalary, &j.Description, &j.OpeningCount,
		&j.Active, &j.PortalJobID, &j.PortalName, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return model.CanonicalJob{}, err
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return j, nil
}
