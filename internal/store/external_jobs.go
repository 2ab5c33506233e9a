package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/jobsync/internal/model"
)

const externalColumns = `id, portal_job_id, portal_name, job_title, company_name, company_id, designation_id,
	locations, min_experience, max_experience, min_salary, max_salary, description, skills, industries,
	job_url, posted_at, raw_response_id, is_synced, sync_error, created_at`

// ExternalJobExists reports whether the natural key is already stored.
func (s *Store) ExternalJobExists(ctx context.Context, portalName, portalJobID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM external_jobs WHERE portal_name = ? AND portal_job_id = ?`,
		portalName, portalJobID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking external job %s/%s: %w", portalName, portalJobID, err)
	}
	return true, nil
}

// InsertExternalJob stores a new external job. The unique natural key makes a
// second insert a no-op reported as model.ErrDuplicate.
func (s *Store) InsertExternalJob(ctx context.Context, j model.ExternalJobDetail) (model.ExternalJobDetail, error) {
	locations, err := encodeList(j.Locations)
	if err != nil {
		return model.ExternalJobDetail{}, fmt.Errorf("encoding locations: %w", err)
	}
	skills, err := encodeList(j.Skills)
	if err != nil {
		return model.ExternalJobDetail{}, fmt.Errorf("encoding skills: %w", err)
	}
	industries, err := encodeList(j.Industries)
	if err != nil {
		return model.ExternalJobDetail{}, fmt.Errorf("encoding industries: %w", err)
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO external_jobs (portal_job_id, portal_name, job_title, company_name,
			company_id, designation_id, locations, min_experience, max_experience, min_salary, max_salary,
			description, skills, industries, job_url, posted_at, raw_response_id, is_synced, sync_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?)`,
		j.PortalJobID, j.PortalName, j.JobTitle, j.CompanyName, j.CompanyID, j.DesignationID,
		locations, j.MinExperience, j.MaxExperience, j.MinSalary, j.MaxSalary,
		j.Description, skills, industries, j.JobURL, nullMillis(j.PostedDate), j.RawResponseID, toMillis(now),
	)
	if err != nil {
		return model.ExternalJobDetail{}, fmt.Errorf("inserting external job %s/%s: %w", j.PortalName, j.PortalJobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.ExternalJobDetail{}, fmt.Errorf("inserting external job %s/%s: %w", j.PortalName, j.PortalJobID, err)
	}
	if n == 0 {
		return model.ExternalJobDetail{}, fmt.Errorf("external job %s/%s: %w", j.PortalName, j.PortalJobID, model.ErrDuplicate)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ExternalJobDetail{}, fmt.Errorf("inserting external job: %w", err)
	}
	j.ID = id
	j.IsSyncedToJobTable = false
	j.SyncError = ""
	j.CreatedAt = fromMillis(toMillis(now))
	return j, nil
}

// GetExternalJob loads one external job, or model.ErrNotFound.
func (s *Store) GetExternalJob(ctx context.Context, id int64) (model.ExternalJobDetail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+externalColumns+` FROM external_jobs WHERE id = ?`, id)
	j, err := scanExternal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExternalJobDetail{}, fmt.Errorf("external job %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.ExternalJobDetail{}, fmt.Errorf("loading external job %d: %w", id, err)
	}
	return j, nil
}

// ListUnsynced returns unsynced external jobs oldest first. limit <= 0 returns all.
func (s *Store) ListUnsynced(ctx context.Context, limit int) ([]model.ExternalJobDetail, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryExternal(ctx,
		`SELECT `+externalColumns+` FROM external_jobs WHERE is_synced = 0 ORDER BY id LIMIT ?`, limit)
}

// ListExternalJobs returns the newest external jobs first.
func (s *Store) ListExternalJobs(ctx context.Context, limit int) ([]model.ExternalJobDetail, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryExternal(ctx,
		`SELECT `+externalColumns+` FROM external_jobs ORDER BY id DESC LIMIT ?`, limit)
}

// CountUnsynced returns how many external jobs still await sync.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM external_jobs WHERE is_synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unsynced external jobs: %w", err)
	}
	return n, nil
}

// SetTags records the resolved company and designation ids.
func (s *Store) SetTags(ctx context.Context, id, companyID, designationID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE external_jobs SET company_id = ?, designation_id = ? WHERE id = ?`,
		companyID, designationID, id,
	)
	if err != nil {
		return fmt.Errorf("tagging external job %d: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("external job %d", id))
}

// MarkSynced sets the synced flag. The flag never reverts, so marking an
// already synced row leaves it (and its sync_error) unchanged.
func (s *Store) MarkSynced(ctx context.Context, id int64, syncErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE external_jobs SET is_synced = 1, sync_error = ? WHERE id = ? AND is_synced = 0`,
		syncErr, id,
	)
	if err != nil {
		return fmt.Errorf("marking external job %d synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking external job %d synced: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetExternalJob(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *Store) queryExternal(ctx context.Context, query string, args ...any) ([]model.ExternalJobDetail, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying external jobs: %w", err)
	}
	defer rows.Close()

	var out []model.ExternalJobDetail
	for rows.Next() {
		j, err := scanExternal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning external job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanExternal(row scanner) (model.ExternalJobDetail, error) {
	var (
		j                             model.ExternalJobDetail
		locations, skills, industries string
		posted                        sql.NullInt64
		synced                        int
		createdAt                     int64
	)
	err := row.Scan(&j.ID, &j.PortalJobID, &j.PortalName, &j.JobTitle, &j.CompanyName, &j.CompanyID, &j.DesignationID,
		&locations, &j.MinExperience, &j.MaxExperience, &j.MinSalary, &j.MaxSalary, &j.Description, &skills, &industries,
		&j.JobURL, &posted, &j.RawResponseID, &synced, &j.SyncError, &createdAt)
	if err != nil {
		return model.ExternalJobDetail{}, err
	}
	j.Locations = decodeList(locations)
	j.Skills = decodeList(skills)
	j.Industries = decodeList(industries)
	j.PostedDate = fromNullMillis(posted)
	j.IsSyncedToJobTable = synced == 1
	j.CreatedAt = fromMillis(createdAt)
	return j, nil
}
