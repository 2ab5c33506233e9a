package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/jobsync/internal/model"
)

const rawColumns = `id, run_id, portal_name, keyword, raw_payload, api_url, http_status_code,
	response_size_bytes, processing_status, error_message, created_at, updated_at`

// PersistRaw stores a fetched payload in PENDING and returns it with its id.
func (s *Store) PersistRaw(ctx context.Context, r model.RawResponse) (model.RawResponse, error) {
	now := s.now()
	if r.ResponseSizeBytes == 0 {
		r.ResponseSizeBytes = len(r.RawPayload)
	}
	if r.RawPayload == nil {
		r.RawPayload = []byte{}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_responses (run_id, portal_name, keyword, raw_payload, api_url, http_status_code,
			response_size_bytes, processing_status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		r.RunID, r.PortalName, r.Keyword, r.RawPayload, r.APIURL, r.HTTPStatusCode,
		r.ResponseSizeBytes, model.StatusPending, toMillis(now), toMillis(now),
	)
	if err != nil {
		return model.RawResponse{}, fmt.Errorf("persisting raw response for %s/%q: %w", r.PortalName, r.Keyword, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.RawResponse{}, fmt.Errorf("persisting raw response: %w", err)
	}
	r.ID = id
	r.ProcessingStatus = model.StatusPending
	r.ErrorMessage = ""
	r.CreatedAt = fromMillis(toMillis(now))
	r.UpdatedAt = r.CreatedAt
	return r, nil
}

// GetRaw loads one raw response, or model.ErrNotFound.
func (s *Store) GetRaw(ctx context.Context, id int64) (model.RawResponse, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rawColumns+` FROM raw_responses WHERE id = ?`, id)
	r, err := scanRaw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RawResponse{}, fmt.Errorf("raw response %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.RawResponse{}, fmt.Errorf("loading raw response %d: %w", id, err)
	}
	return r, nil
}

// ListRawByStatus returns raw responses in status ordered by id.
func (s *Store) ListRawByStatus(ctx context.Context, status model.ProcessingStatus) ([]model.RawResponse, error) {
	return s.queryRaw(ctx, `SELECT `+rawColumns+` FROM raw_responses WHERE processing_status = ? ORDER BY id`, status)
}

// ListRecentRaw returns the newest raw responses first.
func (s *Store) ListRecentRaw(ctx context.Context, limit int) ([]model.RawResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryRaw(ctx, `SELECT `+rawColumns+` FROM raw_responses ORDER BY id DESC LIMIT ?`, limit)
}

// TransitionRaw moves a row from one status to another when the state machine
// allows it and the row is still in from.
func (s *Store) TransitionRaw(ctx context.Context, id int64, from, to model.ProcessingStatus, errMsg string) error {
	if !model.IsTransitionAllowed(from, to) {
		return fmt.Errorf("raw response %d %s -> %s: %w", id, from, to, model.ErrInvalidTransition)
	}
	return s.conditionalStatus(ctx, id, []model.ProcessingStatus{from}, to, errMsg)
}

// ReopenRaw moves a COMPLETED or FAILED row to PROCESSING for an explicit
// reprocess and returns the reopened row.
func (s *Store) ReopenRaw(ctx context.Context, id int64) (model.RawResponse, error) {
	terminal := []model.ProcessingStatus{model.StatusCompleted, model.StatusFailed}
	if err := s.conditionalStatus(ctx, id, terminal, model.StatusProcessing, ""); err != nil {
		return model.RawResponse{}, err
	}
	return s.GetRaw(ctx, id)
}

// RecoverStale resets rows left in PROCESSING by a crash back to PENDING.
func (s *Store) RecoverStale(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE raw_responses SET processing_status = ?, error_message = 'recovered after crash', updated_at = ?
		 WHERE processing_status = ?`,
		model.StatusPending, toMillis(s.now()), model.StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("recovering stale raw responses: %w", err)
	}
	return res.RowsAffected()
}

// RawStats counts raw responses per status. Every status is present in the result.
func (s *Store) RawStats(ctx context.Context) (map[model.ProcessingStatus]int, error) {
	stats := map[model.ProcessingStatus]int{
		model.StatusPending:    0,
		model.StatusProcessing: 0,
		model.StatusCompleted:  0,
		model.StatusFailed:     0,
	}
	rows, err := s.db.QueryContext(ctx, `SELECT processing_status, COUNT(*) FROM raw_responses GROUP BY processing_status`)
	if err != nil {
		return nil, fmt.Errorf("counting raw responses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning raw stats: %w", err)
		}
		stats[model.ProcessingStatus(status)] = n
	}
	return stats, rows.Err()
}

func (s *Store) conditionalStatus(ctx context.Context, id int64, from []model.ProcessingStatus, to model.ProcessingStatus, errMsg string) error {
	query := `UPDATE raw_responses SET processing_status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND processing_status IN (?`
	args := []any{to, errMsg, toMillis(s.now()), id, from[0]}
	for _, f := range from[1:] {
		query += `, ?`
		args = append(args, f)
	}
	query += `)`

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating raw response %d to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating raw response %d to %s: %w", id, to, err)
	}
	if n > 0 {
		return nil
	}

	current, err := s.GetRaw(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("raw response %d is %s, cannot move to %s: %w", id, current.ProcessingStatus, to, model.ErrInvalidTransition)
}

func (s *Store) queryRaw(ctx context.Context, query string, args ...any) ([]model.RawResponse, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying raw responses: %w", err)
	}
	defer rows.Close()

	var out []model.RawResponse
	for rows.Next() {
		r, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning raw response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRaw(row scanner) (model.RawResponse, error) {
	var (
		r                    model.RawResponse
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.RunID, &r.PortalName, &r.Keyword, &r.RawPayload, &r.APIURL, &r.HTTPStatusCode,
		&r.ResponseSizeBytes, &status, &r.ErrorMessage, &createdAt, &updatedAt)
	if err != nil {
		return model.RawResponse{}, err
	}
	r.ProcessingStatus = model.ProcessingStatus(status)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}
