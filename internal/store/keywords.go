package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

const keywordColumns = `id, keyword, portal_name, portal_url, is_active, last_crawled_at, created_at`

// RegisterKeyword inserts the keyword if it is not registered yet and returns
// the stored row. Re-registering leaves the existing row untouched.
func (s *Store) RegisterKeyword(ctx context.Context, keyword, portal, portalURL string) (model.CrawlKeyword, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO crawl_keywords (keyword, portal_name, portal_url, is_active, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		keyword, portal, portalURL, toMillis(s.now()),
	)
	if err != nil {
		return model.CrawlKeyword{}, fmt.Errorf("registering keyword %q on %s: %w", keyword, portal, err)
	}
	return s.GetKeyword(ctx, keyword, portal)
}

// GetKeyword returns the keyword registered for portal, or model.ErrNotFound.
func (s *Store) GetKeyword(ctx context.Context, keyword, portal string) (model.CrawlKeyword, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keywordColumns+` FROM crawl_keywords WHERE keyword = ? AND portal_name = ?`,
		keyword, portal,
	)
	kw, err := scanKeyword(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CrawlKeyword{}, fmt.Errorf("keyword %q on %s: %w", keyword, portal, model.ErrNotFound)
	}
	if err != nil {
		return model.CrawlKeyword{}, fmt.Errorf("loading keyword %q on %s: %w", keyword, portal, err)
	}
	return kw, nil
}

// ListKeywords returns every registered keyword ordered by id.
func (s *Store) ListKeywords(ctx context.Context) ([]model.CrawlKeyword, error) {
	return s.queryKeywords(ctx, `SELECT `+keywordColumns+` FROM crawl_keywords ORDER BY id`)
}

// DueKeywords returns active keywords never crawled or last crawled at or
// before now-threshold.
func (s *Store) DueKeywords(ctx context.Context, threshold time.Duration, now time.Time) ([]model.CrawlKeyword, error) {
	cutoff := toMillis(now.Add(-threshold))
	return s.queryKeywords(ctx,
		`SELECT `+keywordColumns+` FROM crawl_keywords
		 WHERE is_active = 1 AND (last_crawled_at IS NULL OR last_crawled_at <= ?)
		 ORDER BY id`,
		cutoff,
	)
}

// RecordCrawl stamps the keyword's last successful crawl.
func (s *Store) RecordCrawl(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_keywords SET last_crawled_at = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("recording crawl for keyword %d: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("keyword %d", id))
}

// SetKeywordActive enables or disables a keyword.
func (s *Store) SetKeywordActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawl_keywords SET is_active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("updating keyword %d: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("keyword %d", id))
}

func (s *Store) queryKeywords(ctx context.Context, query string, args ...any) ([]model.CrawlKeyword, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	defer rows.Close()

	var out []model.CrawlKeyword
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning keyword: %w", err)
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

func scanKeyword(row scanner) (model.CrawlKeyword, error) {
	var (
		kw        model.CrawlKeyword
		active    int
		lastCrawl sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&kw.ID, &kw.Keyword, &kw.PortalName, &kw.PortalURL, &active, &lastCrawl, &createdAt); err != nil {
		return model.CrawlKeyword{}, err
	}
	kw.IsActive = active == 1
	kw.LastCrawledDate = fromNullMillis(lastCrawl)
	kw.CreatedAt = fromMillis(createdAt)
	return kw, nil
}

// requireRow maps a zero-row update to model.ErrNotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
