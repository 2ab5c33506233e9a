package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amishk599/jobsync/internal/model"
)

// UpsertEntity returns the entity named name, creating it if needed.
func (s *Store) UpsertEntity(ctx context.Context, kind model.EntityKind, name string) (model.Entity, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entities (kind, name) VALUES (?, ?)`, kind, name); err != nil {
		return model.Entity{}, fmt.Errorf("upserting %s %q: %w", kind, name, err)
	}
	e := model.Entity{Kind: kind, Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE kind = ? AND name = ?`, kind, name).Scan(&e.ID)
	if err != nil {
		return model.Entity{}, fmt.Errorf("loading %s %q: %w", kind, name, err)
	}
	return e, nil
}

// PutAlias maps a normalized name to an entity, replacing any previous mapping.
func (s *Store) PutAlias(ctx context.Context, kind model.EntityKind, normalized string, entityID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_names (kind, normalized, entity_id) VALUES (?, ?, ?)
		 ON CONFLICT (kind, normalized) DO UPDATE SET entity_id = excluded.entity_id`,
		kind, normalized, entityID,
	)
	if err != nil {
		return fmt.Errorf("storing %s alias %q: %w", kind, normalized, err)
	}
	return nil
}

// LookupAlias resolves a normalized name, or returns model.ErrNotFound.
func (s *Store) LookupAlias(ctx context.Context, kind model.EntityKind, normalized string) (model.Entity, error) {
	e := model.Entity{Kind: kind}
	err := s.db.QueryRowContext(ctx,
		`SELECT e.id, e.name FROM entity_names n JOIN entities e ON e.id = n.entity_id
		 WHERE n.kind = ? AND n.normalized = ?`,
		kind, normalized,
	).Scan(&e.ID, &e.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("%s %q: %w", kind, normalized, model.ErrNotFound)
	}
	if err != nil {
		return model.Entity{}, fmt.Errorf("resolving %s %q: %w", kind, normalized, err)
	}
	return e, nil
}

// ListEntities returns the entities of one kind ordered by name.
func (s *Store) ListEntities(ctx context.Context, kind model.EntityKind) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name FROM entities WHERE kind = ? ORDER BY name`, kind)
	if err != nil {
		return nil, fmt.Errorf("listing %s entities: %w", kind, err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var (
			e model.Entity
			k string
		)
		if err := rows.Scan(&e.ID, &k, &e.Name); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Kind = model.EntityKind(k)
		out = append(out, e)
	}
	return out, rows.Err()
}
