package tagger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

// Directory is the entity storage the resolvers read from and learn into.
type Directory interface {
	LookupAlias(ctx context.Context, kind model.EntityKind, normalized string) (model.Entity, error)
	PutAlias(ctx context.Context, kind model.EntityKind, normalized string, entityID int64) error
	ListEntities(ctx context.Context, kind model.EntityKind) ([]model.Entity, error)
	UpsertEntity(ctx context.Context, kind model.EntityKind, name string) (model.Entity, error)
}

// DirectoryResolver resolves names by exact lookup of their normalized form.
type DirectoryResolver struct {
	dir Directory
}

// NewDirectoryResolver creates a resolver backed by dir.
func NewDirectoryResolver(dir Directory) *DirectoryResolver {
	return &DirectoryResolver{dir: dir}
}

// Resolve returns the entity whose alias matches the normalized name, or an
// error wrapping model.ErrNotFound.
func (r *DirectoryResolver) Resolve(ctx context.Context, kind model.EntityKind, name string) (model.Entity, error) {
	key := Normalize(kind, name)
	if key == "" {
		return model.Entity{}, fmt.Errorf("%s %q: %w", kind, name, model.ErrNotFound)
	}
	return r.dir.LookupAlias(ctx, kind, key)
}

// Cache stores resolved entities by kind and normalized name.
type Cache interface {
	Get(ctx context.Context, kind model.EntityKind, key string) (model.Entity, bool, error)
	Set(ctx context.Context, e model.Entity, key string, ttl time.Duration) error
}

// CachedResolver consults cache before next. Only successful resolutions are
// cached; cache failures fall through to next.
type CachedResolver struct {
	next   model.EntityResolver
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver wraps next with cache. Entries expire after ttl.
func NewCachedResolver(next model.EntityResolver, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Resolve serves from the cache when possible and stores next's successes.
func (r *CachedResolver) Resolve(ctx context.Context, kind model.EntityKind, name string) (model.Entity, error) {
	key := Normalize(kind, name)
	e, ok, err := r.cache.Get(ctx, kind, key)
	if err != nil {
		r.logger.Warn("entity cache read failed", "kind", kind, "key", key, "error", err)
	} else if ok {
		return e, nil
	}

	e, err = r.next.Resolve(ctx, kind, name)
	if err != nil {
		return e, err
	}
	if err := r.cache.Set(ctx, e, key, r.ttl); err != nil {
		r.logger.Warn("entity cache write failed", "kind", kind, "key", key, "error", err)
	}
	return e, nil
}

// Matcher picks the best candidate for a job title, or "" when none fits.
type Matcher interface {
	Match(ctx context.Context, title string, candidates []string) (string, error)
}

// AIResolver falls back to a Matcher for designations the directory does not
// know, and records accepted matches as aliases so later lookups hit the
// directory. Other kinds pass through unchanged.
type AIResolver struct {
	next    model.EntityResolver
	dir     Directory
	matcher Matcher
	logger  *slog.Logger
}

// NewAIResolver wraps next, asking matcher about designations next cannot find.
func NewAIResolver(next model.EntityResolver, dir Directory, matcher Matcher, logger *slog.Logger) *AIResolver {
	return &AIResolver{next: next, dir: dir, matcher: matcher, logger: logger}
}

// Resolve delegates to next. An unknown designation is offered to the
// matcher against every known designation; a match is stored as an alias.
// Matcher failures surface as the original not-found error.
func (r *AIResolver) Resolve(ctx context.Context, kind model.EntityKind, name string) (model.Entity, error) {
	e, err := r.next.Resolve(ctx, kind, name)
	if kind != model.EntityDesignation || !errors.Is(err, model.ErrNotFound) {
		return e, err
	}

	known, lerr := r.dir.ListEntities(ctx, kind)
	if lerr != nil {
		return model.Entity{}, fmt.Errorf("listing designations: %w", lerr)
	}
	byName := make(map[string]model.Entity, len(known))
	candidates := make([]string, 0, len(known))
	for _, k := range known {
		byName[k.Name] = k
		candidates = append(candidates, k.Name)
	}

	choice, merr := r.matcher.Match(ctx, name, candidates)
	if merr != nil {
		r.logger.Warn("designation match failed", "title", name, "error", merr)
		return model.Entity{}, err
	}
	match, ok := byName[choice]
	if !ok {
		return model.Entity{}, err
	}

	if perr := r.dir.PutAlias(ctx, kind, Normalize(kind, name), match.ID); perr != nil {
		r.logger.Warn("storing learned alias failed", "title", name, "error", perr)
	}
	r.logger.Info("matched designation", "title", name, "designation", match.Name)
	return match, nil
}

// Import creates the entity name and maps it and every alias to it.
func Import(ctx context.Context, dir Directory, kind model.EntityKind, name string, aliases ...string) (model.Entity, error) {
	e, err := dir.UpsertEntity(ctx, kind, name)
	if err != nil {
		return model.Entity{}, err
	}
	for _, n := range append([]string{name}, aliases...) {
		key := Normalize(kind, n)
		if key == "" {
			continue
		}
		if err := dir.PutAlias(ctx, kind, key, e.ID); err != nil {
			return model.Entity{}, err
		}
	}
	return e, nil
}
