package tagger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDirectory(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "tagger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustImport(t *testing.T, dir Directory, kind model.EntityKind, name string, aliases ...string) model.Entity {
	t.Helper()
	e, err := Import(context.Background(), dir, kind, name, aliases...)
	if err != nil {
		t.Fatalf("Import %s %q: %v", kind, name, err)
	}
	return e
}

func TestTagger_ResolvesAllFields(t *testing.T) {
	dir := newDirectory(t)
	acme := mustImport(t, dir, model.EntityCompany, "Acme")
	eng := mustImport(t, dir, model.EntityDesignation, "Software Engineer", "SDE")
	mustImport(t, dir, model.EntityCity, "Bengaluru", "Bangalore")

	tg := New(NewDirectoryResolver(dir), discardLogger())
	res := tg.Resolve(context.Background(), model.ExternalJobDetail{
		CompanyName: "ACME Pvt. Ltd.",
		JobTitle:    "Software Engineer (Backend) - Payments",
		Locations:   []string{"Bangalore, Karnataka"},
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.CompanyID != acme.ID || res.DesignationID != eng.ID {
		t.Errorf("got company=%d designation=%d, want %d/%d", res.CompanyID, res.DesignationID, acme.ID, eng.ID)
	}
	if res.City != "Bengaluru" {
		t.Errorf("City = %q, want canonical Bengaluru", res.City)
	}
}

func TestTagger_UnknownCityKeepsText(t *testing.T) {
	dir := newDirectory(t)
	mustImport(t, dir, model.EntityCompany, "Acme")
	mustImport(t, dir, model.EntityDesignation, "Data Analyst")

	res := New(NewDirectoryResolver(dir), discardLogger()).Resolve(context.Background(), model.ExternalJobDetail{
		CompanyName: "Acme",
		JobTitle:    "Data Analyst",
		Locations:   []string{"Indore, MP"},
	})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.City != "Indore" {
		t.Errorf("City = %q, want Indore", res.City)
	}
}

func TestTagger_UnknownCompanyFails(t *testing.T) {
	dir := newDirectory(t)
	mustImport(t, dir, model.EntityDesignation, "Data Analyst")

	res := New(NewDirectoryResolver(dir), discardLogger()).Resolve(context.Background(), model.ExternalJobDetail{
		CompanyName: "Nobody Inc",
		JobTitle:    "Data Analyst",
	})
	if !errors.Is(res.Err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", res.Err)
	}
	if res.CompanyID != 0 || res.DesignationID != 0 {
		t.Errorf("failed tag should carry no ids, got %+v", res)
	}
}

func TestTagger_MissingCompanyName(t *testing.T) {
	res := New(NewDirectoryResolver(newDirectory(t)), discardLogger()).Resolve(context.Background(), model.ExternalJobDetail{JobTitle: "x"})
	if res.Err == nil {
		t.Fatal("expected error for empty company name")
	}
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, model.EntityKind, string) (model.Entity, error) {
	return model.Entity{}, f.err
}

func TestTagger_ResolverErrorPropagates(t *testing.T) {
	boom := errors.New("db locked")
	res := New(failingResolver{boom}, discardLogger()).Resolve(context.Background(), model.ExternalJobDetail{CompanyName: "Acme", JobTitle: "x"})
	if !errors.Is(res.Err, boom) {
		t.Fatalf("expected wrapped resolver error, got %v", res.Err)
	}
}

type mapCache struct {
	items map[string]model.Entity
	sets  int
	err   error
}

func (c *mapCache) Get(_ context.Context, kind model.EntityKind, key string) (model.Entity, bool, error) {
	if c.err != nil {
		return model.Entity{}, false, c.err
	}
	e, ok := c.items[string(kind)+":"+key]
	return e, ok, nil
}

func (c *mapCache) Set(_ context.Context, e model.Entity, key string, _ time.Duration) error {
	c.sets++
	c.items[string(e.Kind)+":"+key] = e
	return nil
}

type countingResolver struct {
	next  model.EntityResolver
	calls int
}

func (c *countingResolver) Resolve(ctx context.Context, kind model.EntityKind, name string) (model.Entity, error) {
	c.calls++
	return c.next.Resolve(ctx, kind, name)
}

func TestCachedResolver(t *testing.T) {
	dir := newDirectory(t)
	acme := mustImport(t, dir, model.EntityCompany, "Acme")
	inner := &countingResolver{next: NewDirectoryResolver(dir)}
	cache := &mapCache{items: map[string]model.Entity{}}
	r := NewCachedResolver(inner, cache, time.Hour, discardLogger())
	ctx := context.Background()

	for _, name := range []string{"Acme", "ACME Ltd", "acme"} {
		e, err := r.Resolve(ctx, model.EntityCompany, name)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if e.ID != acme.ID {
			t.Errorf("Resolve(%q) = %d, want %d", name, e.ID, acme.ID)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner resolver called %d times, want 1", inner.calls)
	}

	if _, err := r.Resolve(ctx, model.EntityCompany, "Unknown"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if cache.sets != 1 {
		t.Errorf("misses must not be cached, sets = %d", cache.sets)
	}
}

func TestCachedResolver_CacheErrorFallsThrough(t *testing.T) {
	dir := newDirectory(t)
	mustImport(t, dir, model.EntityCompany, "Acme")
	cache := &mapCache{items: map[string]model.Entity{}, err: errors.New("connection refused")}
	r := NewCachedResolver(NewDirectoryResolver(dir), cache, time.Hour, discardLogger())

	if _, err := r.Resolve(context.Background(), model.EntityCompany, "Acme"); err != nil {
		t.Fatalf("cache failure should not fail resolution: %v", err)
	}
}

type fakeMatcher struct {
	answer     string
	err        error
	calls      int
	candidates []string
}

func (m *fakeMatcher) Match(_ context.Context, _ string, candidates []string) (string, error) {
	m.calls++
	m.candidates = candidates
	return m.answer, m.err
}

func TestAIResolver_LearnsAlias(t *testing.T) {
	dir := newDirectory(t)
	eng := mustImport(t, dir, model.EntityDesignation, "Software Engineer")
	mustImport(t, dir, model.EntityDesignation, "Data Analyst")
	matcher := &fakeMatcher{answer: "Software Engineer"}
	r := NewAIResolver(NewDirectoryResolver(dir), dir, matcher, discardLogger())
	ctx := context.Background()

	e, err := r.Resolve(ctx, model.EntityDesignation, "Golang Ninja")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.ID != eng.ID {
		t.Errorf("got %d, want %d", e.ID, eng.ID)
	}
	if len(matcher.candidates) != 2 {
		t.Errorf("matcher saw %v, want both designations", matcher.candidates)
	}

	if _, err := r.Resolve(ctx, model.EntityDesignation, "golang ninja"); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if matcher.calls != 1 {
		t.Errorf("learned alias should skip the matcher, calls = %d", matcher.calls)
	}
}

func TestAIResolver_NoMatch(t *testing.T) {
	dir := newDirectory(t)
	mustImport(t, dir, model.EntityDesignation, "Software Engineer")
	for _, m := range []*fakeMatcher{{answer: ""}, {answer: "Astronaut"}, {err: errors.New("timeout")}} {
		r := NewAIResolver(NewDirectoryResolver(dir), dir, m, discardLogger())
		if _, err := r.Resolve(context.Background(), model.EntityDesignation, "Chef"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("matcher %+v: expected ErrNotFound, got %v", m, err)
		}
	}
}

func TestAIResolver_OnlyDesignations(t *testing.T) {
	dir := newDirectory(t)
	matcher := &fakeMatcher{answer: "anything"}
	r := NewAIResolver(NewDirectoryResolver(dir), dir, matcher, discardLogger())
	if _, err := r.Resolve(context.Background(), model.EntityCompany, "Acme"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if matcher.calls != 0 {
		t.Error("matcher must not be consulted for companies")
	}
}
