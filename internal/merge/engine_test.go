package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Engine, *store.CanonicalJobs, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s, err := store.Open(filepath.Join(t.TempDir(), "merge.db"), store.WithClock(c.Now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	repo := s.CanonicalJobs()
	return NewEngine(repo, discardLogger(), WithClock(c.Now), WithLookback(30*24*time.Hour)), repo, c
}

func posting(portal, id string) model.ExternalJobDetail {
	return model.ExternalJobDetail{
		PortalName:  portal,
		PortalJobID: id,
		JobTitle:    "Backend Engineer",
		CompanyName: "Acme",
		Locations:   []string{"Pune"},
	}
}

var acmeBackendPune = model.TagResult{CompanyID: 1, DesignationID: 7, City: "Pune"}

func TestReconcile_CreateThenMerge(t *testing.T) {
	e, repo, _ := setup(t)
	ctx := context.Background()

	first := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	if !first.Success || first.Outcome != model.OutcomeCreated {
		t.Fatalf("first: %+v", first)
	}

	tag := acmeBackendPune
	tag.City = "PUNE"
	second := e.Reconcile(ctx, posting("linkedin", "L9"), tag)
	if second.Outcome != model.OutcomeMerged || second.JobID != first.JobID {
		t.Fatalf("second: %+v, want merge into %d", second, first.JobID)
	}

	j, err := repo.Get(ctx, first.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.OpeningCount != 2 {
		t.Errorf("OpeningCount = %d, want 2", j.OpeningCount)
	}
}

func TestReconcile_MergesWithinLookback(t *testing.T) {
	for _, age := range []time.Duration{24 * time.Hour, 10 * 24 * time.Hour} {
		t.Run(age.String(), func(t *testing.T) {
			e, repo, c := setup(t)
			ctx := context.Background()

			first := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
			c.Advance(age)
			second := e.Reconcile(ctx, posting("linkedin", "L1"), acmeBackendPune)
			if second.Outcome != model.OutcomeMerged || second.JobID != first.JobID {
				t.Fatalf("second: %+v, want merge into %d", second, first.JobID)
			}
			if n, _ := repo.Count(ctx); n != 1 {
				t.Errorf("Count = %d, want 1", n)
			}
		})
	}
}

func TestReconcile_BumpsExistingOpeningCount(t *testing.T) {
	e, repo, c := setup(t)
	ctx := context.Background()

	// A job created ten days ago already holds two openings.
	first := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	e.Reconcile(ctx, posting("foundit", "A2"), acmeBackendPune)
	j, _ := repo.Get(ctx, first.JobID)
	if j.OpeningCount != 2 {
		t.Fatalf("OpeningCount = %d, want 2 before the new posting", j.OpeningCount)
	}

	c.Advance(10 * 24 * time.Hour)
	third := e.Reconcile(ctx, posting("linkedin", "L3"), acmeBackendPune)
	if third.Outcome != model.OutcomeMerged || third.JobID != first.JobID {
		t.Fatalf("third: %+v", third)
	}
	j, err := repo.Get(ctx, first.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.OpeningCount != 3 {
		t.Errorf("OpeningCount = %d, want 3", j.OpeningCount)
	}
}

func TestReconcile_AlreadyExists(t *testing.T) {
	e, repo, _ := setup(t)
	ctx := context.Background()

	first := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	again := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	if !again.Success || again.Outcome != model.OutcomeAlreadyExists || again.JobID != first.JobID {
		t.Fatalf("again: %+v", again)
	}
	j, _ := repo.Get(ctx, first.JobID)
	if j.OpeningCount != 1 {
		t.Errorf("replay must not bump the count, got %d", j.OpeningCount)
	}
}

func TestReconcile_OutsideLookbackCreates(t *testing.T) {
	e, repo, c := setup(t)
	ctx := context.Background()

	first := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	c.Advance(31 * 24 * time.Hour)
	second := e.Reconcile(ctx, posting("foundit", "A2"), acmeBackendPune)
	if second.Outcome != model.OutcomeCreated || second.JobID == first.JobID {
		t.Fatalf("second: %+v", second)
	}
	if n, _ := repo.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestReconcile_DifferentKeyCreates(t *testing.T) {
	e, _, _ := setup(t)
	ctx := context.Background()

	first := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	other := acmeBackendPune
	other.DesignationID = 8
	second := e.Reconcile(ctx, posting("foundit", "A2"), other)
	if second.Outcome != model.OutcomeCreated || second.JobID == first.JobID {
		t.Fatalf("different designation should not merge: %+v", second)
	}
}

func TestReconcile_NewestCandidateWins(t *testing.T) {
	e, repo, c := setup(t)
	ctx := context.Background()

	// Two equivalent jobs exist, created a day apart.
	older, err := repo.Create(ctx, model.CanonicalJob{
		Title: "Backend Engineer", CompanyID: 1, DesignationID: 7, City: "Pune",
		PortalName: "seed", PortalJobID: "1", CreatedAt: c.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.Advance(24 * time.Hour)
	newer, err := repo.Create(ctx, model.CanonicalJob{
		Title: "Backend Engineer", CompanyID: 1, DesignationID: 7, City: "Pune",
		PortalName: "seed", PortalJobID: "2", CreatedAt: c.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	if res.JobID != newer.ID {
		t.Fatalf("merged into %d, want newest %d (older %d)", res.JobID, newer.ID, older.ID)
	}
}

func TestReconcile_InactiveNotMatched(t *testing.T) {
	e, repo, _ := setup(t)
	ctx := context.Background()

	first := e.Reconcile(ctx, posting("foundit", "A1"), acmeBackendPune)
	if err := repo.SetActive(ctx, first.JobID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	second := e.Reconcile(ctx, posting("foundit", "A2"), acmeBackendPune)
	if second.Outcome != model.OutcomeCreated {
		t.Fatalf("inactive job must not absorb openings: %+v", second)
	}
}

func TestReconcile_TagFailure(t *testing.T) {
	e, repo, _ := setup(t)
	res := e.Reconcile(context.Background(), posting("foundit", "A1"), model.TagResult{Err: errors.New("company unknown")})
	if res.Success || res.Outcome != model.OutcomeTagFailed {
		t.Fatalf("got %+v", res)
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Errorf("tag failure must not write, Count = %d", n)
	}
}

// racingRepo lets another writer link the same posting between the
// engine's lookup and its create.
type racingRepo struct {
	*store.CanonicalJobs
	once sync.Once
}

func (r *racingRepo) Create(ctx context.Context, j model.CanonicalJob) (model.CanonicalJob, error) {
	r.once.Do(func() {
		other := j
		other.Title = "other writer"
		if _, err := r.CanonicalJobs.Create(ctx, other); err != nil {
			panic(err)
		}
	})
	return r.CanonicalJobs.Create(ctx, j)
}

func TestReconcile_LostRaceResolvesToExisting(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s, err := store.Open(filepath.Join(t.TempDir(), "race.db"), store.WithClock(c.Now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	repo := &racingRepo{CanonicalJobs: s.CanonicalJobs()}
	e := NewEngine(repo, discardLogger(), WithClock(c.Now))

	res := e.Reconcile(context.Background(), posting("foundit", "A1"), acmeBackendPune)
	if !res.Success || res.Outcome != model.OutcomeAlreadyExists {
		t.Fatalf("got %+v, want already_exists after lost race", res)
	}
	if n, _ := repo.Count(context.Background()); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

type brokenRepo struct{ model.CanonicalJobRepository }

func (brokenRepo) FindByPortalJob(context.Context, string, string) (*model.CanonicalJob, error) {
	return nil, errors.New("disk I/O error")
}

func TestReconcile_StorageError(t *testing.T) {
	e := NewEngine(brokenRepo{}, discardLogger())
	res := e.Reconcile(context.Background(), posting("foundit", "A1"), acmeBackendPune)
	if res.Success || res.Outcome != model.OutcomeError {
		t.Fatalf("got %+v", res)
	}
}

func TestReconcile_ConcurrentDistinctPostings(t *testing.T) {
	e, repo, _ := setup(t)
	ctx := context.Background()
	first := e.Reconcile(ctx, posting("foundit", "seed"), acmeBackendPune)

	var wg sync.WaitGroup
	for _, id := range []string{"B1", "B2", "B3", "B4"} {
		for range 2 {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				e.Reconcile(ctx, posting("foundit", id), acmeBackendPune)
			}(id)
		}
	}
	wg.Wait()

	j, err := repo.Get(ctx, first.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.OpeningCount != 5 {
		t.Errorf("OpeningCount = %d, want 5", j.OpeningCount)
	}
}
