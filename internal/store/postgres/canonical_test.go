package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

// newTestRepo connects to JOBSYNC_TEST_POSTGRES_DSN and truncates the tables.
func newTestRepo(t *testing.T) *CanonicalJobs {
	t.Helper()
	dsn := os.Getenv("JOBSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JOBSYNC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := NewCanonicalJobs(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE canonical_job_sources, canonical_jobs RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return repo
}

func TestPostgres_CreateMergeFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	created, err := repo.Create(ctx, model.CanonicalJob{
		Title: "Data Engineer", CompanyID: 1, DesignationID: 2, City: "Pune",
		PortalName: "foundit", PortalJobID: "P1", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.OpeningCount != 1 || !created.Active {
		t.Errorf("unexpected created job %+v", created)
	}

	matches, err := repo.FindMatching(ctx, 2, 1, "pune", now.Add(-time.Hour))
	if err != nil || len(matches) != 1 {
		t.Fatalf("FindMatching = %v, %v", matches, err)
	}

	merged, err := repo.MergeOpening(ctx, created.ID, "linkedin", "L1")
	if err != nil {
		t.Fatalf("MergeOpening: %v", err)
	}
	if merged.OpeningCount != 2 {
		t.Errorf("expected 2 openings, got %d", merged.OpeningCount)
	}
	if _, err := repo.MergeOpening(ctx, created.ID, "linkedin", "L1"); !errors.Is(err, model.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	link, err := repo.FindByPortalJob(ctx, "linkedin", "L1")
	if err != nil || link == nil || link.ID != created.ID {
		t.Errorf("FindByPortalJob = %+v, %v", link, err)
	}
	none, err := repo.FindByPortalJob(ctx, "linkedin", "missing")
	if err != nil || none != nil {
		t.Errorf("expected nil, got %+v, %v", none, err)
	}
}

func TestPostgres_ConcurrentMerges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, model.CanonicalJob{
		Title: "SRE", CompanyID: 1, DesignationID: 3, City: "Delhi", PortalName: "foundit", PortalJobID: "S1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := repo.MergeOpening(ctx, created.ID, "linkedin", fmt.Sprintf("L%d", i))
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("MergeOpening: %v", err)
		}
	}

	got, _ := repo.FindByPortalJob(ctx, "foundit", "S1")
	if got == nil || got.OpeningCount != n+1 {
		t.Errorf("expected %d openings, got %+v", n+1, got)
	}
}
