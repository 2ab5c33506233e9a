package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

func newCanonical(portalJobID string, createdAt time.Time) model.CanonicalJob {
	return model.CanonicalJob{
		Title:         "Backend Engineer",
		CompanyID:     10,
		CompanyName:   "Acme",
		DesignationID: 20,
		City:          "Pune",
		PortalJobID:   portalJobID,
		PortalName:    "foundit",
		CreatedAt:     createdAt,
	}
}

func TestCanonicalCreate_LinksSource(t *testing.T) {
	s, clock := newTestStore(t)
	repo := s.CanonicalJobs()
	ctx := context.Background()

	created, err := repo.Create(ctx, newCanonical("A1", clock.Now()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 || created.OpeningCount != 1 || !created.Active {
		t.Errorf("unexpected created job %+v", created)
	}

	found, err := repo.FindByPortalJob(ctx, "foundit", "A1")
	if err != nil {
		t.Fatalf("FindByPortalJob: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("expected link to created job, got %+v", found)
	}

	missing, err := repo.FindByPortalJob(ctx, "foundit", "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown posting, got %+v, %v", missing, err)
	}

	if _, err := repo.Create(ctx, newCanonical("A1", clock.Now())); !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for already linked posting, got %v", err)
	}
	n, _ := repo.Count(ctx)
	if n != 1 {
		t.Errorf("duplicate create must roll back, have %d canonical jobs", n)
	}
}

func TestCanonicalFindMatching(t *testing.T) {
	s, clock := newTestStore(t)
	repo := s.CanonicalJobs()
	ctx := context.Background()
	now := clock.Now()

	old, _ := repo.Create(ctx, newCanonical("OLD", now.Add(-40*24*time.Hour)))
	older, _ := repo.Create(ctx, newCanonical("B1", now.Add(-5*24*time.Hour)))
	newer, _ := repo.Create(ctx, newCanonical("B2", now.Add(-1*24*time.Hour)))

	otherCity := newCanonical("C1", now)
	otherCity.City = "Mumbai"
	repo.Create(ctx, otherCity)

	inactive, _ := repo.Create(ctx, newCanonical("D1", now))
	if err := repo.SetActive(ctx, inactive.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	got, err := repo.FindMatching(ctx, 20, 10, "PUNE", now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("FindMatching: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("expected newest first, got %d then %d", got[0].ID, got[1].ID)
	}
	for _, j := range got {
		if j.ID == old.ID {
			t.Error("job outside the lookback window must not match")
		}
	}
}

func TestCanonicalMergeOpening(t *testing.T) {
	s, clock := newTestStore(t)
	repo := s.CanonicalJobs()
	ctx := context.Background()

	created, _ := repo.Create(ctx, newCanonical("A1", clock.Now()))

	merged, err := repo.MergeOpening(ctx, created.ID, "linkedin", "L9")
	if err != nil {
		t.Fatalf("MergeOpening: %v", err)
	}
	if merged.OpeningCount != 2 {
		t.Errorf("expected 2 openings, got %d", merged.OpeningCount)
	}

	if _, err := repo.MergeOpening(ctx, created.ID, "linkedin", "L9"); !errors.Is(err, model.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second merge of same posting, got %v", err)
	}
	got, _ := repo.Get(ctx, created.ID)
	if got.OpeningCount != 2 {
		t.Errorf("rejected merge must not increment, got %d", got.OpeningCount)
	}

	link, _ := repo.FindByPortalJob(ctx, "linkedin", "L9")
	if link == nil || link.ID != created.ID {
		t.Errorf("expected merged posting linked to %d, got %+v", created.ID, link)
	}

	if _, err := repo.MergeOpening(ctx, 999, "linkedin", "L10"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound merging into unknown job, got %v", err)
	}
	if l, _ := repo.FindByPortalJob(ctx, "linkedin", "L10"); l != nil {
		t.Error("failed merge must not leave a link behind")
	}
}

func TestCanonicalMergeOpening_Concurrent(t *testing.T) {
	s, clock := newTestStore(t)
	repo := s.CanonicalJobs()
	ctx := context.Background()

	created, _ := repo.Create(ctx, newCanonical("A1", clock.Now()))

	const postings = 8
	var wg sync.WaitGroup
	for i := 0; i < postings; i++ {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				repo.MergeOpening(ctx, created.ID, "linkedin", id)
			}(string(rune('a' + i)))
		}
	}
	wg.Wait()

	got, _ := repo.Get(ctx, created.ID)
	if got.OpeningCount != 1+postings {
		t.Errorf("expected %d openings, got %d", 1+postings, got.OpeningCount)
	}
}
