package inspect

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobsync/internal/ingest"
	"github.com/amishk599/jobsync/internal/model"
)

type fakeSource struct {
	raws []model.RawResponse
	jobs []model.ExternalJobDetail
	err  error
}

func (f fakeSource) ListRecentRaw(context.Context, int) ([]model.RawResponse, error) {
	return f.raws, f.err
}

func (f fakeSource) ListExternalJobs(context.Context, int) ([]model.ExternalJobDetail, error) {
	return f.jobs, nil
}

type fakeReprocessor struct {
	calls []int64
}

func (f *fakeReprocessor) Reprocess(_ context.Context, id int64) (ingest.Result, error) {
	f.calls = append(f.calls, id)
	return ingest.Result{RawID: id, Status: model.StatusCompleted, Duplicates: 2}, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(m inspectModel) inspectModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(inspectModel)
}

func TestLoadSnapshot_FiltersByPortal(t *testing.T) {
	src := fakeSource{
		raws: []model.RawResponse{{ID: 1, PortalName: "foundit"}, {ID: 2, PortalName: "linkedin"}},
		jobs: []model.ExternalJobDetail{{ID: 10, PortalName: "linkedin"}},
	}

	all, err := LoadSnapshot(context.Background(), src, AllPortals, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all.Raws) != 2 || len(all.Jobs) != 1 {
		t.Errorf("all portals: got %d raws, %d jobs", len(all.Raws), len(all.Jobs))
	}

	one, err := LoadSnapshot(context.Background(), src, "foundit", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(one.Raws) != 1 || one.Raws[0].ID != 1 || len(one.Jobs) != 0 {
		t.Errorf("foundit: got %+v", one)
	}
}

func TestLoadSnapshot_SourceError(t *testing.T) {
	_, err := LoadSnapshot(context.Background(), fakeSource{err: errors.New("db closed")}, AllPortals, 50)
	if err == nil || !strings.Contains(err.Error(), "listing raw responses") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestPayloadPreview(t *testing.T) {
	got := payloadPreview([]byte(`{"a":1}`))
	if got != "{\n  \"a\": 1\n}" {
		t.Errorf("indent: got %q", got)
	}
	if got := payloadPreview([]byte("<html>")); got != "<html>" {
		t.Errorf("non-JSON payload should pass through, got %q", got)
	}
	if got := payloadPreview(nil); got != "(empty)" {
		t.Errorf("empty: got %q", got)
	}
	big := payloadPreview([]byte(strings.Repeat("x", maxPayloadPreview+10)))
	if !strings.HasSuffix(big, "(truncated)") {
		t.Error("large payload should be truncated")
	}
}

func TestWordWrap(t *testing.T) {
	got := wordWrap("go is a   small language", 10)
	if got != "go is a\nsmall\nlanguage" {
		t.Errorf("got %q", got)
	}
	if wordWrap("   ", 10) != "" {
		t.Error("blank text should wrap to empty")
	}
}

func TestClamp(t *testing.T) {
	if clamp(-1, 0, 3) != 0 || clamp(5, 0, 3) != 3 || clamp(2, 0, 3) != 2 {
		t.Error("clamp out of range")
	}
}

func TestSyncLabel(t *testing.T) {
	tests := []struct {
		job  model.ExternalJobDetail
		want string
	}{
		{model.ExternalJobDetail{}, "pending"},
		{model.ExternalJobDetail{IsSyncedToJobTable: true}, "yes"},
		{model.ExternalJobDetail{IsSyncedToJobTable: true, SyncError: "unknown company"}, "skipped"},
	}
	for _, tt := range tests {
		if got := syncLabel(tt.job); got != tt.want {
			t.Errorf("syncLabel(%+v) = %q, want %q", tt.job, got, tt.want)
		}
	}
}

func TestRenderLists_Empty(t *testing.T) {
	if !strings.Contains(renderRaws(nil, 0, true), "no raw responses") {
		t.Error("empty raw list placeholder missing")
	}
	if !strings.Contains(renderJobs(nil, 0, true), "no jobs") {
		t.Error("empty job list placeholder missing")
	}
}

func TestModel_NavigateAndOpenJobDetail(t *testing.T) {
	m := sized(inspectModel{
		raws: []model.RawResponse{{ID: 1, PortalName: "foundit", ProcessingStatus: model.StatusPending}},
		jobs: []model.ExternalJobDetail{
			{ID: 10, JobTitle: "Go Developer", CompanyName: "Acme"},
			{ID: 11, JobTitle: "SRE", CompanyName: "Globex", Description: "keep things up"},
		},
	})

	next, _ := m.Update(key("tab"))
	next, _ = next.Update(key("j"))
	next, _ = next.Update(key("j")) // clamped at the last row
	next, _ = next.Update(key("enter"))
	m = next.(inspectModel)

	if m.view != viewJobDetail || m.detailJob.ID != 11 {
		t.Fatalf("expected job 11 detail, got view=%d job=%d", m.view, m.detailJob.ID)
	}
	if strings.Contains(m.renderDetail(), "keep things up") {
		t.Error("description should be hidden until toggled")
	}
	next, _ = m.Update(key("r"))
	if !strings.Contains(next.(inspectModel).renderDetail(), "keep things up") {
		t.Error("description should show after r")
	}

	next, _ = next.Update(key("esc"))
	if next.(inspectModel).view != viewList {
		t.Error("esc should return to the list")
	}
}

func TestModel_ReprocessRawResponse(t *testing.T) {
	rp := &fakeReprocessor{}
	m := sized(inspectModel{
		raws:        []model.RawResponse{{ID: 7, PortalName: "foundit", ProcessingStatus: model.StatusFailed, ErrorMessage: "bad json"}},
		reprocessor: rp,
	})

	next, _ := m.Update(key("enter"))
	next, cmd := next.Update(key("x"))
	if cmd == nil {
		t.Fatal("expected reprocess command")
	}
	if !next.(inspectModel).reprocessLoading {
		t.Error("expected loading state")
	}

	next, _ = next.Update(cmd())
	m = next.(inspectModel)
	if len(rp.calls) != 1 || rp.calls[0] != 7 {
		t.Fatalf("reprocess calls = %v", rp.calls)
	}
	if m.detailRaw.ProcessingStatus != model.StatusCompleted || m.detailRaw.ErrorMessage != "" {
		t.Errorf("detail not updated: %+v", m.detailRaw)
	}
	if m.raws[0].ProcessingStatus != model.StatusCompleted {
		t.Error("list row not updated")
	}
	if !strings.Contains(m.renderDetail(), "2 duplicate") {
		t.Error("reprocess summary missing from detail")
	}
}

func TestModel_ReprocessIgnoredForPending(t *testing.T) {
	rp := &fakeReprocessor{}
	m := sized(inspectModel{
		raws:        []model.RawResponse{{ID: 3, ProcessingStatus: model.StatusPending}},
		reprocessor: rp,
	})

	next, _ := m.Update(key("enter"))
	_, cmd := next.Update(key("x"))
	if cmd != nil {
		t.Error("pending rows should not be reprocessed from the inspector")
	}
}
