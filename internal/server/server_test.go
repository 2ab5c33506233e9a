package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amishk599/jobsync/internal/crawler"
	"github.com/amishk599/jobsync/internal/ingest"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
	"github.com/amishk599/jobsync/internal/syncer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCrawler struct {
	got crawler.CrawlRequest
	err error
}

func (f *fakeCrawler) CrawlNow(_ context.Context, req crawler.CrawlRequest) (crawler.Summary, error) {
	f.got = req
	return crawler.Summary{RunID: "run-1", Keywords: 1, NewJobs: 3}, f.err
}

type fakeSyncer struct{}

func (fakeSyncer) SyncUnsynced(context.Context) (syncer.Summary, error) {
	return syncer.Summary{Total: 2, Created: 1, Merged: 1}, nil
}

type fakeReprocessor struct {
	id  int64
	err error
}

func (f *fakeReprocessor) Reprocess(_ context.Context, id int64) (ingest.Result, error) {
	f.id = id
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return ingest.Result{RawID: id, Status: model.StatusCompleted, NewJobs: make([]model.ExternalJobDetail, 2)}, nil
}

func (f *fakeReprocessor) ReprocessPending(context.Context) (ingest.BatchResult, error) {
	return ingest.BatchResult{Processed: 3, Completed: 2, Failed: 1}, nil
}

type fixture struct {
	srv   *Server
	store *store.Store
	crawl *fakeCrawler
	repro *fakeReprocessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	f := &fixture{store: s, crawl: &fakeCrawler{}, repro: &fakeReprocessor{}}
	f.srv = New(Deps{
		Crawler:     f.crawl,
		Syncer:      fakeSyncer{},
		Reprocessor: f.repro,
		Keywords:    s,
		Raws:        s,
		DB:          s,
	}, discardLogger())
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.Close()
	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCrawl(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/crawl", `{"keyword":"golang","portalName":"foundit"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if f.crawl.got.Keyword != "golang" || f.crawl.got.PortalName != "foundit" {
		t.Errorf("crawler got %+v", f.crawl.got)
	}
	var sum crawler.Summary
	decode(t, rec, &sum)
	if sum.NewJobs != 3 || sum.RunID != "run-1" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestCrawl_EmptyBodyCrawlsDue(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/crawl", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.crawl.got != (crawler.CrawlRequest{}) {
		t.Errorf("crawler got %+v, want empty request", f.crawl.got)
	}
}

func TestCrawl_Errors(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/crawl", `{"keyword":"golang"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("keyword without portal: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/crawl", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d", rec.Code)
	}
	f.crawl.err = fmt.Errorf("java on foundit: %w", model.ErrKeywordNotConfigured)
	if rec := f.do(t, http.MethodPost, "/crawl", `{"keyword":"java","portalName":"foundit"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unconfigured keyword: status = %d", rec.Code)
	}
}

func TestSync(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodPost, "/sync", "")
	var sum syncer.Summary
	decode(t, rec, &sum)
	if rec.Code != http.StatusOK || sum.Created != 1 || sum.Merged != 1 {
		t.Fatalf("got %d %+v", rec.Code, sum)
	}
}

func TestReprocess(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reprocess", `{"id": 42}`)
	var one reprocessResponse
	decode(t, rec, &one)
	if rec.Code != http.StatusOK || f.repro.id != 42 || one.Completed != 1 || one.NewJobs != 2 {
		t.Fatalf("single: %d %+v", rec.Code, one)
	}

	rec = f.do(t, http.MethodPost, "/reprocess", "")
	var batch reprocessResponse
	decode(t, rec, &batch)
	if batch.Processed != 3 || batch.Failed != 1 {
		t.Fatalf("batch: %+v", batch)
	}

	f.repro.err = fmt.Errorf("reopening raw response 7: %w", model.ErrInvalidTransition)
	if rec := f.do(t, http.MethodPost, "/reprocess", `{"id": 7}`); rec.Code != http.StatusConflict {
		t.Errorf("invalid transition: status = %d", rec.Code)
	}
}

func TestKeywordsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.RegisterKeyword(ctx, "golang", "foundit", ""); err != nil {
		t.Fatalf("RegisterKeyword: %v", err)
	}
	if _, err := f.store.PersistRaw(ctx, model.RawResponse{PortalName: "foundit", Keyword: "golang"}); err != nil {
		t.Fatalf("PersistRaw: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/keywords", "")
	var kws []keywordView
	decode(t, rec, &kws)
	if len(kws) != 1 || kws[0].Keyword != "golang" || !kws[0].IsActive || kws[0].LastCrawledDate != nil {
		t.Errorf("keywords = %+v", kws)
	}

	rec = f.do(t, http.MethodGet, "/raw-responses/stats", "")
	var stats map[string]int
	decode(t, rec, &stats)
	if stats["PENDING"] != 1 || stats["FAILED"] != 0 {
		t.Errorf("stats = %v", stats)
	}
	if _, ok := stats["COMPLETED"]; !ok {
		t.Error("every status should be reported")
	}
}
