package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/amishk599/jobsync/internal/crawler"
	"github.com/amishk599/jobsync/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

// fail maps domain errors to status codes.
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrKeywordNotConfigured), errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, model.ErrUnknownPortal):
		status = http.StatusBadRequest
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) health(c echo.Context) error {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(); err != nil {
			s.logger.Error("health check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) crawl(c echo.Context) error {
	var req crawler.CrawlRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		}
	}
	if req.Keyword != "" && req.PortalName == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "portalName is required when keyword is set"})
	}
	sum, err := s.deps.Crawler.CrawlNow(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) sync(c echo.Context) error {
	sum, err := s.deps.Syncer.SyncUnsynced(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

type reprocessRequest struct {
	ID int64 `json:"id"`
}

type reprocessResponse struct {
	Processed int    `json:"processed"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	NewJobs   int    `json:"newJobs"`
	Error     string `json:"error,omitempty"`
}

// reprocess replays one raw response when an id is given, otherwise every
// PENDING one.
func (s *Server) reprocess(c echo.Context) error {
	var req reprocessRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		}
	}
	ctx := c.Request().Context()

	if req.ID != 0 {
		res, err := s.deps.Reprocessor.Reprocess(ctx, req.ID)
		if err != nil {
			return fail(c, err)
		}
		out := reprocessResponse{Processed: 1, NewJobs: len(res.NewJobs), Error: res.Error}
		if res.Status == model.StatusFailed {
			out.Failed = 1
		} else {
			out.Completed = 1
		}
		return c.JSON(http.StatusOK, out)
	}

	batch, err := s.deps.Reprocessor.ReprocessPending(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, reprocessResponse{
		Processed: batch.Processed,
		Completed: batch.Completed,
		Failed:    batch.Failed,
		NewJobs:   len(batch.NewJobs),
	})
}

type keywordView struct {
	ID              int64      `json:"id"`
	Keyword         string     `json:"keyword"`
	PortalName      string     `json:"portalName"`
	PortalURL       string     `json:"portalUrl,omitempty"`
	IsActive        bool       `json:"isActive"`
	LastCrawledDate *time.Time `json:"lastCrawledDate"`
}

func (s *Server) keywords(c echo.Context) error {
	kws, err := s.deps.Keywords.ListKeywords(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	out := make([]keywordView, 0, len(kws))
	for _, k := range kws {
		out = append(out, keywordView{
			ID:              k.ID,
			Keyword:         k.Keyword,
			PortalName:      k.PortalName,
			PortalURL:       k.PortalURL,
			IsActive:        k.IsActive,
			LastCrawledDate: k.LastCrawledDate,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) rawStats(c echo.Context) error {
	stats, err := s.deps.Raws.RawStats(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	out := map[string]int{}
	for _, st := range []model.ProcessingStatus{model.StatusPending, model.StatusProcessing, model.StatusCompleted, model.StatusFailed} {
		out[string(st)] = stats[st]
	}
	return c.JSON(http.StatusOK, out)
}
