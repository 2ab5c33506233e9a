package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/amishk599/jobsync/internal/crawler"
	"github.com/amishk599/jobsync/internal/ingest"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/syncer"
)

// Crawler is the crawl trigger.
type Crawler interface {
	CrawlNow(ctx context.Context, req crawler.CrawlRequest) (crawler.Summary, error)
}

// Syncer is the sync trigger.
type Syncer interface {
	SyncUnsynced(ctx context.Context) (syncer.Summary, error)
}

// Reprocessor replays stored raw responses.
type Reprocessor interface {
	Reprocess(ctx context.Context, id int64) (ingest.Result, error)
	ReprocessPending(ctx context.Context) (ingest.BatchResult, error)
}

// Deps are the collaborators behind the admin API.
type Deps struct {
	Crawler     Crawler
	Syncer      Syncer
	Reprocessor Reprocessor
	Keywords    model.KeywordStore
	Raws        model.RawResponseStore
	DB          Pinger // optional; checked by /health
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping() error
}

// Server is the HTTP admin API.
type Server struct {
	deps   Deps
	echo   *echo.Echo
	logger *slog.Logger
}

func New(deps Deps, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String()}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			logger.Info("http request", args...)
			return nil
		},
	}))

	s := &Server{deps: deps, echo: e, logger: logger}
	e.GET("/health", s.health)
	e.POST("/crawl", s.crawl)
	e.POST("/sync", s.sync)
	e.POST("/reprocess", s.reprocess)
	e.GET("/keywords", s.keywords)
	e.GET("/raw-responses/stats", s.rawStats)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin API listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("admin API stopped")
	return nil
}
