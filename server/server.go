// Package server exposes the analysis and fix pipeline as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/access-assistant/backend/analyzer"
	"github.com/access-assistant/backend/coordinator"
	"github.com/access-assistant/backend/logging"
	"github.com/access-assistant/backend/middleware"
	"github.com/access-assistant/backend/relay"
	"github.com/access-assistant/backend/stats"
	"github.com/access-assistant/backend/workspace"
)

// Analyzer produces accessibility reports
type Analyzer interface {
	Analyze(ctx context.Context, content string) (*analyzer.Report, error)
}

// Deps are the collaborators the API is built from. Usage and RateLimiter may be nil.
type Deps struct {
	Analyzer    Analyzer
	Coordinator *coordinator.Coordinator
	Relay       *relay.Handler
	Documents   *workspace.Store
	Statistics  *logging.Statistics
	Usage       *stats.Storage
	RateLimiter *middleware.RateLimiter
	Provider    string
	Logger      log.Interface
}

// Server is the HTTP API
type Server struct {
	deps   Deps
	logger log.Interface
	router *gin.Engine
}

// New builds the router
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Log
	}
	s := &Server{deps: deps, logger: logger}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(middleware.ErrorHandler(s.logger))
	r.Use(middleware.CORS())
	if s.deps.RateLimiter != nil {
		r.Use(s.deps.RateLimiter.RateLimit())
	}
	if s.deps.Statistics != nil {
		r.Use(middleware.Stats(s.deps.Statistics))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/image-proxy"})))

	api := r.Group("/api")
	{
		api.GET("/health", s.health)

		api.POST("/analyze", s.analyze)
		api.POST("/suggest-fix", s.suggestFix)
		if s.deps.Relay != nil {
			api.GET("/image-proxy", s.deps.Relay.ServeImage)
		}

		docs := api.Group("/documents")
		{
			docs.POST("", s.createDocument)
			docs.GET("/:id", s.getDocument)
			docs.PUT("/:id/content", s.updateContent)
			docs.POST("/:id/analyze", s.analyzeDocument)
			docs.POST("/:id/issues/:issueId/fix", s.fixIssue)
			docs.GET("/:id/workflows/:workflowId", s.getWorkflow)
			docs.POST("/:id/workflows/:workflowId/apply", s.applyWorkflow)
			docs.POST("/:id/workflows/:workflowId/dismiss", s.dismissWorkflow)
		}

		api.GET("/statistics", s.statistics)
		api.GET("/statistics/:month", s.monthlyStatistics)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Server exited")
	return nil
}
