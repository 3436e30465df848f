// Package server provides the HTTP API for the use case registry.
//
// The server package implements REST endpoints with Gin: use case runs (plain
// and Server-Sent Events streaming), prompt template management, usage
// statistics, Prometheus metrics and health checks. When a JWT secret is
// configured every /v1 route requires an HS256 bearer token.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/First008/vcare/internal/templates"
	"github.com/First008/vcare/internal/usecase"
	"github.com/First008/vcare/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Options are the collaborators served by the API
type Options struct {
	Registry  *usecase.Registry
	Templates templates.Store         // optional; template routes answer 503 without it
	Metrics   *telemetry.Metrics      // optional
	Usage     *telemetry.UsageTracker // optional; no budget is enforced without it
	JWTSecret string                  // empty disables authentication
	Logger    zerolog.Logger
}

// Server is the HTTP server for the vcare API
type Server struct {
	registry  *usecase.Registry
	templates templates.Store
	metrics   *telemetry.Metrics
	usage     *telemetry.UsageTracker
	secret    []byte
	logger    zerolog.Logger
	engine    *gin.Engine
}

// New creates the server and its routes
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(ginLogger(opts.Logger))
	engine.Use(gin.Recovery())

	s := &Server{
		registry:  opts.Registry,
		templates: opts.Templates,
		metrics:   opts.Metrics,
		usage:     opts.Usage,
		logger:    opts.Logger,
		engine:    engine,
	}
	if opts.JWTSecret != "" {
		s.secret = []byte(opts.JWTSecret)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.engine.Group("/v1")
	if s.secret != nil {
		v1.Use(s.requireToken())
	}

	v1.GET("/usecases", s.handleListUseCases)
	v1.POST("/usecases/:name", s.withinBudget(), s.handleRun)
	v1.POST("/usecases/:name/stream", s.withinBudget(), s.handleStream)

	v1.GET("/usage", s.handleUsage)

	v1.GET("/templates", s.handleListTemplates)
	v1.GET("/templates/:name", s.handleGetTemplate)
	v1.PUT("/templates/:name", s.handlePutTemplate)
	v1.DELETE("/templates/:name", s.handleDeleteTemplate)
}

// Handler exposes the routes, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Strs("use_cases", s.registry.Names()).
		Bool("auth", s.secret != nil).
		Msg("Starting HTTP server")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ginLogger creates a Gin middleware that logs using zerolog
func ginLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
