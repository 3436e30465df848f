package server

import (
	"errors"
	"net/http"

	"github.com/First008/vcare/internal/templates"
	"github.com/First008/vcare/internal/usecase"
	"github.com/First008/vcare/pkg/telemetry"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the response body for errors
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// HealthResponse is the response body for /health
type HealthResponse struct {
	Status   string   `json:"status"`
	UseCases []string `json:"use_cases"`
}

// handleHealth handles GET /health requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		UseCases: s.registry.Names(),
	})
}

// handleListUseCases handles GET /v1/usecases
func (s *Server) handleListUseCases(c *gin.Context) {
	names := s.registry.Names()
	c.JSON(http.StatusOK, gin.H{
		"use_cases": names,
		"count":     len(names),
	})
}

// statusFor maps a failed result's stage to an HTTP status
func statusFor(result map[string]any) int {
	if !usecase.IsError(result) {
		return http.StatusOK
	}
	if result["stage"] == usecase.StageValidation {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) bindInput(c *gin.Context) (map[string]any, bool) {
	var input map[string]any
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return nil, false
	}
	return input, true
}

func (s *Server) useCaseError(c *gin.Context, name string, err error) {
	switch {
	case errors.Is(err, usecase.ErrUnknownUseCase):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, usecase.ErrStreamingUnsupported):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Str("use_case", name).Msg("Use case failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// handleRun handles POST /v1/usecases/:name
func (s *Server) handleRun(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.registry.Get(name); !ok {
		s.useCaseError(c, name, usecase.ErrUnknownUseCase)
		return
	}

	input, ok := s.bindInput(c)
	if !ok {
		return
	}

	result, err := s.registry.Run(c.Request.Context(), name, input)
	if err != nil {
		s.useCaseError(c, name, err)
		return
	}
	c.JSON(statusFor(result), result)
}

// handleStream handles POST /v1/usecases/:name/stream. Each model chunk is
// sent as a "chunk" event and the parsed result as a final "result" event.
func (s *Server) handleStream(c *gin.Context) {
	name := c.Param("name")
	u, ok := s.registry.Get(name)
	if !ok {
		s.useCaseError(c, name, usecase.ErrUnknownUseCase)
		return
	}
	if _, ok := u.(usecase.Streamer); !ok {
		s.useCaseError(c, name, usecase.ErrStreamingUnsupported)
		return
	}

	input, ok := s.bindInput(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	result, err := s.registry.Stream(c.Request.Context(), name, input, func(text string) {
		c.SSEvent("chunk", gin.H{"text": text})
		c.Writer.Flush()
	})
	if err != nil {
		c.SSEvent("error", ErrorResponse{Error: err.Error()})
		c.Writer.Flush()
		return
	}

	event := "result"
	if usecase.IsError(result) {
		event = "error"
	}
	c.SSEvent(event, result)
	c.Writer.Flush()
}

// UsageResponse is the response body for /v1/usage
type UsageResponse struct {
	Daily telemetry.DailyStats `json:"daily"`
	Total telemetry.TotalStats `json:"total"`
}

// handleUsage handles GET /v1/usage
func (s *Server) handleUsage(c *gin.Context) {
	if s.usage == nil {
		c.JSON(http.StatusOK, UsageResponse{})
		return
	}
	c.JSON(http.StatusOK, UsageResponse{
		Daily: s.usage.GetDailyStats(),
		Total: s.usage.GetTotalStats(),
	})
}

func (s *Server) templateStore(c *gin.Context) (templates.Store, bool) {
	if s.templates == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "template store is not configured"})
		return nil, false
	}
	return s.templates, true
}

// handleListTemplates handles GET /v1/templates?use_case=
func (s *Server) handleListTemplates(c *gin.Context) {
	store, ok := s.templateStore(c)
	if !ok {
		return
	}
	list, err := store.List(c.Request.Context(), c.Query("use_case"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list templates")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list, "count": len(list)})
}

// handleGetTemplate handles GET /v1/templates/:name
func (s *Server) handleGetTemplate(c *gin.Context) {
	store, ok := s.templateStore(c)
	if !ok {
		return
	}
	t, err := store.Get(c.Request.Context(), c.Param("name"))
	switch {
	case errors.Is(err, templates.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusOK, t)
	}
}

// handlePutTemplate handles PUT /v1/templates/:name. The path name wins over
// any name in the body.
func (s *Server) handlePutTemplate(c *gin.Context) {
	store, ok := s.templateStore(c)
	if !ok {
		return
	}

	var t templates.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid template: " + err.Error()})
		return
	}
	t.Name = c.Param("name")
	if err := t.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := store.Put(c.Request.Context(), t); err != nil {
		s.logger.Error().Err(err).Str("template", t.Name).Msg("Failed to store template")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	s.logger.Info().Str("template", t.Name).Str("use_case", t.UseCase).Msg("Template stored")
	c.JSON(http.StatusOK, t)
}

// handleDeleteTemplate handles DELETE /v1/templates/:name
func (s *Server) handleDeleteTemplate(c *gin.Context) {
	store, ok := s.templateStore(c)
	if !ok {
		return
	}
	removed, err := store.Remove(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: templates.ErrNotFound.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
