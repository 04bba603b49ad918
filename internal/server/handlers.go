package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/experiment"
	"github.com/maintai/abtest/internal/stats"
	"github.com/maintai/abtest/internal/store"
)

// DefaultConversionType is recorded when a conversion request names none.
const DefaultConversionType = "button_click"

// HealthChecker is implemented by backends that can report connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status        string `json:"status"`
	Experiments   int    `json:"experiments"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if hc, ok := s.store.(HealthChecker); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := hc.Ping(ctx); err != nil {
			s.logger.Error("health check failed: storage unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "storage unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		Experiments:   s.catalog.Len(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

type variantResponse struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Weight float64           `json:"weight"`
	Config experiment.Config `json:"config,omitempty"`
}

type experimentResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Active      bool              `json:"active"`
	State       experiment.State  `json:"state"`
	StartDate   *time.Time        `json:"start_date,omitempty"`
	EndDate     *time.Time        `json:"end_date,omitempty"`
	Variants    []variantResponse `json:"variants"`
}

func toExperimentResponse(e experiment.Experiment, now time.Time) experimentResponse {
	resp := experimentResponse{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Active:      e.Active,
		State:       e.State(now),
		Variants:    make([]variantResponse, 0, len(e.Variants)),
	}
	if !e.StartDate.IsZero() {
		start := e.StartDate
		resp.StartDate = &start
	}
	if !e.EndDate.IsZero() {
		end := e.EndDate
		resp.EndDate = &end
	}
	for _, v := range e.Variants {
		resp.Variants = append(resp.Variants, variantResponse{ID: v.ID, Name: v.Name, Weight: v.Weight, Config: v.Config})
	}
	return resp
}

func (s *Server) handleExperiments(c *gin.Context) {
	now := time.Now()
	all := s.catalog.All()
	out := make([]experimentResponse, 0, len(all))
	for _, e := range all {
		out = append(out, toExperimentResponse(e, now))
	}
	c.JSON(http.StatusOK, gin.H{"experiments": out})
}

func (s *Server) handleIdentity(c *gin.Context) {
	m, ok := s.scope(c)
	if !ok {
		return
	}

	id, err := m.Identifier(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identifier": id})
}

func (s *Server) handleVariant(c *gin.Context) {
	m, ok := s.scope(c)
	if !ok {
		return
	}

	id := c.Param("id")
	variant, assigned, err := m.AssignVariant(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiment_id": id, "variant_id": variant, "assigned": assigned})
}

func (s *Server) handleVariantConfig(c *gin.Context) {
	m, ok := s.scope(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	cfg, _, err := m.VariantConfig(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	// Already assigned by VariantConfig; this only reads it back.
	variant, _, err := m.Variant(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiment_id": id, "variant_id": variant, "config": cfg})
}

func (s *Server) handleInVariant(c *gin.Context) {
	m, ok := s.scope(c)
	if !ok {
		return
	}

	in, err := m.IsInVariant(c.Request.Context(), c.Param("id"), c.Param("variant"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"in_variant": in})
}

type conversionRequest struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value"`
}

func (s *Server) handleConversion(c *gin.Context) {
	m, ok := s.scope(c)
	if !ok {
		return
	}

	var req conversionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
			return
		}
	}
	if req.Type == "" {
		req.Type = DefaultConversionType
	}
	value := abtest.DefaultConversionValue
	if req.Value != nil {
		value = *req.Value
	}

	if err := m.TrackConversion(c.Request.Context(), c.Param("id"), req.Type, value); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	a, err := s.manager.Analytics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiments": a})
}

func (s *Server) handleResults(c *gin.Context) {
	e, found := s.catalog.Get(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
		return
	}

	a, err := s.manager.Analytics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats.Analyze(e, a[e.ID]))
}

// handleReset resets the scope of the request. The event log is shared, so
// analytics start over for everyone; other visitors keep their assignments.
func (s *Server) handleReset(c *gin.Context) {
	m, ok := s.scope(c)
	if !ok {
		return
	}

	if err := m.Reset(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// scope resolves the request's manager or writes a 400.
func (s *Server) scope(c *gin.Context) (*abtest.Manager, bool) {
	m, ok := s.managerFor(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + VisitorHeader})
		return nil, false
	}
	return m, true
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		s.logger.Error("storage unavailable", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
