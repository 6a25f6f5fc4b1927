package mockhorde

import (
	"log"
	"net/http"

	"github.com/VilotStar/StableHorder/internal/middleware"
	"github.com/VilotStar/StableHorder/internal/model"
	"github.com/gin-gonic/gin"
)

// Router builds the gin engine serving the mock horde API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the generate API and the admin enqueue endpoint.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	gen := r.Group("/api/v2/generate")
	{
		keyed := gen.Group("", middleware.APIKeyAuth(s.cfg.APIKeys))
		keyed.POST("/pop", s.Pop)
		keyed.POST("/async", s.Async)

		gen.GET("/check/:id", s.Check)
		gen.GET("/status/:id", s.Status)
	}

	admin := r.Group("/api/v2/admin", middleware.AdminTokenAuth(s.cfg.AdminToken))
	admin.POST("/jobs", s.EnqueueJob)
}

// ─────────────────────────────────────────────
// POST /api/v2/generate/pop
// ─────────────────────────────────────────────

// Pop hands the next suitable job to a worker, or an empty job.
func (s *Server) Pop(c *gin.Context) {
	var payload model.PopPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Input payload validation failed", "errors": err.Error()})
		return
	}

	job, skipped, err := s.popFor(c.Request.Context(), &payload)
	if err != nil {
		log.Printf("[mockhorde] pop failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "queue unavailable"})
		return
	}

	if job == nil {
		c.JSON(http.StatusOK, gin.H{
			"payload": gin.H{},
			"id":      nil,
			"skipped": skipped,
			"model":   nil,
		})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ─────────────────────────────────────────────
// POST /api/v2/generate/async
// ─────────────────────────────────────────────

// Async accepts a generation request.
func (s *Server) Async(c *gin.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Input payload validation failed", "errors": err.Error()})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "prompt is required"})
		return
	}
	if len(req.Models) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "exactly one model is required"})
		return
	}

	g := s.submit(&req, c.GetString(middleware.CtxKeyAPIKey))
	c.JSON(http.StatusAccepted, model.SubmitResponse{ID: g.id, Kudos: g.kudos})
}

// ─────────────────────────────────────────────
// GET /api/v2/generate/check/:id and /status/:id
// ─────────────────────────────────────────────

// Check reports progress of a generation.
func (s *Server) Check(c *gin.Context) {
	resp, ok := s.check(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Request Not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Status returns the full record of a generation.
func (s *Server) Status(c *gin.Context) {
	status, ok := s.status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Request Not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ─────────────────────────────────────────────
// POST /api/v2/admin/jobs
// ─────────────────────────────────────────────

// EnqueueJob adds a job to the queue.
func (s *Server) EnqueueJob(c *gin.Context) {
	var job model.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	id, err := s.Enqueue(c.Request.Context(), &job)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}
