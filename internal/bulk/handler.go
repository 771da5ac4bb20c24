package bulk

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

// Handler handles HTTP requests for bulk operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new bulk operations handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers bulk operation routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	bulk := router.Group("/bulk")
	{
		bulk.POST("/validate", h.validateRequest)
		bulk.POST("/jobs", h.confirmJob)
		bulk.GET("/jobs", h.listJobs)
		bulk.GET("/jobs/:id", h.getJob)
		bulk.POST("/jobs/:id/pause", h.pauseJob)
		bulk.POST("/jobs/:id/resume", h.resumeJob)
		bulk.POST("/jobs/:id/cancel", h.cancelJob)
		bulk.GET("/jobs/:id/results", h.jobResults)
		bulk.GET("/jobs/:id/artifact", h.artifactLink)
	}
}

// validateRequest handles POST /api/v1/bulk/validate
func (h *Handler) validateRequest(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.service.Validate(&req))
}

// confirmJob handles POST /api/v1/bulk/jobs
func (h *Handler) confirmJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, _ := auth.FromContext(c)

	job, err := h.service.Confirm(c.Request.Context(), &req, user.UserID)
	if err != nil {
		var invalid *ValidationFailedError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "validation failed",
				"issues": invalid.Result.Issues,
			})
			return
		}
		h.logger.Error("Failed to confirm bulk job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// listJobs handles GET /api/v1/bulk/jobs
func (h *Handler) listJobs(c *gin.Context) {
	filters := &JobFilters{
		Page:     h.getIntParam(c, "page", 1),
		PageSize: h.getIntParam(c, "page_size", 20),
	}

	if status := c.Query("status"); status != "" {
		s := JobStatus(status)
		switch s {
		case JobQueued, JobRunning, JobPaused, JobCompleted, JobCancelled, JobFailed:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job status"})
			return
		}
		filters.Status = &s
	}
	if operation := c.Query("operation"); operation != "" {
		op, ok := ParseOperationType(operation)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation type"})
			return
		}
		filters.OperationType = &op
	}

	jobs, total, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list bulk jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":      jobs,
		"total":     total,
		"page":      filters.Page,
		"page_size": filters.PageSize,
	})
}

// getJob handles GET /api/v1/bulk/jobs/:id
func (h *Handler) getJob(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get bulk job", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// pauseJob handles POST /api/v1/bulk/jobs/:id/pause
func (h *Handler) pauseJob(c *gin.Context) {
	h.control(c, "pause", h.service.Pause)
}

// resumeJob handles POST /api/v1/bulk/jobs/:id/resume
func (h *Handler) resumeJob(c *gin.Context) {
	h.control(c, "resume", h.service.Resume)
}

// cancelJob handles POST /api/v1/bulk/jobs/:id/cancel
func (h *Handler) cancelJob(c *gin.Context) {
	h.control(c, "cancel", h.service.Cancel)
}

// jobResults handles GET /api/v1/bulk/jobs/:id/results
func (h *Handler) jobResults(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get bulk job", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":    id,
		"progress": view.Job.Progress,
		"results":  view.Results,
	})
}

// artifactLink handles GET /api/v1/bulk/jobs/:id/artifact
func (h *Handler) artifactLink(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	url, err := h.service.ArtifactLink(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoArtifact) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job has no export artifact"})
			return
		}
		h.respondError(c, "Failed to link artifact", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// control runs one lifecycle action and reports the resulting job view.
func (h *Handler) control(c *gin.Context, action string, fn func(ctx context.Context, id uuid.UUID) error) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to "+action+" bulk job", err)
		return
	}

	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get bulk job", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	var invalid *workflows.ErrInvalidTransition
	switch {
	case errors.Is(err, ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "bulk job not found"})
	case errors.Is(err, ErrJobOwned):
		c.JSON(http.StatusConflict, gin.H{"error": "job is owned by another worker"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{"error": invalid.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) getIntParam(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
