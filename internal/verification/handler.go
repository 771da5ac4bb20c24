package verification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

// Handler handles HTTP requests for verification status and review decisions
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new verification handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers verification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/verification")
	{
		group.GET("/status", h.status)
		group.GET("/capabilities/:capability", h.checkCapability)
		group.POST("/:entityId/resubmit", h.resubmit)

		admin := group.Group("")
		admin.Use(auth.RequireRoles(auth.RoleAdmin))
		{
			admin.GET("/queue", h.queue)
			admin.GET("/:entityId/history", h.history)
			admin.POST("/:entityId/approve", h.approve)
			admin.POST("/:entityId/reject", h.reject)
		}
	}
}

// status handles GET /api/v1/verification/status
func (h *Handler) status(c *gin.Context) {
	user, ok := auth.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	resp, err := h.service.StatusForUser(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("Failed to load verification status",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// checkCapability handles GET /api/v1/verification/capabilities/:capability.
// The gate decision is the payload, so a status-load fault answers 200 with
// an error decision instead of a transport failure.
func (h *Handler) checkCapability(c *gin.Context) {
	user, ok := auth.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	capability, ok := ParseCapability(c.Param("capability"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown capability"})
		return
	}

	resp, err := h.service.StatusForUser(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusOK, EvaluateGate(capability, CapabilityQuery{Err: err}))
		return
	}

	c.JSON(http.StatusOK, EvaluateGate(capability, CapabilityQuery{
		Capabilities: EffectiveCapabilities(resp, user.Role),
		Record:       resp.Record,
		Restrictions: resp.Restrictions,
	}))
}

// queue handles GET /api/v1/verification/queue
func (h *Handler) queue(c *gin.Context) {
	filters := &QueueFilters{
		Page:     h.getIntParam(c, "page", 1),
		PageSize: h.getIntParam(c, "page_size", 20),
	}

	if raw := c.Query("status"); raw != "" {
		status := Status(raw)
		switch status {
		case StatusPending, StatusApproved, StatusRejected:
			filters.Status = &status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
	}
	if raw := c.Query("entity_type"); raw != "" {
		entityType, ok := ParseEntityType(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
			return
		}
		filters.EntityType = &entityType
	}
	if search := c.Query("search"); search != "" {
		filters.SearchTerm = &search
	}

	result, err := h.service.Queue(c.Request.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list review queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// approve handles POST /api/v1/verification/:entityId/approve
func (h *Handler) approve(c *gin.Context) {
	var req struct {
		Notify bool `json:"notify"`
	}
	if !h.bindOptional(c, &req) {
		return
	}

	user, _ := auth.FromContext(c)

	record, err := h.service.Approve(c.Request.Context(), c.Param("entityId"), user.UserID, req.Notify)
	if err != nil {
		h.respondError(c, "Failed to approve entity", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// reject handles POST /api/v1/verification/:entityId/reject
func (h *Handler) reject(c *gin.Context) {
	var req struct {
		Notes  string `json:"notes" binding:"required"`
		Notify bool   `json:"notify"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rejection requires reviewer notes"})
		return
	}

	user, _ := auth.FromContext(c)

	record, err := h.service.Reject(c.Request.Context(), c.Param("entityId"), user.UserID, req.Notes, req.Notify)
	if err != nil {
		h.respondError(c, "Failed to reject entity", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// resubmit handles POST /api/v1/verification/:entityId/resubmit. Admins may
// resubmit on behalf of any entity; business users only for their own.
func (h *Handler) resubmit(c *gin.Context) {
	user, ok := auth.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	entityID := c.Param("entityId")
	if user.Role != auth.RoleAdmin {
		if user.LinkedEntityID == nil || *user.LinkedEntityID != entityID {
			c.JSON(http.StatusForbidden, gin.H{"error": "entity does not belong to caller"})
			return
		}
	}

	var req struct {
		EntityType string `json:"entityType"`
	}
	if !h.bindOptional(c, &req) {
		return
	}

	entityType, ok := ParseEntityType(req.EntityType)
	if !ok {
		switch user.Role {
		case auth.RoleVendor:
			entityType = EntityTypeVendor
		case auth.RoleBuyerOwner, auth.RoleBuyerManager:
			entityType = EntityTypeBuyer
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "entityType is required"})
			return
		}
	}

	record, err := h.service.Submit(c.Request.Context(), entityID, entityType)
	if err != nil {
		h.respondError(c, "Failed to resubmit entity", err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// history handles GET /api/v1/verification/:entityId/history
func (h *Handler) history(c *gin.Context) {
	entityID := c.Param("entityId")

	if _, err := h.service.Get(c.Request.Context(), entityID); err != nil {
		h.respondError(c, "Failed to load entity", err)
		return
	}

	entries, err := h.service.History(c.Request.Context(), entityID)
	if err != nil {
		h.respondError(c, "Failed to load status history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entityId": entityID, "history": entries})
}

// bindOptional decodes a JSON body when one is present. A missing body keeps
// the zero value.
func (h *Handler) bindOptional(c *gin.Context, target any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError maps service errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	var invalid *workflows.ErrInvalidTransition
	var validation *ValidationError
	switch {
	case errors.Is(err, ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "verification record not found"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{"error": invalid.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
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
