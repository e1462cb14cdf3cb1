package security

import (
	"errors"
	"strconv"

	"dexflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// GinHandlers contains HTTP handlers for the operator alert surface.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListAlertsHandler handles GET requests for unresolved alerts.
// Query parameter: limit
func (h *GinHandlers) ListAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		alerts, err := h.service.OpenAlerts(limit)
		response.Handle(c, alerts, err)
	}
}

// ResolveAlertHandler handles POST requests resolving an alert.
// URL parameter: alert_id; body: {"resolution": "..."}
func (h *GinHandlers) ResolveAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Resolution string `json:"resolution" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "resolution is required")
			return
		}

		err := h.service.ResolveAlert(c.Param("alert_id"), body.Resolution)
		if errors.Is(err, ErrAlertNotFound) {
			response.NotFound(c, "Alert not found")
			return
		}
		response.Handle(c, gin.H{"alert_id": c.Param("alert_id"), "resolution": body.Resolution}, err)
	}
}
