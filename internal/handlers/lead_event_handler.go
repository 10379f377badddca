package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
)

type LeadEventHandler struct {
	triggerService *services.TriggerService
}

func NewLeadEventHandler(triggerService *services.TriggerService) *LeadEventHandler {
	return &LeadEventHandler{triggerService: triggerService}
}

// PostLeadEvent godoc
// @Summary Submit a lead event
// @Description Evaluates the event against the tenant's active campaigns. Enrollment failures are counted, never returned.
// @Tags lead-events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.LeadEventRequest true "Lead event"
// @Success 202 {object} models.TriggerSummary
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/lead-events [post]
func (h *LeadEventHandler) PostLeadEvent(c *gin.Context) {
	var req models.LeadEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	summary := h.triggerService.HandleEvent(c.Request.Context(), models.LeadEvent{
		TenantID:   tenantID(c),
		LeadID:     req.LeadID,
		Type:       req.Type,
		Value:      req.Value,
		OccurredAt: time.Now(),
	})
	c.JSON(http.StatusAccepted, summary)
}
