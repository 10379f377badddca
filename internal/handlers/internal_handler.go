package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
)

// InternalHandler serves the routes called by the external scheduler and operators
type InternalHandler struct {
	runner        *services.SchedulerRunner
	creditService *services.CreditService
}

func NewInternalHandler(runner *services.SchedulerRunner, creditService *services.CreditService) *InternalHandler {
	return &InternalHandler{
		runner:        runner,
		creditService: creditService,
	}
}

// SweepDueWork godoc
// @Summary Run every due-work sweep once
// @Description Sends due drip steps, due batches and due scheduled messages
// @Tags internal
// @Produce json
// @Param X-Trigger-Key header string true "Trigger key"
// @Success 200 {object} models.SweepDueWorkResult
// @Failure 401 {object} map[string]interface{}
// @Router /internal/sweep [post]
func (h *InternalHandler) SweepDueWork(c *gin.Context) {
	result := h.runner.SweepDueWork(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

// GrantCredits godoc
// @Summary Top up a tenant's credits
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Trigger-Key header string true "Trigger key"
// @Param request body models.GrantCreditsRequest true "Grant"
// @Success 201 {object} models.CreditTransaction
// @Failure 400 {object} map[string]interface{}
// @Router /internal/credits/grant [post]
func (h *InternalHandler) GrantCredits(c *gin.Context) {
	var req models.GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	txn, err := h.creditService.Grant(c.Request.Context(), req.TenantID, req.Amount, req.Reference)
	if err != nil {
		respondError(c, err, "Failed to grant credits")
		return
	}
	c.JSON(http.StatusCreated, txn)
}
