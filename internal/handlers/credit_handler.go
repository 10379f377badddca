package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

type CreditHandler struct {
	creditService *services.CreditService
}

func NewCreditHandler(creditService *services.CreditService) *CreditHandler {
	return &CreditHandler{creditService: creditService}
}

// GetBalance godoc
// @Summary Get the tenant's credit balance
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/credits/balance [get]
func (h *CreditHandler) GetBalance(c *gin.Context) {
	tenant := tenantID(c)
	balance, err := h.creditService.Balance(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, err, "Failed to read balance")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenant, "balance": balance})
}

// ListTransactions godoc
// @Summary List ledger transactions
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} utils.PaginatedResponse
// @Router /api/v1/credits/transactions [get]
func (h *CreditHandler) ListTransactions(c *gin.Context) {
	page, pageSize := utils.ParsePagination(c)
	txns, total, err := h.creditService.Transactions(c.Request.Context(), tenantID(c), utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		respondError(c, err, "Failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, utils.NewPaginatedResponse(txns, total, page, pageSize))
}

// EstimateCost godoc
// @Summary Price a message
// @Description Cost of sending a message to a number of recipients, checked against the current balance
// @Tags credits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CostEstimateRequest true "Message to price"
// @Success 200 {object} models.CostEstimateResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/credits/estimate [post]
func (h *CreditHandler) EstimateCost(c *gin.Context) {
	var req models.CostEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	estimate, err := h.creditService.Estimate(c.Request.Context(), tenantID(c), &req)
	if err != nil {
		respondError(c, err, "Failed to estimate cost")
		return
	}
	c.JSON(http.StatusOK, estimate)
}
