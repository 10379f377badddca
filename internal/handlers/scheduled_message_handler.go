package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

type ScheduledMessageHandler struct {
	messageService *services.ScheduledMessageService
}

func NewScheduledMessageHandler(messageService *services.ScheduledMessageService) *ScheduledMessageHandler {
	return &ScheduledMessageHandler{messageService: messageService}
}

// CreateScheduledMessage godoc
// @Summary Schedule a one-off message
// @Tags scheduled-messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateScheduledMessageRequest true "Scheduled message"
// @Success 201 {object} models.ScheduledMessage
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/scheduled-messages [post]
func (h *ScheduledMessageHandler) CreateScheduledMessage(c *gin.Context) {
	var req models.CreateScheduledMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	msg, err := h.messageService.Create(c.Request.Context(), tenantID(c), &req)
	if err != nil {
		respondError(c, err, "Failed to schedule message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListScheduledMessages godoc
// @Summary List scheduled messages
// @Tags scheduled-messages
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status" Enums(pending, sent, cancelled, failed)
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} utils.PaginatedResponse
// @Router /api/v1/scheduled-messages [get]
func (h *ScheduledMessageHandler) ListScheduledMessages(c *gin.Context) {
	status := models.ScheduledMessageStatus(c.Query("status"))
	page, pageSize := utils.ParsePagination(c)
	messages, total, err := h.messageService.List(c.Request.Context(), tenantID(c), status, utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		respondError(c, err, "Failed to list scheduled messages")
		return
	}
	c.JSON(http.StatusOK, utils.NewPaginatedResponse(messages, total, page, pageSize))
}

// GetScheduledMessage godoc
// @Summary Get a scheduled message
// @Tags scheduled-messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scheduled message ID"
// @Success 200 {object} models.ScheduledMessage
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/scheduled-messages/{id} [get]
func (h *ScheduledMessageHandler) GetScheduledMessage(c *gin.Context) {
	msg, err := h.messageService.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get scheduled message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// UpdateScheduledMessage godoc
// @Summary Edit a pending message
// @Description Only pending messages that no sweep has picked up can be edited
// @Tags scheduled-messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scheduled message ID"
// @Param request body models.UpdateScheduledMessageRequest true "Changes"
// @Success 200 {object} models.ScheduledMessage
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/scheduled-messages/{id} [put]
func (h *ScheduledMessageHandler) UpdateScheduledMessage(c *gin.Context) {
	var req models.UpdateScheduledMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	msg, err := h.messageService.Update(c.Request.Context(), tenantID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err, "Failed to update scheduled message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// CancelScheduledMessage godoc
// @Summary Cancel a pending message
// @Tags scheduled-messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scheduled message ID"
// @Success 200 {object} models.ScheduledMessage
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/scheduled-messages/{id}/cancel [post]
func (h *ScheduledMessageHandler) CancelScheduledMessage(c *gin.Context) {
	msg, err := h.messageService.Cancel(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to cancel scheduled message")
		return
	}
	c.JSON(http.StatusOK, msg)
}
