package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
)

type AIHandler struct {
	aiService *services.AIAssistService
}

func NewAIHandler(aiService *services.AIAssistService) *AIHandler {
	return &AIHandler{
		aiService: aiService,
	}
}

// AssistMessage godoc
// @Summary Draft or rewrite a campaign message with AI
// @Description Charged a flat credit cost per call (draft_message 2, rewrite_message 1), refunded when the completion fails
// @Tags ai
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.AIAssistRequest true "AI request"
// @Success 200 {object} models.AIAssistResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 402 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/v1/ai/assist [post]
func (h *AIHandler) AssistMessage(c *gin.Context) {
	var req models.AIAssistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	response, err := h.aiService.Assist(c.Request.Context(), tenantID(c), &req)
	if err != nil {
		respondError(c, err, "Failed to generate message")
		return
	}
	c.JSON(http.StatusOK, response)
}
