package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

const sseHeartbeatInterval = 30 * time.Second

type ProcessLogHandler struct {
	processLogService *services.ProcessLogService
	sseHub            *services.SSEHub
}

func NewProcessLogHandler(processLogService *services.ProcessLogService, sseHub *services.SSEHub) *ProcessLogHandler {
	return &ProcessLogHandler{
		processLogService: processLogService,
		sseHub:            sseHub,
	}
}

// ListActivity godoc
// @Summary List the tenant's activity
// @Description State changes of enrollments, campaigns, batch campaigns, scheduled messages and credits
// @Tags activity
// @Produce json
// @Security BearerAuth
// @Param entity_type query string false "Entity type" example:"enrollment"
// @Param entity_id query string false "Entity ID"
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} utils.PaginatedResponse
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/activity [get]
func (h *ProcessLogHandler) ListActivity(c *gin.Context) {
	page, pageSize := utils.ParsePagination(c)
	logs, total, err := h.processLogService.List(c.Request.Context(), tenantID(c), c.Query("entity_type"), c.Query("entity_id"), utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		respondError(c, err, "Failed to get activity")
		return
	}
	c.JSON(http.StatusOK, utils.NewPaginatedResponse(logs, total, page, pageSize))
}

// StreamActivitySSE godoc
// @Summary Stream activity via Server-Sent Events (SSE)
// @Description Streams the tenant's activity, or one entity's when entity_type and entity_id are given
// @Tags activity
// @Produce text/event-stream
// @Security BearerAuth
// @Param entity_type query string false "Entity type" example:"batch_campaign"
// @Param entity_id query string false "Entity ID"
// @Success 200 "SSE stream"
// @Router /api/v1/activity/stream [get]
func (h *ProcessLogHandler) StreamActivitySSE(c *gin.Context) {
	tenant := tenantID(c)
	entityType := c.Query("entity_type")
	entityID := c.Query("entity_id")

	scope, id := "tenant", tenant
	if entityType != "" && entityID != "" {
		scope, id = entityType, entityID
	}

	// Set headers for SSE
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable buffering for nginx

	clientChan := h.sseHub.RegisterClient(scope, id)
	defer h.sseHub.UnregisterClient(scope, id, clientChan)

	c.SSEvent("connected", gin.H{
		"scope":   scope,
		"id":      id,
		"message": "Connected to activity stream",
	})
	c.Writer.Flush()

	// Replay recent entries so the client sees what happened before it connected
	existing, _, err := h.processLogService.List(c.Request.Context(), tenant, entityType, entityID, 0, 100)
	if err == nil {
		for i := len(existing) - 1; i >= 0; i-- {
			logJSON, err := json.Marshal(existing[i])
			if err != nil {
				continue
			}
			message := fmt.Sprintf("event: activity\ndata: %s\n\n", string(logJSON))
			if _, err := c.Writer.Write([]byte(message)); err != nil {
				return
			}
		}
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			logrus.Debugf("SSE client disconnected: %s:%s", scope, id)
			return
		case now := <-heartbeat.C:
			if _, err := c.Writer.Write(services.Heartbeat(now)); err != nil {
				return
			}
			c.Writer.Flush()
		case message, ok := <-clientChan:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(message); err != nil {
				logrus.Errorf("Failed to write SSE message: %v", err)
				return
			}
			c.Writer.Flush()
		}
	}
}
