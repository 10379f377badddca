package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services/excel"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

// maxImportSize caps uploaded recipient spreadsheets
const maxImportSize = 10 << 20

type BatchCampaignHandler struct {
	batchService *services.BatchCampaignService
}

func NewBatchCampaignHandler(batchService *services.BatchCampaignService) *BatchCampaignHandler {
	return &BatchCampaignHandler{batchService: batchService}
}

// ScheduleBatchCampaign godoc
// @Summary Schedule a batch campaign
// @Description Splits the recipients into percentage sized batches sent interval_hours apart, starting at start_date
// @Tags batch-campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ScheduleBatchCampaignRequest true "Schedule request"
// @Success 201 {object} models.BatchCampaignResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/batch-campaigns [post]
func (h *BatchCampaignHandler) ScheduleBatchCampaign(c *gin.Context) {
	var req models.ScheduleBatchCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	response, err := h.batchService.Schedule(c.Request.Context(), tenantID(c), &req)
	if err != nil {
		respondError(c, err, "Failed to schedule batch campaign")
		return
	}
	c.JSON(http.StatusCreated, response)
}

// ImportBatchCampaign godoc
// @Summary Schedule a batch campaign from a spreadsheet
// @Description Reads recipients from the lead_id or phone column of an .xlsx file
// @Tags batch-campaigns
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Recipient spreadsheet (.xlsx)"
// @Param name formData string true "Campaign name"
// @Param message formData string true "Message"
// @Param start_date formData string true "RFC3339 start date"
// @Param percentage_per_batch formData int true "Percentage of recipients per batch"
// @Param interval_hours formData int true "Hours between batches"
// @Param auto_repeat formData bool false "Keep sending batches until all recipients are reached"
// @Success 201 {object} models.BatchImportResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/batch-campaigns/import [post]
func (h *BatchCampaignHandler) ImportBatchCampaign(c *gin.Context) {
	var form models.ImportBatchCampaignForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "details": err.Error()})
		return
	}
	if fileHeader.Size > maxImportSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", maxImportSize)})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open file", "details": err.Error()})
		return
	}
	defer file.Close()

	imported, err := excel.ReadRecipients(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read spreadsheet", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tenant := tenantID(c)
	leadIDs, unmatched, err := h.batchService.ResolveImported(ctx, tenant, imported)
	if err != nil {
		respondError(c, err, "Failed to resolve recipients")
		return
	}

	response, err := h.batchService.Schedule(ctx, tenant, form.ToRequest(leadIDs))
	if err != nil {
		respondError(c, err, "Failed to schedule batch campaign")
		return
	}
	c.JSON(http.StatusCreated, models.BatchImportResponse{
		BatchCampaignResponse: *response,
		RowsRead:              imported.RowsRead,
		UnmatchedPhones:       unmatched,
	})
}

// ListBatchCampaigns godoc
// @Summary List batch campaigns
// @Tags batch-campaigns
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} utils.PaginatedResponse
// @Router /api/v1/batch-campaigns [get]
func (h *BatchCampaignHandler) ListBatchCampaigns(c *gin.Context) {
	page, pageSize := utils.ParsePagination(c)
	campaigns, total, err := h.batchService.List(c.Request.Context(), tenantID(c), utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		respondError(c, err, "Failed to list batch campaigns")
		return
	}
	c.JSON(http.StatusOK, utils.NewPaginatedResponse(campaigns, total, page, pageSize))
}

// GetBatchCampaign godoc
// @Summary Get a batch campaign
// @Tags batch-campaigns
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch campaign ID"
// @Success 200 {object} models.BatchCampaign
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/batch-campaigns/{id} [get]
func (h *BatchCampaignHandler) GetBatchCampaign(c *gin.Context) {
	campaign, err := h.batchService.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get batch campaign")
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// ExportBatchReport godoc
// @Summary Download a batch campaign report
// @Description Summary and per-recipient status as an .xlsx file
// @Tags batch-campaigns
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path string true "Batch campaign ID"
// @Success 200 {file} binary "Excel file"
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/batch-campaigns/{id}/report [get]
func (h *BatchCampaignHandler) ExportBatchReport(c *gin.Context) {
	campaign, recipients, err := h.batchService.Recipients(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load batch campaign")
		return
	}

	filename := fmt.Sprintf("batch_campaign_%s.xlsx", campaign.ID)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Cache-Control", "must-revalidate")
	c.Status(http.StatusOK)
	if err := excel.WriteBatchReport(c.Writer, campaign, recipients); err != nil {
		_ = c.Error(err)
	}
}

// PauseBatchCampaign godoc
// @Summary Pause a batch campaign
// @Tags batch-campaigns
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch campaign ID"
// @Success 200 {object} models.BatchCampaign
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/batch-campaigns/{id}/pause [post]
func (h *BatchCampaignHandler) PauseBatchCampaign(c *gin.Context) {
	h.transition(c, h.batchService.Pause, "Failed to pause batch campaign")
}

// ResumeBatchCampaign godoc
// @Summary Resume a paused batch campaign
// @Tags batch-campaigns
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch campaign ID"
// @Success 200 {object} models.BatchCampaign
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/batch-campaigns/{id}/resume [post]
func (h *BatchCampaignHandler) ResumeBatchCampaign(c *gin.Context) {
	h.transition(c, h.batchService.Resume, "Failed to resume batch campaign")
}

// CancelBatchCampaign godoc
// @Summary Cancel a batch campaign
// @Tags batch-campaigns
// @Produce json
// @Security BearerAuth
// @Param id path string true "Batch campaign ID"
// @Success 200 {object} models.BatchCampaign
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/batch-campaigns/{id}/cancel [post]
func (h *BatchCampaignHandler) CancelBatchCampaign(c *gin.Context) {
	h.transition(c, h.batchService.Cancel, "Failed to cancel batch campaign")
}

func (h *BatchCampaignHandler) transition(c *gin.Context, fn func(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error), fallback string) {
	campaign, err := fn(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, fallback)
		return
	}
	c.JSON(http.StatusOK, campaign)
}
