package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

type CampaignHandler struct {
	campaignService   *services.CampaignService
	enrollmentService *services.EnrollmentService
}

func NewCampaignHandler(campaignService *services.CampaignService, enrollmentService *services.EnrollmentService) *CampaignHandler {
	return &CampaignHandler{
		campaignService:   campaignService,
		enrollmentService: enrollmentService,
	}
}

// CreateCampaign godoc
// @Summary Create a drip campaign
// @Description Create a drip campaign with a trigger and an ordered list of steps
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateCampaignRequest true "Create campaign request"
// @Success 201 {object} models.CampaignResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req models.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	response, err := h.campaignService.CreateCampaign(c.Request.Context(), tenantID(c), &req)
	if err != nil {
		respondError(c, err, "Failed to create campaign")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListCampaigns godoc
// @Summary List drip campaigns
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} utils.PaginatedResponse
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	page, pageSize := utils.ParsePagination(c)
	campaigns, total, err := h.campaignService.ListCampaigns(c.Request.Context(), tenantID(c), utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		respondError(c, err, "Failed to list campaigns")
		return
	}
	c.JSON(http.StatusOK, utils.NewPaginatedResponse(campaigns, total, page, pageSize))
}

// GetCampaign godoc
// @Summary Get a drip campaign
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path string true "Campaign ID"
// @Success 200 {object} models.CampaignResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	response, err := h.campaignService.GetCampaign(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get campaign")
		return
	}
	c.JSON(http.StatusOK, response)
}

// SetCampaignActive godoc
// @Summary Activate or deactivate a campaign
// @Description Inactive campaigns do not match triggers and reject new enrollments; running enrollments continue
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Campaign ID"
// @Param request body models.SetCampaignActiveRequest true "Active flag"
// @Success 200 {object} models.CampaignResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/active [put]
func (h *CampaignHandler) SetCampaignActive(c *gin.Context) {
	var req models.SetCampaignActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	response, err := h.campaignService.SetActive(c.Request.Context(), tenantID(c), c.Param("id"), req.IsActive)
	if err != nil {
		respondError(c, err, "Failed to update campaign")
		return
	}
	c.JSON(http.StatusOK, response)
}

// Enroll godoc
// @Summary Enroll a lead into a campaign
// @Description Creates an enrollment at step 0. An existing enrollment of the lead is reported as skipped.
// @Tags enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Campaign ID"
// @Param request body models.EnrollRequest true "Enroll request"
// @Success 201 {object} models.EnrollResult
// @Success 200 {object} models.EnrollResult "Skipped"
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/enrollments [post]
func (h *CampaignHandler) Enroll(c *gin.Context) {
	var req models.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.enrollmentService.Enroll(c.Request.Context(), tenantID(c), c.Param("id"), req.LeadID, req.Trigger)
	if err != nil {
		respondError(c, err, "Failed to enroll lead")
		return
	}
	if result.Skipped {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ReEnroll godoc
// @Summary Re-enroll leads into a campaign
// @Description Restarts completed or cancelled enrollments, reactivates or resets paused ones and creates missing ones
// @Tags enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Campaign ID"
// @Param request body models.ReEnrollRequest true "Re-enroll request"
// @Success 200 {object} models.ReEnrollResult
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/re-enroll [post]
func (h *CampaignHandler) ReEnroll(c *gin.Context) {
	var req models.ReEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.enrollmentService.ReEnroll(c.Request.Context(), tenantID(c), c.Param("id"), req.LeadIDs, req.ResetProgress)
	if err != nil {
		respondError(c, err, "Failed to re-enroll leads")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListEnrollments godoc
// @Summary List a campaign's enrollments
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Campaign ID"
// @Param status query string false "Filter by status" Enums(active, paused, completed, cancelled)
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} utils.PaginatedResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/enrollments [get]
func (h *CampaignHandler) ListEnrollments(c *gin.Context) {
	status := models.EnrollmentStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
		return
	}
	page, pageSize := utils.ParsePagination(c)
	enrollments, total, err := h.enrollmentService.ListByCampaign(c.Request.Context(), tenantID(c), c.Param("id"), status, utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		respondError(c, err, "Failed to list enrollments")
		return
	}
	c.JSON(http.StatusOK, utils.NewPaginatedResponse(enrollments, total, page, pageSize))
}
