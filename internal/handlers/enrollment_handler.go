package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services"
)

type EnrollmentHandler struct {
	enrollmentService *services.EnrollmentService
}

func NewEnrollmentHandler(enrollmentService *services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentService: enrollmentService}
}

// GetEnrollment godoc
// @Summary Get an enrollment
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} models.Enrollment
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/enrollments/{id} [get]
func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	enrollment, err := h.enrollmentService.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get enrollment")
		return
	}
	c.JSON(http.StatusOK, enrollment)
}

// PauseEnrollment godoc
// @Summary Pause an active enrollment
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} models.Enrollment
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/enrollments/{id}/pause [post]
func (h *EnrollmentHandler) PauseEnrollment(c *gin.Context) {
	h.transition(c, h.enrollmentService.Pause, "Failed to pause enrollment")
}

// ResumeEnrollment godoc
// @Summary Resume a paused enrollment
// @Description The current step is rescheduled using its delay from now
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} models.Enrollment
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/enrollments/{id}/resume [post]
func (h *EnrollmentHandler) ResumeEnrollment(c *gin.Context) {
	h.transition(c, h.enrollmentService.Resume, "Failed to resume enrollment")
}

// CancelEnrollment godoc
// @Summary Cancel an enrollment
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} models.Enrollment
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) CancelEnrollment(c *gin.Context) {
	h.transition(c, h.enrollmentService.Cancel, "Failed to cancel enrollment")
}

func (h *EnrollmentHandler) transition(c *gin.Context, fn func(ctx context.Context, tenantID, id string) (*models.Enrollment, error), fallback string) {
	enrollment, err := fn(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, fallback)
		return
	}
	c.JSON(http.StatusOK, enrollment)
}
