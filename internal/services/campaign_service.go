package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

type CampaignService struct {
	campaigns CampaignStore
	activity  ActivityLogger
	senderID  string
}

func NewCampaignService(campaigns CampaignStore, activity ActivityLogger, defaultSenderID string) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		activity:  activity,
		senderID:  defaultSenderID,
	}
}

// CreateCampaign creates a drip campaign with its ordered steps
func (s *CampaignService) CreateCampaign(ctx context.Context, tenantID string, req *models.CreateCampaignRequest) (*models.CampaignResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.NewValidation("name is required")
	}
	if len(req.Steps) == 0 {
		return nil, apperrors.NewValidation("a campaign needs at least one step")
	}
	trigger, err := req.Trigger.ToTrigger()
	if err != nil {
		return nil, apperrors.NewValidation("%v", err)
	}
	config, err := models.EncodeTrigger(trigger)
	if err != nil {
		return nil, apperrors.NewValidation("%v", err)
	}

	steps := make([]models.CampaignStep, 0, len(req.Steps))
	for i, step := range req.Steps {
		if strings.TrimSpace(step.Message) == "" {
			return nil, apperrors.NewValidation("step %d has an empty message", i+1)
		}
		if step.DelayDays < 0 || step.DelayHours < 0 {
			return nil, apperrors.NewValidation("step %d has a negative delay", i+1)
		}
		steps = append(steps, models.CampaignStep{
			StepNumber: i + 1,
			DelayDays:  step.DelayDays,
			DelayHours: step.DelayHours,
			Message:    step.Message,
			MediaURLs:  pq.StringArray(step.MediaURLs),
		})
	}

	sender := strings.TrimSpace(req.SenderID)
	if sender == "" {
		sender = s.senderID
	}
	campaign := &models.Campaign{
		TenantID:      tenantID,
		Name:          strings.TrimSpace(req.Name),
		Channel:       "sms",
		SenderID:      sender,
		TriggerType:   trigger.Type(),
		TriggerConfig: config,
		IsActive:      true,
		Steps:         steps,
	}
	if req.IsActive != nil {
		campaign.IsActive = *req.IsActive
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	if s.activity != nil {
		s.activity.Log(ctx, tenantID, models.EntityCampaign, campaign.ID, "created", models.LogStatusInfo,
			fmt.Sprintf("Campaign %q created with %d steps", campaign.Name, len(steps)),
			map[string]interface{}{"trigger_type": campaign.TriggerType})
	}
	return s.toResponse(campaign), nil
}

// GetCampaign returns one campaign of the tenant
func (s *CampaignService) GetCampaign(ctx context.Context, tenantID, id string) (*models.CampaignResponse, error) {
	campaign, err := s.campaigns.GetByTenantAndID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(campaign), nil
}

// ListCampaigns returns a page of the tenant's campaigns
func (s *CampaignService) ListCampaigns(ctx context.Context, tenantID string, offset, limit int) ([]models.CampaignResponse, int64, error) {
	campaigns, total, err := s.campaigns.ListByTenant(ctx, tenantID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	responses := make([]models.CampaignResponse, len(campaigns))
	for i := range campaigns {
		responses[i] = *s.toResponse(&campaigns[i])
	}
	return responses, total, nil
}

// SetActive turns trigger matching and explicit enrollment on or off.
// Existing enrollments keep running either way.
func (s *CampaignService) SetActive(ctx context.Context, tenantID, id string, active bool) (*models.CampaignResponse, error) {
	if err := s.campaigns.SetActive(ctx, tenantID, id, active); err != nil {
		return nil, err
	}
	campaign, err := s.campaigns.GetByTenantAndID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if s.activity != nil {
		stage := "deactivated"
		if active {
			stage = "activated"
		}
		s.activity.Log(ctx, tenantID, models.EntityCampaign, id, stage, models.LogStatusInfo, "Campaign "+stage, nil)
	}
	return s.toResponse(campaign), nil
}

func (s *CampaignService) toResponse(campaign *models.Campaign) *models.CampaignResponse {
	trigger := map[string]interface{}{}
	if len(campaign.TriggerConfig) > 0 {
		_ = json.Unmarshal(campaign.TriggerConfig, &trigger)
	}
	steps := campaign.Steps
	if steps == nil {
		steps = []models.CampaignStep{}
	}
	return &models.CampaignResponse{
		ID:          campaign.ID,
		Name:        campaign.Name,
		Channel:     campaign.Channel,
		SenderID:    campaign.SenderID,
		TriggerType: campaign.TriggerType,
		Trigger:     trigger,
		IsActive:    campaign.IsActive,
		Steps:       steps,
		CreatedAt:   campaign.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   campaign.UpdatedAt.Format(time.RFC3339),
	}
}
