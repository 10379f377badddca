package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("step_number ASC")
}

// Create creates a campaign together with its steps
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

// GetByID retrieves a campaign with its ordered steps
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		First(&campaign, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "campaign", id)
	}
	campaign.SortSteps()
	return &campaign, nil
}

// GetByTenantAndID retrieves a campaign owned by a tenant
func (r *CampaignRepository) GetByTenantAndID(ctx context.Context, tenantID, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Preload("Steps", orderedSteps).
		First(&campaign).Error
	if err != nil {
		return nil, notFound(err, "campaign", id)
	}
	campaign.SortSteps()
	return &campaign, nil
}

// ListByTenant retrieves a page of a tenant's campaigns
func (r *CampaignRepository) ListByTenant(ctx context.Context, tenantID string, offset, limit int) ([]models.Campaign, int64, error) {
	offset, limit = clampPage(offset, limit)
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Preload("Steps", orderedSteps).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&campaigns).Error
	return campaigns, total, err
}

// ListActiveByTrigger retrieves a tenant's active campaigns for one trigger kind
func (r *CampaignRepository) ListActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND trigger_type = ? AND is_active = ?", tenantID, triggerType, true).
		Preload("Steps", orderedSteps).
		Find(&campaigns).Error
	if err != nil {
		return nil, err
	}
	for i := range campaigns {
		campaigns[i].SortSteps()
	}
	return campaigns, nil
}

// SetActive toggles a campaign
func (r *CampaignRepository) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "campaign", id)
	}
	return nil
}
