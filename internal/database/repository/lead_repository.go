package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

type LeadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// GetByID retrieves a tenant's lead
func (r *LeadRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&lead).Error
	if err != nil {
		return nil, notFound(err, "lead", id)
	}
	return &lead, nil
}

// GetByIDs retrieves the subset of ids that exist for the tenant
func (r *LeadRepository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var leads []models.Lead
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&leads).Error
	return leads, err
}

// FindIDsByPhones resolves phone numbers to lead ids, used by spreadsheet imports
func (r *LeadRepository) FindIDsByPhones(ctx context.Context, tenantID string, phones []string) (map[string]string, error) {
	if len(phones) == 0 {
		return map[string]string{}, nil
	}
	var leads []models.Lead
	err := r.db.WithContext(ctx).
		Select("id", "phone").
		Where("tenant_id = ? AND phone IN ?", tenantID, phones).
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(leads))
	for _, l := range leads {
		out[l.Phone] = l.ID
	}
	return out, nil
}
