package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

type ProcessLogRepository struct {
	db *gorm.DB
}

func NewProcessLogRepository(db *gorm.DB) *ProcessLogRepository {
	return &ProcessLogRepository{db: db}
}

// Create creates a new activity entry
func (r *ProcessLogRepository) Create(ctx context.Context, log *models.ProcessLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// List retrieves a tenant's activity, optionally narrowed to one entity
func (r *ProcessLogRepository) List(ctx context.Context, tenantID, entityType, entityID string, offset, limit int) ([]models.ProcessLog, int64, error) {
	offset, limit = clampPage(offset, limit)
	query := r.db.WithContext(ctx).Model(&models.ProcessLog{}).Where("tenant_id = ?", tenantID)
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.ProcessLog
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error
	return logs, total, err
}

// DeleteOlderThan deletes entries created before cutoff
func (r *ProcessLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ProcessLog{})
	return result.RowsAffected, result.Error
}
