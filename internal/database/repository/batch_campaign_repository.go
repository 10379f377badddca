package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// BatchCond guards a conditional batch campaign update
type BatchCond struct {
	ID            string
	Statuses      []models.BatchStatus
	NextBatchDate *time.Time
}

// Matches reports whether b satisfies the guard
func (c BatchCond) Matches(b *models.BatchCampaign) bool {
	if c.ID != "" && b.ID != c.ID {
		return false
	}
	if len(c.Statuses) > 0 {
		ok := false
		for _, s := range c.Statuses {
			if b.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.NextBatchDate != nil && (b.NextBatchDate == nil || !b.NextBatchDate.Equal(*c.NextBatchDate)) {
		return false
	}
	return true
}

func (c BatchCond) scope(db *gorm.DB) *gorm.DB {
	db = db.Where("id = ?", c.ID)
	if len(c.Statuses) > 0 {
		db = db.Where("status IN ?", c.Statuses)
	}
	if c.NextBatchDate != nil {
		db = db.Where("next_batch_date = ?", *c.NextBatchDate)
	}
	return db
}

// BatchPatch is the set of columns a conditional batch update writes
type BatchPatch struct {
	Status        *models.BatchStatus
	NextBatchDate *time.Time
	ClearNext     bool
	BatchesSent   *int
	LeadsSent     *int
	LeadsFailed   *int
	LastError     *string
	CompletedAt   *time.Time
}

// Apply writes the patch onto an in-memory batch campaign
func (p BatchPatch) Apply(b *models.BatchCampaign) {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.ClearNext {
		b.NextBatchDate = nil
	} else if p.NextBatchDate != nil {
		t := *p.NextBatchDate
		b.NextBatchDate = &t
	}
	if p.BatchesSent != nil {
		b.BatchesSent = *p.BatchesSent
	}
	if p.LeadsSent != nil {
		b.LeadsSent = *p.LeadsSent
	}
	if p.LeadsFailed != nil {
		b.LeadsFailed = *p.LeadsFailed
	}
	if p.LastError != nil {
		b.LastError = *p.LastError
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		b.CompletedAt = &t
	}
}

func (p BatchPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{"updated_at": time.Now()}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.ClearNext {
		cols["next_batch_date"] = gorm.Expr("NULL")
	} else if p.NextBatchDate != nil {
		cols["next_batch_date"] = *p.NextBatchDate
	}
	if p.BatchesSent != nil {
		cols["batches_sent"] = *p.BatchesSent
	}
	if p.LeadsSent != nil {
		cols["leads_sent"] = *p.LeadsSent
	}
	if p.LeadsFailed != nil {
		cols["leads_failed"] = *p.LeadsFailed
	}
	if p.LastError != nil {
		cols["last_error"] = *p.LastError
	}
	if p.CompletedAt != nil {
		cols["completed_at"] = *p.CompletedAt
	}
	return cols
}

type BatchCampaignRepository struct {
	db *gorm.DB
}

func NewBatchCampaignRepository(db *gorm.DB) *BatchCampaignRepository {
	return &BatchCampaignRepository{db: db}
}

// Create stores the campaign and its recipient list in one transaction
func (r *BatchCampaignRepository) Create(ctx context.Context, campaign *models.BatchCampaign, recipients []models.BatchCampaignRecipient) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(campaign).Error; err != nil {
			return err
		}
		for i := range recipients {
			recipients[i].BatchCampaignID = campaign.ID
		}
		if len(recipients) == 0 {
			return nil
		}
		return tx.CreateInBatches(recipients, 500).Error
	})
}

// GetByID retrieves a tenant's batch campaign
func (r *BatchCampaignRepository) GetByID(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error) {
	var campaign models.BatchCampaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&campaign).Error
	if err != nil {
		return nil, notFound(err, "batch campaign", id)
	}
	return &campaign, nil
}

// List retrieves a page of a tenant's batch campaigns
func (r *BatchCampaignRepository) List(ctx context.Context, tenantID string, offset, limit int) ([]models.BatchCampaign, int64, error) {
	offset, limit = clampPage(offset, limit)
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.BatchCampaign{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var campaigns []models.BatchCampaign
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&campaigns).Error
	return campaigns, total, err
}

// ListDue retrieves scheduled or running campaigns whose next batch is due
func (r *BatchCampaignRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.BatchCampaign, error) {
	var campaigns []models.BatchCampaign
	err := r.db.WithContext(ctx).
		Where("status IN ? AND next_batch_date IS NOT NULL AND next_batch_date <= ?",
			[]models.BatchStatus{models.BatchStatusScheduled, models.BatchStatusRunning}, now).
		Order("next_batch_date ASC").
		Limit(limit).
		Find(&campaigns).Error
	return campaigns, err
}

// UpdateIf applies patch to the row matching cond and reports whether a row changed
func (r *BatchCampaignRepository) UpdateIf(ctx context.Context, cond BatchCond, patch BatchPatch) (bool, error) {
	result := cond.scope(r.db.WithContext(ctx).Model(&models.BatchCampaign{})).
		Updates(patch.columns())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// NextPending returns up to limit pending recipients in list order
func (r *BatchCampaignRepository) NextPending(ctx context.Context, batchID string, limit int) ([]models.BatchCampaignRecipient, error) {
	var recipients []models.BatchCampaignRecipient
	err := r.db.WithContext(ctx).
		Where("batch_campaign_id = ? AND status = ?", batchID, models.RecipientPending).
		Order("position ASC").
		Limit(limit).
		Find(&recipients).Error
	return recipients, err
}

// MarkRecipient settles a pending recipient; it reports false if it was already settled
func (r *BatchCampaignRepository) MarkRecipient(ctx context.Context, recipientID string, status models.RecipientStatus, lastError string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BatchCampaignRecipient{}).
		Where("id = ? AND status = ?", recipientID, models.RecipientPending).
		Updates(map[string]interface{}{
			"status":       status,
			"last_error":   lastError,
			"attempted_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListRecipients returns the full recipient list in order
func (r *BatchCampaignRepository) ListRecipients(ctx context.Context, batchID string) ([]models.BatchCampaignRecipient, error) {
	var recipients []models.BatchCampaignRecipient
	err := r.db.WithContext(ctx).
		Where("batch_campaign_id = ?", batchID).
		Order("position ASC").
		Find(&recipients).Error
	return recipients, err
}
