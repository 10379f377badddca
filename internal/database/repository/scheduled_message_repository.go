package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// ScheduledCond guards a conditional scheduled message update
type ScheduledCond struct {
	ID       string
	TenantID string
	Status   models.ScheduledMessageStatus
	// Unclaimed requires claimed_at to be NULL
	Unclaimed bool
	// ClaimableBefore requires claimed_at to be NULL or older than the value
	ClaimableBefore *time.Time
	// ClaimedAt requires claimed_at to equal the value
	ClaimedAt *time.Time
}

// Matches reports whether m satisfies the guard
func (c ScheduledCond) Matches(m *models.ScheduledMessage) bool {
	if c.ID != "" && m.ID != c.ID {
		return false
	}
	if c.TenantID != "" && m.TenantID != c.TenantID {
		return false
	}
	if c.Status != "" && m.Status != c.Status {
		return false
	}
	if c.Unclaimed && m.ClaimedAt != nil {
		return false
	}
	if c.ClaimableBefore != nil && m.ClaimedAt != nil && !m.ClaimedAt.Before(*c.ClaimableBefore) {
		return false
	}
	if c.ClaimedAt != nil && (m.ClaimedAt == nil || !m.ClaimedAt.Equal(*c.ClaimedAt)) {
		return false
	}
	return true
}

func (c ScheduledCond) scope(db *gorm.DB) *gorm.DB {
	db = db.Where("id = ?", c.ID)
	if c.TenantID != "" {
		db = db.Where("tenant_id = ?", c.TenantID)
	}
	if c.Status != "" {
		db = db.Where("status = ?", c.Status)
	}
	if c.Unclaimed {
		db = db.Where("claimed_at IS NULL")
	}
	if c.ClaimableBefore != nil {
		db = db.Where("(claimed_at IS NULL OR claimed_at < ?)", *c.ClaimableBefore)
	}
	if c.ClaimedAt != nil {
		db = db.Where("claimed_at = ?", *c.ClaimedAt)
	}
	return db
}

// ScheduledPatch is the set of columns a conditional scheduled message update writes
type ScheduledPatch struct {
	Status            *models.ScheduledMessageStatus
	Body              *string
	MediaURLs         []string
	SetMedia          bool
	ScheduledFor      *time.Time
	CreditsCost       *int64
	ClaimedAt         *time.Time
	SentAt            *time.Time
	LastError         *string
	ProviderMessageID *string
}

// Apply writes the patch onto an in-memory message
func (p ScheduledPatch) Apply(m *models.ScheduledMessage) {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Body != nil {
		m.Body = *p.Body
	}
	if p.SetMedia {
		m.MediaURLs = pq.StringArray(p.MediaURLs)
	}
	if p.ScheduledFor != nil {
		m.ScheduledFor = *p.ScheduledFor
	}
	if p.CreditsCost != nil {
		m.CreditsCost = *p.CreditsCost
	}
	if p.ClaimedAt != nil {
		t := *p.ClaimedAt
		m.ClaimedAt = &t
	}
	if p.SentAt != nil {
		t := *p.SentAt
		m.SentAt = &t
	}
	if p.LastError != nil {
		m.LastError = *p.LastError
	}
	if p.ProviderMessageID != nil {
		m.ProviderMessageID = *p.ProviderMessageID
	}
}

func (p ScheduledPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{"updated_at": time.Now()}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.Body != nil {
		cols["body"] = *p.Body
	}
	if p.SetMedia {
		cols["media_urls"] = pq.StringArray(p.MediaURLs)
	}
	if p.ScheduledFor != nil {
		cols["scheduled_for"] = *p.ScheduledFor
	}
	if p.CreditsCost != nil {
		cols["credits_cost"] = *p.CreditsCost
	}
	if p.ClaimedAt != nil {
		cols["claimed_at"] = *p.ClaimedAt
	}
	if p.SentAt != nil {
		cols["sent_at"] = *p.SentAt
	}
	if p.LastError != nil {
		cols["last_error"] = *p.LastError
	}
	if p.ProviderMessageID != nil {
		cols["provider_message_id"] = *p.ProviderMessageID
	}
	return cols
}

type ScheduledMessageRepository struct {
	db *gorm.DB
}

func NewScheduledMessageRepository(db *gorm.DB) *ScheduledMessageRepository {
	return &ScheduledMessageRepository{db: db}
}

// Create creates a new scheduled message
func (r *ScheduledMessageRepository) Create(ctx context.Context, msg *models.ScheduledMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// GetByID retrieves a tenant's scheduled message
func (r *ScheduledMessageRepository) GetByID(ctx context.Context, tenantID, id string) (*models.ScheduledMessage, error) {
	var msg models.ScheduledMessage
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&msg).Error
	if err != nil {
		return nil, notFound(err, "scheduled message", id)
	}
	return &msg, nil
}

// List retrieves a page of a tenant's scheduled messages
func (r *ScheduledMessageRepository) List(ctx context.Context, tenantID string, status models.ScheduledMessageStatus, offset, limit int) ([]models.ScheduledMessage, int64, error) {
	offset, limit = clampPage(offset, limit)
	query := r.db.WithContext(ctx).Model(&models.ScheduledMessage{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var msgs []models.ScheduledMessage
	err := query.Order("scheduled_for ASC").Offset(offset).Limit(limit).Find(&msgs).Error
	return msgs, total, err
}

// ListDue retrieves pending messages that are due and not held by a live claim
func (r *ScheduledMessageRepository) ListDue(ctx context.Context, now, claimableBefore time.Time, limit int) ([]models.ScheduledMessage, error) {
	var msgs []models.ScheduledMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.ScheduledPending, now).
		Where("(claimed_at IS NULL OR claimed_at < ?)", claimableBefore).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// UpdateIf applies patch to the row matching cond and reports whether a row changed
func (r *ScheduledMessageRepository) UpdateIf(ctx context.Context, cond ScheduledCond, patch ScheduledPatch) (bool, error) {
	result := cond.scope(r.db.WithContext(ctx).Model(&models.ScheduledMessage{})).
		Updates(patch.columns())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
