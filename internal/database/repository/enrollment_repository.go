package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// EnrollmentCond is the guard of a conditional enrollment update. Zero fields are ignored.
type EnrollmentCond struct {
	ID          string
	Statuses    []models.EnrollmentStatus
	CurrentStep *int
	NextSendAt  *time.Time
}

// Matches reports whether e satisfies the guard
func (c EnrollmentCond) Matches(e *models.Enrollment) bool {
	if c.ID != "" && e.ID != c.ID {
		return false
	}
	if len(c.Statuses) > 0 {
		ok := false
		for _, s := range c.Statuses {
			if e.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.CurrentStep != nil && e.CurrentStep != *c.CurrentStep {
		return false
	}
	if c.NextSendAt != nil && (e.NextSendAt == nil || !e.NextSendAt.Equal(*c.NextSendAt)) {
		return false
	}
	return true
}

func (c EnrollmentCond) scope(db *gorm.DB) *gorm.DB {
	db = db.Where("id = ?", c.ID)
	if len(c.Statuses) > 0 {
		db = db.Where("status IN ?", c.Statuses)
	}
	if c.CurrentStep != nil {
		db = db.Where("current_step = ?", *c.CurrentStep)
	}
	if c.NextSendAt != nil {
		db = db.Where("next_send_at = ?", *c.NextSendAt)
	}
	return db
}

// EnrollmentPatch is the set of columns a conditional update writes. Nil fields are left alone.
type EnrollmentPatch struct {
	Status       *models.EnrollmentStatus
	CurrentStep  *int
	NextSendAt   *time.Time
	ClearNext    bool
	FailureCount *int
	LastError    *string
	LastSentAt   *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	EnrolledAt   *time.Time
	// ClearTerminal nulls completed_at and cancelled_at, used when a row is re-enrolled
	ClearTerminal bool
}

// Apply writes the patch onto an in-memory enrollment
func (p EnrollmentPatch) Apply(e *models.Enrollment) {
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.CurrentStep != nil {
		e.CurrentStep = *p.CurrentStep
	}
	if p.ClearNext {
		e.NextSendAt = nil
	} else if p.NextSendAt != nil {
		t := *p.NextSendAt
		e.NextSendAt = &t
	}
	if p.FailureCount != nil {
		e.FailureCount = *p.FailureCount
	}
	if p.LastError != nil {
		e.LastError = *p.LastError
	}
	if p.LastSentAt != nil {
		t := *p.LastSentAt
		e.LastSentAt = &t
	}
	if p.ClearTerminal {
		e.CompletedAt = nil
		e.CancelledAt = nil
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		e.CompletedAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		e.CancelledAt = &t
	}
	if p.EnrolledAt != nil {
		e.EnrolledAt = *p.EnrolledAt
	}
}

func (p EnrollmentPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{"updated_at": time.Now()}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.CurrentStep != nil {
		cols["current_step"] = *p.CurrentStep
	}
	if p.ClearNext {
		cols["next_send_at"] = gorm.Expr("NULL")
	} else if p.NextSendAt != nil {
		cols["next_send_at"] = *p.NextSendAt
	}
	if p.FailureCount != nil {
		cols["failure_count"] = *p.FailureCount
	}
	if p.LastError != nil {
		cols["last_error"] = *p.LastError
	}
	if p.LastSentAt != nil {
		cols["last_sent_at"] = *p.LastSentAt
	}
	if p.ClearTerminal {
		cols["completed_at"] = gorm.Expr("NULL")
		cols["cancelled_at"] = gorm.Expr("NULL")
	}
	if p.CompletedAt != nil {
		cols["completed_at"] = *p.CompletedAt
	}
	if p.CancelledAt != nil {
		cols["cancelled_at"] = *p.CancelledAt
	}
	if p.EnrolledAt != nil {
		cols["enrolled_at"] = *p.EnrolledAt
	}
	return cols
}

type EnrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateIfAbsent inserts the enrollment unless one already exists for (campaign_id, lead_id).
// It reports whether a row was inserted.
func (r *EnrollmentRepository) CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "lead_id"}},
		DoNothing: true,
	}).Create(enrollment)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByID retrieves a tenant's enrollment
func (r *EnrollmentRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&enrollment).Error
	if err != nil {
		return nil, notFound(err, "enrollment", id)
	}
	return &enrollment, nil
}

// GetByCampaignAndLead returns the retained row for the pair, or nil when none exists
func (r *EnrollmentRepository) GetByCampaignAndLead(ctx context.Context, campaignID, leadID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND lead_id = ?", campaignID, leadID).
		Limit(1).
		Find(&enrollment).Error
	if err != nil {
		return nil, err
	}
	if enrollment.ID == "" {
		return nil, nil
	}
	return &enrollment, nil
}

// ListByCampaign retrieves a page of a campaign's enrollments, optionally filtered by status
func (r *EnrollmentRepository) ListByCampaign(ctx context.Context, tenantID, campaignID string, status models.EnrollmentStatus, offset, limit int) ([]models.Enrollment, int64, error) {
	offset, limit = clampPage(offset, limit)
	query := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var enrollments []models.Enrollment
	err := query.Order("enrolled_at DESC").Offset(offset).Limit(limit).Find(&enrollments).Error
	return enrollments, total, err
}

// ListOpenByLead retrieves every active or paused enrollment of a lead
func (r *EnrollmentRepository) ListOpenByLead(ctx context.Context, tenantID, leadID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND lead_id = ? AND status IN ?", tenantID, leadID,
			[]models.EnrollmentStatus{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
		Find(&enrollments).Error
	return enrollments, err
}

// ListDue retrieves active enrollments whose next send is due, oldest first
func (r *EnrollmentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_send_at IS NOT NULL AND next_send_at <= ?", models.EnrollmentStatusActive, now).
		Order("next_send_at ASC").
		Limit(limit).
		Find(&enrollments).Error
	return enrollments, err
}

// UpdateIf applies patch to the row matching cond and reports whether a row changed
func (r *EnrollmentRepository) UpdateIf(ctx context.Context, cond EnrollmentCond, patch EnrollmentPatch) (bool, error) {
	result := cond.scope(r.db.WithContext(ctx).Model(&models.Enrollment{})).
		Updates(patch.columns())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
