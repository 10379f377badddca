package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnrollmentStatus is the lifecycle state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusPaused    EnrollmentStatus = "paused"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

// enrollmentTransitions is the only place legal enrollment moves are defined.
// completed/cancelled -> active is the re-enroll path.
var enrollmentTransitions = map[EnrollmentStatus]map[EnrollmentStatus]bool{
	EnrollmentStatusActive: {
		EnrollmentStatusActive:    true,
		EnrollmentStatusPaused:    true,
		EnrollmentStatusCompleted: true,
		EnrollmentStatusCancelled: true,
	},
	EnrollmentStatusPaused: {
		EnrollmentStatusActive:    true,
		EnrollmentStatusCancelled: true,
	},
	EnrollmentStatusCompleted: {
		EnrollmentStatusActive: true,
	},
	EnrollmentStatusCancelled: {
		EnrollmentStatusActive: true,
	},
}

// CanTransitionTo reports whether s may move to next
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	return enrollmentTransitions[s][next]
}

// IsOpen reports whether the enrollment still occupies its (campaign, lead) slot
func (s EnrollmentStatus) IsOpen() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusPaused
}

// Valid reports whether s is a known status
func (s EnrollmentStatus) Valid() bool {
	_, ok := enrollmentTransitions[s]
	return ok
}

// EnrollmentSourcesInto returns every status that may legally move to next
func EnrollmentSourcesInto(next EnrollmentStatus) []EnrollmentStatus {
	order := []EnrollmentStatus{
		EnrollmentStatusActive,
		EnrollmentStatusPaused,
		EnrollmentStatusCompleted,
		EnrollmentStatusCancelled,
	}
	sources := make([]EnrollmentStatus, 0, len(order))
	for _, from := range order {
		if from == next {
			continue
		}
		if from.CanTransitionTo(next) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Enrollment binds one lead to one drip campaign and tracks step progress
type Enrollment struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	CampaignID string `json:"campaign_id" gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_campaign_lead"`
	LeadID     string `json:"lead_id" gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_campaign_lead;index"`
	TenantID   string `json:"tenant_id" gorm:"type:uuid;not null;index"`

	Status      EnrollmentStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index:idx_enrollments_due,priority:1"`
	CurrentStep int              `json:"current_step" gorm:"not null;default:0"`
	NextSendAt  *time.Time       `json:"next_send_at" gorm:"index:idx_enrollments_due,priority:2"`

	FailureCount int    `json:"failure_count" gorm:"not null;default:0"`
	LastError    string `json:"last_error,omitempty" gorm:"type:text"`

	TriggerType  string `json:"trigger_type,omitempty" gorm:"type:varchar(50)"`
	TriggerValue string `json:"trigger_value,omitempty" gorm:"type:varchar(255)"`

	EnrolledAt  time.Time  `json:"enrolled_at"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the Enrollment model
func (Enrollment) TableName() string {
	return "enrollments"
}

// TriggerContext describes why an enrollment was requested
type TriggerContext struct {
	Type  string `json:"type,omitempty" example:"tag_added"`
	Value string `json:"value,omitempty" example:"vip"`
}

// EnrollRequest represents an explicit enroll call
type EnrollRequest struct {
	LeadID  string         `json:"lead_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	Trigger TriggerContext `json:"trigger"`
}

// EnrollResult is the outcome of one enroll request
type EnrollResult struct {
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Skipped      bool   `json:"skipped"`
	Reason       string `json:"reason,omitempty"`
}

// ReEnrollRequest represents a bulk re-enroll call
type ReEnrollRequest struct {
	LeadIDs       []string `json:"lead_ids" binding:"required,min=1,dive,uuid"`
	ResetProgress bool     `json:"reset_progress"`
}

// ReEnrollOutcome classifies how one lead was handled in a bulk re-enroll
type ReEnrollOutcome string

const (
	ReEnrollCreated     ReEnrollOutcome = "created"
	ReEnrollReset       ReEnrollOutcome = "reset"
	ReEnrollReactivated ReEnrollOutcome = "reactivated"
	ReEnrollSkipped     ReEnrollOutcome = "skipped"
	ReEnrollFailed      ReEnrollOutcome = "failed"
)

// ReEnrollItem is the per-lead outcome of a bulk re-enroll
type ReEnrollItem struct {
	LeadID       string          `json:"lead_id"`
	EnrollmentID string          `json:"enrollment_id,omitempty"`
	Outcome      ReEnrollOutcome `json:"outcome"`
	Error        string          `json:"error,omitempty"`
}

// ReEnrollResult summarizes a bulk re-enroll
type ReEnrollResult struct {
	ReEnrolledCount  int            `json:"re_enrolled_count"`
	ResetCount       int            `json:"reset_count"`
	ReactivatedCount int            `json:"reactivated_count"`
	SkippedCount     int            `json:"skipped_count"`
	FailedCount      int            `json:"failed_count"`
	TotalProcessed   int            `json:"total_processed"`
	Items            []ReEnrollItem `json:"items"`
}

// Add records one item and bumps the matching counters
func (r *ReEnrollResult) Add(item ReEnrollItem) {
	r.Items = append(r.Items, item)
	r.TotalProcessed++
	switch item.Outcome {
	case ReEnrollCreated:
		r.ReEnrolledCount++
	case ReEnrollReset:
		r.ReEnrolledCount++
		r.ResetCount++
	case ReEnrollReactivated:
		r.ReEnrolledCount++
		r.ReactivatedCount++
	case ReEnrollSkipped:
		r.SkippedCount++
	case ReEnrollFailed:
		r.FailedCount++
	}
}
