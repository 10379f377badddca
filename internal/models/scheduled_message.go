package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ScheduledMessageStatus is the state of a one-off scheduled message
type ScheduledMessageStatus string

const (
	ScheduledPending   ScheduledMessageStatus = "pending"
	ScheduledSent      ScheduledMessageStatus = "sent"
	ScheduledCancelled ScheduledMessageStatus = "cancelled"
	ScheduledFailed    ScheduledMessageStatus = "failed"
)

// ScheduledMessage is a single message to one lead at a fixed time
type ScheduledMessage struct {
	ID        string                 `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID  string                 `json:"tenant_id" gorm:"type:uuid;not null;index"`
	LeadID    string                 `json:"lead_id" gorm:"type:uuid;not null;index"`
	Channel   string                 `json:"channel" gorm:"type:varchar(20);default:'sms'"`
	Body      string                 `json:"body" gorm:"type:text;not null"`
	MediaURLs pq.StringArray         `json:"media_urls,omitempty" gorm:"type:text[]"`
	Status    ScheduledMessageStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_scheduled_due,priority:1"`

	ScheduledFor time.Time  `json:"scheduled_for" gorm:"not null;index:idx_scheduled_due,priority:2"`
	CreditsCost  int64      `json:"credits_cost"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	LastError    string     `json:"last_error,omitempty" gorm:"type:text"`

	ProviderMessageID string `json:"provider_message_id,omitempty" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (m *ScheduledMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the ScheduledMessage model
func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}

// Editable reports whether the message can still be changed
func (m *ScheduledMessage) Editable() bool {
	return m.Status == ScheduledPending && m.ClaimedAt == nil
}

// CreateScheduledMessageRequest represents the request to schedule a message
type CreateScheduledMessageRequest struct {
	LeadID       string    `json:"lead_id" binding:"required,uuid"`
	Body         string    `json:"body" binding:"required" example:"See you tomorrow at 10!"`
	MediaURLs    []string  `json:"media_urls,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for" binding:"required" example:"2025-02-01T09:00:00Z"`
}

// UpdateScheduledMessageRequest edits a pending message
type UpdateScheduledMessageRequest struct {
	Body         *string    `json:"body,omitempty"`
	MediaURLs    []string   `json:"media_urls,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}
