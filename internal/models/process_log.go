package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity entity types
const (
	EntityEnrollment       = "enrollment"
	EntityCampaign         = "campaign"
	EntityBatchCampaign    = "batch_campaign"
	EntityScheduledMessage = "scheduled_message"
	EntityCredit           = "credit"
)

// Activity statuses
const (
	LogStatusInfo    = "info"
	LogStatusSuccess = "success"
	LogStatusWarning = "warning"
	LogStatusError   = "error"
)

// ProcessLog is one activity entry written whenever scheduled work changes state
type ProcessLog struct {
	ID string `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`

	EntityType string `json:"entity_type" gorm:"type:varchar(50);not null;index" example:"enrollment"`
	EntityID   string `json:"entity_id" gorm:"type:uuid;not null;index" example:"550e8400-e29b-41d4-a716-446655440000"`
	TenantID   string `json:"tenant_id" gorm:"type:uuid;not null;index" example:"550e8400-e29b-41d4-a716-446655440001"`

	Stage   string `json:"stage" gorm:"type:varchar(50);not null;index" example:"step_sent"` // enrolled, step_sent, send_failed, paused, completed, batch_sent, ...
	Status  string `json:"status" gorm:"type:varchar(20);not null;index" example:"success"`
	Message string `json:"message" gorm:"type:text;not null" example:"Step 1 sent"`

	Metadata datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the ProcessLog model
func (ProcessLog) TableName() string {
	return "process_logs"
}

// ProcessLogResponse represents the response for activity queries
type ProcessLogResponse struct {
	ID         string            `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EntityType string            `json:"entity_type" example:"enrollment"`
	EntityID   string            `json:"entity_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	Stage      string            `json:"stage" example:"step_sent"`
	Status     string            `json:"status" example:"success"`
	Message    string            `json:"message" example:"Step 1 sent"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  string            `json:"created_at" example:"2025-01-21T10:30:00Z"`
}
