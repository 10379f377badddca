package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Campaign is a drip campaign: a trigger plus an ordered list of steps
type Campaign struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name     string `json:"name" gorm:"type:varchar(255);not null"`
	Channel  string `json:"channel" gorm:"type:varchar(20);default:'sms'"`
	SenderID string `json:"sender_id" gorm:"type:varchar(64)"`

	TriggerType   TriggerType    `json:"trigger_type" gorm:"type:varchar(50);not null;index"`
	TriggerConfig datatypes.JSON `json:"trigger_config" gorm:"type:jsonb"`

	IsActive  bool      `json:"is_active" gorm:"default:true;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Steps []CampaignStep `json:"steps,omitempty" gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the Campaign model
func (Campaign) TableName() string {
	return "campaigns"
}

// Trigger decodes the campaign's trigger_config
func (c *Campaign) Trigger() (Trigger, error) {
	return ParseTrigger(c.TriggerType, c.TriggerConfig)
}

// SortSteps orders Steps by step number
func (c *Campaign) SortSteps() {
	sort.SliceStable(c.Steps, func(i, j int) bool {
		return c.Steps[i].StepNumber < c.Steps[j].StepNumber
	})
}

// StepAt returns the step at a zero-based position
func (c *Campaign) StepAt(index int) (*CampaignStep, bool) {
	if index < 0 || index >= len(c.Steps) {
		return nil, false
	}
	return &c.Steps[index], true
}

// CampaignStep is one scheduled message of a campaign
type CampaignStep struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	CampaignID string `json:"campaign_id" gorm:"type:uuid;not null;index"`
	StepNumber int    `json:"step_number" gorm:"not null"`

	// Delay is relative to the moment the step becomes current
	DelayDays  int `json:"delay_days" gorm:"default:0"`
	DelayHours int `json:"delay_hours" gorm:"default:0"`

	Message   string         `json:"message" gorm:"type:text;not null"`
	MediaURLs pq.StringArray `json:"media_urls,omitempty" gorm:"type:text[]"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (s *CampaignStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the CampaignStep model
func (CampaignStep) TableName() string {
	return "campaign_steps"
}

// Delay returns the wait before the step is sent
func (s CampaignStep) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	Name     string                `json:"name" binding:"required" example:"Welcome drip"`
	SenderID string                `json:"sender_id" example:"GREEN"`
	Trigger  TriggerRequest        `json:"trigger" binding:"required"`
	Steps    []CampaignStepRequest `json:"steps" binding:"required,min=1,dive"`
	IsActive *bool                 `json:"is_active" example:"true"`
}

// CampaignStepRequest represents one step in a create request
type CampaignStepRequest struct {
	DelayDays  int      `json:"delay_days" binding:"min=0" example:"1"`
	DelayHours int      `json:"delay_hours" binding:"min=0,max=23" example:"0"`
	Message    string   `json:"message" binding:"required" example:"Thanks for signing up!"`
	MediaURLs  []string `json:"media_urls,omitempty"`
}

// SetCampaignActiveRequest toggles a campaign
type SetCampaignActiveRequest struct {
	IsActive bool `json:"is_active" example:"false"`
}

// CampaignResponse represents the response for campaign operations
type CampaignResponse struct {
	ID          string                 `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name        string                 `json:"name" example:"Welcome drip"`
	Channel     string                 `json:"channel" example:"sms"`
	SenderID    string                 `json:"sender_id" example:"GREEN"`
	TriggerType TriggerType            `json:"trigger_type" example:"tag_added"`
	Trigger     map[string]interface{} `json:"trigger"`
	IsActive    bool                   `json:"is_active" example:"true"`
	Steps       []CampaignStep         `json:"steps"`
	CreatedAt   string                 `json:"created_at" example:"2025-01-09T10:30:00Z"`
	UpdatedAt   string                 `json:"updated_at" example:"2025-01-09T10:30:00Z"`
}
