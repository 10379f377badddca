package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// BatchStatus is the lifecycle state of a batch campaign
type BatchStatus string

const (
	BatchStatusScheduled BatchStatus = "scheduled"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusPaused    BatchStatus = "paused"
	BatchStatusCancelled BatchStatus = "cancelled"
	BatchStatusCompleted BatchStatus = "completed"
)

var batchTransitions = map[BatchStatus]map[BatchStatus]bool{
	BatchStatusScheduled: {
		BatchStatusRunning:   true,
		BatchStatusPaused:    true,
		BatchStatusCancelled: true,
		BatchStatusCompleted: true,
	},
	BatchStatusRunning: {
		BatchStatusRunning:   true,
		BatchStatusPaused:    true,
		BatchStatusCancelled: true,
		BatchStatusCompleted: true,
	},
	BatchStatusPaused: {
		BatchStatusScheduled: true,
		BatchStatusRunning:   true,
		BatchStatusCancelled: true,
	},
}

// CanTransitionTo reports whether s may move to next
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	return batchTransitions[s][next]
}

// IsTerminal reports whether no further transitions are possible
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCancelled || s == BatchStatusCompleted
}

// BatchSourcesInto returns every status that may legally move to next
func BatchSourcesInto(next BatchStatus) []BatchStatus {
	order := []BatchStatus{BatchStatusScheduled, BatchStatusRunning, BatchStatusPaused, BatchStatusCancelled, BatchStatusCompleted}
	var sources []BatchStatus
	for _, from := range order {
		if from != next && from.CanTransitionTo(next) {
			sources = append(sources, from)
		}
	}
	return sources
}

// BatchCampaign is a one-off campaign rolled out to a static list in timed batches
type BatchCampaign struct {
	ID        string         `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID  string         `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	Message   string         `json:"message" gorm:"type:text;not null"`
	MediaURLs pq.StringArray `json:"media_urls,omitempty" gorm:"type:text[]"`
	SenderID  string         `json:"sender_id" gorm:"type:varchar(64)"`

	TotalLeads         int `json:"total_leads" gorm:"not null"`
	PercentagePerBatch int `json:"percentage_per_batch" gorm:"not null"`
	IntervalHours      int `json:"interval_hours" gorm:"not null"`
	BatchSize          int `json:"batch_size" gorm:"not null"`
	TotalBatches       int `json:"total_batches" gorm:"not null"`
	BatchesSent        int `json:"batches_sent" gorm:"not null;default:0"`
	LeadsSent          int `json:"leads_sent" gorm:"not null;default:0"`
	LeadsFailed        int `json:"leads_failed" gorm:"not null;default:0"`

	StartDate           time.Time   `json:"start_date"`
	NextBatchDate       *time.Time  `json:"next_batch_date" gorm:"index"`
	EstimatedCompletion time.Time   `json:"estimated_completion"`
	Status              BatchStatus `json:"status" gorm:"type:varchar(20);not null;default:'scheduled';index"`
	AutoRepeat          bool        `json:"auto_repeat" gorm:"default:true"`
	LastError           string      `json:"last_error,omitempty" gorm:"type:text"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (b *BatchCampaign) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the BatchCampaign model
func (BatchCampaign) TableName() string {
	return "batch_campaigns"
}

// Interval is the spacing between batches
func (b *BatchCampaign) Interval() time.Duration {
	return time.Duration(b.IntervalHours) * time.Hour
}

// RecipientStatus is the delivery state of one batch recipient
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientSkipped RecipientStatus = "skipped"
)

// BatchCampaignRecipient is one lead of a batch campaign's static list
type BatchCampaignRecipient struct {
	ID              string          `json:"id" gorm:"primaryKey;type:uuid"`
	BatchCampaignID string          `json:"batch_campaign_id" gorm:"type:uuid;not null;uniqueIndex:idx_batch_recipient_lead;index:idx_batch_recipient_pos,priority:1"`
	LeadID          string          `json:"lead_id" gorm:"type:uuid;not null;uniqueIndex:idx_batch_recipient_lead"`
	Position        int             `json:"position" gorm:"not null;index:idx_batch_recipient_pos,priority:2"`
	Status          RecipientStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	LastError       string          `json:"last_error,omitempty" gorm:"type:text"`
	AttemptedAt     *time.Time      `json:"attempted_at,omitempty"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (r *BatchCampaignRecipient) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the BatchCampaignRecipient model
func (BatchCampaignRecipient) TableName() string {
	return "batch_campaign_recipients"
}

// ScheduleBatchCampaignRequest represents the request to schedule a batch campaign
type ScheduleBatchCampaignRequest struct {
	Name               string    `json:"name" binding:"required" example:"Spring promo"`
	Message            string    `json:"message" binding:"required" example:"20% off this week only"`
	MediaURLs          []string  `json:"media_urls,omitempty"`
	SenderID           string    `json:"sender_id" example:"GREEN"`
	LeadIDs            []string  `json:"lead_ids" binding:"required,min=1,dive,uuid"`
	StartDate          time.Time `json:"start_date" binding:"required" example:"2025-02-01T09:00:00Z"`
	PercentagePerBatch int       `json:"percentage_per_batch" binding:"required" example:"25"`
	IntervalHours      int       `json:"interval_hours" binding:"required" example:"24"`
	AutoRepeat         *bool     `json:"auto_repeat" example:"true"`
}

// BatchPlan is the schedule computed for a batch campaign
type BatchPlan struct {
	TotalLeads          int       `json:"total_leads"`
	BatchSize           int       `json:"batch_size"`
	TotalBatches        int       `json:"total_batches"`
	StartDate           time.Time `json:"start_date"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

// BatchCampaignResponse summarizes a scheduled batch campaign
type BatchCampaignResponse struct {
	Campaign         *BatchCampaign `json:"campaign"`
	Plan             BatchPlan      `json:"plan"`
	DuplicateLeads   int            `json:"duplicate_leads"`
	UnknownLeads     int            `json:"unknown_leads"`
	EstimatedCredits int64          `json:"estimated_credits"`
}

// ImportBatchCampaignForm is the multipart form of a spreadsheet import.
// Recipients come from the uploaded file instead of lead_ids.
type ImportBatchCampaignForm struct {
	Name               string    `form:"name" binding:"required"`
	Message            string    `form:"message" binding:"required"`
	SenderID           string    `form:"sender_id"`
	StartDate          time.Time `form:"start_date" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	PercentagePerBatch int       `form:"percentage_per_batch" binding:"required"`
	IntervalHours      int       `form:"interval_hours" binding:"required"`
	AutoRepeat         *bool     `form:"auto_repeat"`
}

// ToRequest builds a schedule request for the resolved lead ids
func (f ImportBatchCampaignForm) ToRequest(leadIDs []string) *ScheduleBatchCampaignRequest {
	return &ScheduleBatchCampaignRequest{
		Name:               f.Name,
		Message:            f.Message,
		SenderID:           f.SenderID,
		LeadIDs:            leadIDs,
		StartDate:          f.StartDate,
		PercentagePerBatch: f.PercentagePerBatch,
		IntervalHours:      f.IntervalHours,
		AutoRepeat:         f.AutoRepeat,
	}
}

// BatchImportResponse adds spreadsheet diagnostics to a scheduled campaign
type BatchImportResponse struct {
	BatchCampaignResponse
	RowsRead        int      `json:"rows_read"`
	UnmatchedPhones []string `json:"unmatched_phones,omitempty"`
}
