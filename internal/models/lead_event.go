package models

import "time"

// LeadEvent is a CRM domain event that may enroll the lead into campaigns
type LeadEvent struct {
	EventID    string      `json:"event_id,omitempty"`
	TenantID   string      `json:"tenant_id"`
	LeadID     string      `json:"lead_id"`
	Type       TriggerType `json:"type"`
	Value      string      `json:"value,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// LeadEventRequest represents a lead event posted over HTTP
type LeadEventRequest struct {
	LeadID string      `json:"lead_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	Type   TriggerType `json:"type" binding:"required" example:"tag_added"`
	Value  string      `json:"value" example:"vip"`
}

// TriggerSummary is the outcome of evaluating one lead event
type TriggerSummary struct {
	Matched   int `json:"matched"`
	Enrolled  int `json:"enrolled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
