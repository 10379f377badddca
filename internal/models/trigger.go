package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// TriggerType is the kind of lead event a campaign reacts to
type TriggerType string

const (
	TriggerLeadCreated  TriggerType = "lead_created"
	TriggerTagAdded     TriggerType = "tag_added"
	TriggerStatusChange TriggerType = "status_change"
)

// Valid reports whether t is one of the known trigger kinds
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerLeadCreated, TriggerTagAdded, TriggerStatusChange:
		return true
	}
	return false
}

// Trigger is the typed trigger_config of a campaign. The set of
// implementations is closed: LeadCreatedTrigger, TagAddedTrigger and
// StatusChangeTrigger.
type Trigger interface {
	Type() TriggerType
	// Filter is the configured match value; empty matches any value.
	Filter() string
	isTrigger()
}

// LeadCreatedTrigger fires when a lead is created, optionally from one source
type LeadCreatedTrigger struct {
	Source string `json:"source,omitempty"`
}

func (LeadCreatedTrigger) Type() TriggerType { return TriggerLeadCreated }
func (t LeadCreatedTrigger) Filter() string  { return t.Source }
func (LeadCreatedTrigger) isTrigger()        {}

// TagAddedTrigger fires when a tag is added to a lead
type TagAddedTrigger struct {
	Tag string `json:"tag,omitempty"`
}

func (TagAddedTrigger) Type() TriggerType { return TriggerTagAdded }
func (t TagAddedTrigger) Filter() string  { return t.Tag }
func (TagAddedTrigger) isTrigger()        {}

// StatusChangeTrigger fires when a lead moves to a status
type StatusChangeTrigger struct {
	Status string `json:"status,omitempty"`
}

func (StatusChangeTrigger) Type() TriggerType { return TriggerStatusChange }
func (t StatusChangeTrigger) Filter() string  { return t.Status }
func (StatusChangeTrigger) isTrigger()        {}

// MatchTrigger reports whether an event of the given kind and value matches t.
// Comparison is case-insensitive and ignores surrounding whitespace.
func MatchTrigger(t Trigger, eventType TriggerType, value string) bool {
	if t == nil || t.Type() != eventType {
		return false
	}
	filter := strings.TrimSpace(t.Filter())
	if filter == "" {
		return true
	}
	return strings.EqualFold(filter, strings.TrimSpace(value))
}

// ParseTrigger decodes a stored trigger_config for the given kind
func ParseTrigger(kind TriggerType, raw []byte) (Trigger, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	switch kind {
	case TriggerLeadCreated:
		var t LeadCreatedTrigger
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode %s trigger: %w", kind, err)
		}
		return t, nil
	case TriggerTagAdded:
		var t TagAddedTrigger
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode %s trigger: %w", kind, err)
		}
		return t, nil
	case TriggerStatusChange:
		var t StatusChangeTrigger
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode %s trigger: %w", kind, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", kind)
	}
}

// EncodeTrigger serializes t for the trigger_config column
func EncodeTrigger(t Trigger) (datatypes.JSON, error) {
	if t == nil {
		return nil, fmt.Errorf("trigger is required")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode %s trigger: %w", t.Type(), err)
	}
	return datatypes.JSON(raw), nil
}

// TriggerRequest is the API shape of a campaign trigger
type TriggerRequest struct {
	Type   TriggerType `json:"type" binding:"required" example:"tag_added"`
	Source string      `json:"source,omitempty" example:"website"`
	Tag    string      `json:"tag,omitempty" example:"vip"`
	Status string      `json:"status,omitempty" example:"qualified"`
}

// ToTrigger converts the request into its typed trigger
func (r TriggerRequest) ToTrigger() (Trigger, error) {
	switch r.Type {
	case TriggerLeadCreated:
		return LeadCreatedTrigger{Source: strings.TrimSpace(r.Source)}, nil
	case TriggerTagAdded:
		return TagAddedTrigger{Tag: strings.TrimSpace(r.Tag)}, nil
	case TriggerStatusChange:
		return StatusChangeTrigger{Status: strings.TrimSpace(r.Status)}, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", r.Type)
	}
}
