package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Lead is the CRM contact a campaign messages. This service only reads leads.
type Lead struct {
	ID           string         `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID     string         `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Phone        string         `json:"phone" gorm:"type:varchar(32);not null"`
	FirstName    string         `json:"first_name" gorm:"type:varchar(255)"`
	LastName     string         `json:"last_name" gorm:"type:varchar(255)"`
	Status       string         `json:"status" gorm:"type:varchar(50);index"`
	Source       string         `json:"source" gorm:"type:varchar(100)"`
	Tags         pq.StringArray `json:"tags" gorm:"type:text[]"`
	DoNotContact bool           `json:"do_not_contact" gorm:"default:false"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the Lead model
func (Lead) TableName() string {
	return "leads"
}

// Contactable reports whether the lead may receive messages
func (l *Lead) Contactable(disqualifying []string) bool {
	if l.DoNotContact || strings.TrimSpace(l.Phone) == "" {
		return false
	}
	return !IsDisqualifyingStatus(l.Status, disqualifying)
}

// IsDisqualifyingStatus reports whether status is one of the disqualifying statuses
func IsDisqualifyingStatus(status string, disqualifying []string) bool {
	status = strings.TrimSpace(status)
	if status == "" {
		return false
	}
	for _, s := range disqualifying {
		if strings.EqualFold(strings.TrimSpace(s), status) {
			return true
		}
	}
	return false
}
