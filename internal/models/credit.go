package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionType is the kind of a ledger entry
type TransactionType string

const (
	TransactionSpend  TransactionType = "spend"
	TransactionRefund TransactionType = "refund"
	TransactionGrant  TransactionType = "grant"
)

// Ledger reasons
const (
	ReasonMessageSend   = "message_send"
	ReasonBatchSend     = "batch_send"
	ReasonScheduledSend = "scheduled_send"
	ReasonAIDraft       = "ai_draft_message"
	ReasonAIRewrite     = "ai_rewrite_message"
	ReasonTopUp         = "top_up"
)

// CreditBalance is the spendable balance of one tenant
type CreditBalance struct {
	TenantID  string    `json:"tenant_id" gorm:"primaryKey;type:uuid"`
	Balance   int64     `json:"balance" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the CreditBalance model
func (CreditBalance) TableName() string {
	return "credit_balances"
}

// CreditTransaction is an append-only ledger entry. Amount is signed.
type CreditTransaction struct {
	ID           string          `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID     string          `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Amount       int64           `json:"amount" gorm:"not null"`
	BalanceAfter int64           `json:"balance_after" gorm:"not null"`
	Type         TransactionType `json:"type" gorm:"type:varchar(20);not null;index"`
	Reason       string          `json:"reason" gorm:"type:varchar(64);not null"`
	Reference    string          `json:"reference,omitempty" gorm:"type:varchar(255);index"`
	RefundOf     *string         `json:"refund_of,omitempty" gorm:"type:uuid;uniqueIndex"`
	CreatedAt    time.Time       `json:"created_at"`
}

// BeforeCreate is a GORM hook that runs before creating a new record
func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the CreditTransaction model
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// Charge is a successful authorization that may later be refunded
type Charge struct {
	TransactionID string `json:"transaction_id"`
	TenantID      string `json:"tenant_id"`
	Amount        int64  `json:"amount"`
	BalanceAfter  int64  `json:"balance_after"`
}

// CostEstimateRequest asks for the price of a message
type CostEstimateRequest struct {
	Body       string `json:"body" example:"Hi there!"`
	MediaCount int    `json:"media_count" binding:"min=0" example:"0"`
	Recipients int    `json:"recipients" binding:"min=0" example:"1"`
}

// CostEstimateResponse is the price of a message
type CostEstimateResponse struct {
	Characters int   `json:"characters"`
	UnitCost   int64 `json:"unit_cost"`
	Recipients int   `json:"recipients"`
	TotalCost  int64 `json:"total_cost"`
	Balance    int64 `json:"balance"`
	CanAfford  bool  `json:"can_afford"`
}

// GrantCreditsRequest tops up a tenant
type GrantCreditsRequest struct {
	TenantID  string `json:"tenant_id" binding:"required,uuid"`
	Amount    int64  `json:"amount" binding:"required,min=1"`
	Reference string `json:"reference"`
}
