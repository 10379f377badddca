package services

import (
	"context"
	"time"

	"github.com/onegreenvn/green-outreach-services-backend/internal/database/repository"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// Persistence ports consumed by the scheduler services. The gorm repositories in
// internal/database/repository satisfy them.

type CampaignStore interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	GetByTenantAndID(ctx context.Context, tenantID, id string) (*models.Campaign, error)
	ListByTenant(ctx context.Context, tenantID string, offset, limit int) ([]models.Campaign, int64, error)
	ListActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]models.Campaign, error)
	SetActive(ctx context.Context, tenantID, id string, active bool) error
}

type LeadStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Lead, error)
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Lead, error)
	FindIDsByPhones(ctx context.Context, tenantID string, phones []string) (map[string]string, error)
}

type EnrollmentStore interface {
	CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	GetByID(ctx context.Context, tenantID, id string) (*models.Enrollment, error)
	GetByCampaignAndLead(ctx context.Context, campaignID, leadID string) (*models.Enrollment, error)
	ListByCampaign(ctx context.Context, tenantID, campaignID string, status models.EnrollmentStatus, offset, limit int) ([]models.Enrollment, int64, error)
	ListOpenByLead(ctx context.Context, tenantID, leadID string) ([]models.Enrollment, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error)
	UpdateIf(ctx context.Context, cond repository.EnrollmentCond, patch repository.EnrollmentPatch) (bool, error)
}

type CreditStore interface {
	EnsureAccount(ctx context.Context, tenantID string) error
	GetBalance(ctx context.Context, tenantID string) (int64, error)
	ApplyDelta(ctx context.Context, tenantID string, expected int64, txn *models.CreditTransaction) (bool, error)
	GetTransaction(ctx context.Context, tenantID, id string) (*models.CreditTransaction, error)
	ListTransactions(ctx context.Context, tenantID string, offset, limit int) ([]models.CreditTransaction, int64, error)
}

type BatchCampaignStore interface {
	Create(ctx context.Context, campaign *models.BatchCampaign, recipients []models.BatchCampaignRecipient) error
	GetByID(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error)
	List(ctx context.Context, tenantID string, offset, limit int) ([]models.BatchCampaign, int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.BatchCampaign, error)
	UpdateIf(ctx context.Context, cond repository.BatchCond, patch repository.BatchPatch) (bool, error)
	NextPending(ctx context.Context, batchID string, limit int) ([]models.BatchCampaignRecipient, error)
	MarkRecipient(ctx context.Context, recipientID string, status models.RecipientStatus, lastError string, at time.Time) (bool, error)
	ListRecipients(ctx context.Context, batchID string) ([]models.BatchCampaignRecipient, error)
}

type ScheduledMessageStore interface {
	Create(ctx context.Context, msg *models.ScheduledMessage) error
	GetByID(ctx context.Context, tenantID, id string) (*models.ScheduledMessage, error)
	List(ctx context.Context, tenantID string, status models.ScheduledMessageStatus, offset, limit int) ([]models.ScheduledMessage, int64, error)
	ListDue(ctx context.Context, now, claimableBefore time.Time, limit int) ([]models.ScheduledMessage, error)
	UpdateIf(ctx context.Context, cond repository.ScheduledCond, patch repository.ScheduledPatch) (bool, error)
}

type ProcessLogStore interface {
	Create(ctx context.Context, log *models.ProcessLog) error
	List(ctx context.Context, tenantID, entityType, entityID string, offset, limit int) ([]models.ProcessLog, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityLogger records state changes of scheduled work
type ActivityLogger interface {
	Log(ctx context.Context, tenantID, entityType, entityID, stage, status, message string, metadata map[string]interface{})
}

// EventPublisher publishes JSON events to a queue. A nil publisher is allowed where noted.
type EventPublisher interface {
	PublishMessage(ctx context.Context, queueName string, message map[string]interface{}) error
}

// settleGrace bounds the state writes that follow a provider call
const settleGrace = 10 * time.Second

// claimedContext carries work on a held claim through to its settle writes even when the
// sweep's caller goes away. The deadline covers one dispatch plus settling it.
func claimedContext(ctx context.Context, dispatchTimeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout+settleGrace)
}

// Spender is the Credit Gate as seen by the billable call paths
type Spender interface {
	Authorize(ctx context.Context, tenantID string, amount int64, reason, reference string) (*models.Charge, error)
	Refund(ctx context.Context, charge *models.Charge, reason string) error
	MessageCost(body string, mediaCount int) int64
}

var (
	_ CampaignStore         = (*repository.CampaignRepository)(nil)
	_ LeadStore             = (*repository.LeadRepository)(nil)
	_ EnrollmentStore       = (*repository.EnrollmentRepository)(nil)
	_ CreditStore           = (*repository.CreditRepository)(nil)
	_ BatchCampaignStore    = (*repository.BatchCampaignRepository)(nil)
	_ ScheduledMessageStore = (*repository.ScheduledMessageRepository)(nil)
	_ ProcessLogStore       = (*repository.ProcessLogRepository)(nil)
)
