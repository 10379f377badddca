package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/config"
	"github.com/onegreenvn/green-outreach-services-backend/internal/database/repository"
	"github.com/onegreenvn/green-outreach-services-backend/internal/messaging"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

func scheduledStatusPtr(s models.ScheduledMessageStatus) *models.ScheduledMessageStatus { return &s }

// ScheduledMessageService manages one-off messages and sends them when due
type ScheduledMessageService struct {
	messages   ScheduledMessageStore
	leads      LeadStore
	credits    Spender
	provider   messaging.Provider
	publisher  EventPublisher
	activity   ActivityLogger
	cfg        config.SchedulerConfig
	senderID   string
	eventQueue string
	disqualify []string
	now        func() time.Time
}

func NewScheduledMessageService(
	messages ScheduledMessageStore,
	leads LeadStore,
	credits Spender,
	provider messaging.Provider,
	publisher EventPublisher,
	activity ActivityLogger,
	cfg *config.Config,
) *ScheduledMessageService {
	return &ScheduledMessageService{
		messages:   messages,
		leads:      leads,
		credits:    credits,
		provider:   provider,
		publisher:  publisher,
		activity:   activity,
		cfg:        cfg.Scheduler,
		senderID:   cfg.Provider.SenderID,
		eventQueue: cfg.RabbitMQ.MessageQueue,
		disqualify: cfg.DisqualifyingStatuses,
		now:        time.Now,
	}
}

func (s *ScheduledMessageService) log(ctx context.Context, m *models.ScheduledMessage, stage, status, message string) {
	if s.activity == nil {
		return
	}
	s.activity.Log(ctx, m.TenantID, models.EntityScheduledMessage, m.ID, stage, status, message, map[string]interface{}{
		"lead_id": m.LeadID,
	})
}

// Create schedules a message to one lead
func (s *ScheduledMessageService) Create(ctx context.Context, tenantID string, req *models.CreateScheduledMessageRequest) (*models.ScheduledMessage, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, apperrors.NewValidation("body is required")
	}
	if !req.ScheduledFor.After(s.now()) {
		return nil, apperrors.NewValidation("scheduled_for must be in the future")
	}
	if _, err := s.leads.GetByID(ctx, tenantID, req.LeadID); err != nil {
		return nil, err
	}

	msg := &models.ScheduledMessage{
		TenantID:     tenantID,
		LeadID:       req.LeadID,
		Channel:      "sms",
		Body:         req.Body,
		MediaURLs:    pq.StringArray(req.MediaURLs),
		Status:       models.ScheduledPending,
		ScheduledFor: req.ScheduledFor,
		CreditsCost:  s.credits.MessageCost(req.Body, len(req.MediaURLs)),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create scheduled message: %w", err)
	}
	s.log(ctx, msg, "scheduled", models.LogStatusInfo, fmt.Sprintf("Message scheduled for %s", msg.ScheduledFor.Format(time.RFC3339)))
	return msg, nil
}

// Get returns one scheduled message
func (s *ScheduledMessageService) Get(ctx context.Context, tenantID, id string) (*models.ScheduledMessage, error) {
	return s.messages.GetByID(ctx, tenantID, id)
}

// List returns a page of scheduled messages, optionally filtered by status
func (s *ScheduledMessageService) List(ctx context.Context, tenantID string, status models.ScheduledMessageStatus, offset, limit int) ([]models.ScheduledMessage, int64, error) {
	return s.messages.List(ctx, tenantID, status, offset, limit)
}

// Update edits a message that is still pending and not picked up by a sweep
func (s *ScheduledMessageService) Update(ctx context.Context, tenantID, id string, req *models.UpdateScheduledMessageRequest) (*models.ScheduledMessage, error) {
	msg, err := s.messages.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !msg.Editable() {
		return nil, apperrors.NewConflict("scheduled message %s is %s and can no longer be edited", id, msg.Status)
	}

	patch := repository.ScheduledPatch{}
	body := msg.Body
	media := len(msg.MediaURLs)
	if req.Body != nil {
		if strings.TrimSpace(*req.Body) == "" {
			return nil, apperrors.NewValidation("body cannot be empty")
		}
		body = *req.Body
		patch.Body = req.Body
	}
	if req.MediaURLs != nil {
		patch.MediaURLs = req.MediaURLs
		patch.SetMedia = true
		media = len(req.MediaURLs)
	}
	if req.ScheduledFor != nil {
		if !req.ScheduledFor.After(s.now()) {
			return nil, apperrors.NewValidation("scheduled_for must be in the future")
		}
		patch.ScheduledFor = req.ScheduledFor
	}
	cost := s.credits.MessageCost(body, media)
	patch.CreditsCost = &cost

	applied, err := s.messages.UpdateIf(ctx, repository.ScheduledCond{
		ID:        id,
		TenantID:  tenantID,
		Status:    models.ScheduledPending,
		Unclaimed: true,
	}, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update scheduled message: %w", err)
	}
	if !applied {
		return nil, apperrors.NewConflict("scheduled message %s was picked up for sending", id)
	}
	patch.Apply(msg)
	s.log(ctx, msg, "updated", models.LogStatusInfo, "Scheduled message updated")
	return msg, nil
}

// Cancel withdraws a pending message
func (s *ScheduledMessageService) Cancel(ctx context.Context, tenantID, id string) (*models.ScheduledMessage, error) {
	msg, err := s.messages.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !msg.Editable() {
		return nil, apperrors.NewConflict("scheduled message %s is %s and can no longer be cancelled", id, msg.Status)
	}
	patch := repository.ScheduledPatch{Status: scheduledStatusPtr(models.ScheduledCancelled)}
	applied, err := s.messages.UpdateIf(ctx, repository.ScheduledCond{
		ID:        id,
		TenantID:  tenantID,
		Status:    models.ScheduledPending,
		Unclaimed: true,
	}, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel scheduled message: %w", err)
	}
	if !applied {
		return nil, apperrors.NewConflict("scheduled message %s was picked up for sending", id)
	}
	patch.Apply(msg)
	s.log(ctx, msg, "cancelled", models.LogStatusInfo, "Scheduled message cancelled")
	return msg, nil
}

// Sweep sends every pending message whose time has come
func (s *ScheduledMessageService) Sweep(ctx context.Context) (models.SweepResult, error) {
	now := s.now()
	due, err := s.messages.ListDue(ctx, now, now.Add(-s.cfg.ClaimLease), s.cfg.BatchSize)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("failed to list due scheduled messages: %w", err)
	}

	tally := &sweepTally{res: models.SweepResult{Due: len(due)}}
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range due {
		msg := &due[i]
		g.Go(func() error {
			tally.add(s.processDue(ctx, msg))
			return nil
		})
	}
	_ = g.Wait()
	return tally.res, nil
}

func (s *ScheduledMessageService) processDue(ctx context.Context, msg *models.ScheduledMessage) sweepOutcome {
	entry := logrus.WithField("scheduled_message_id", msg.ID)

	claimedAt := s.now()
	lease := claimedAt.Add(-s.cfg.ClaimLease)
	claim := repository.ScheduledPatch{ClaimedAt: &claimedAt}
	ok, err := s.messages.UpdateIf(ctx, repository.ScheduledCond{
		ID:              msg.ID,
		Status:          models.ScheduledPending,
		ClaimableBefore: &lease,
	}, claim)
	if err != nil {
		entry.Errorf("Failed to claim scheduled message: %v", err)
		return outcomeSkipped
	}
	if !ok {
		return outcomeSkipped
	}
	claim.Apply(msg)
	ctx, release := claimedContext(ctx, s.cfg.DispatchTimeout)
	defer release()

	lead, err := s.leads.GetByID(ctx, msg.TenantID, msg.LeadID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return s.finish(ctx, msg, models.ScheduledCancelled, "lead no longer exists", nil)
		}
		return s.finish(ctx, msg, models.ScheduledFailed, err.Error(), nil)
	}
	if !lead.Contactable(s.disqualify) {
		return s.finish(ctx, msg, models.ScheduledCancelled, "lead can no longer be contacted", nil)
	}

	cost := s.credits.MessageCost(msg.Body, len(msg.MediaURLs))
	charge, err := s.credits.Authorize(ctx, msg.TenantID, cost, models.ReasonScheduledSend, msg.ID)
	if err != nil {
		return s.finish(ctx, msg, models.ScheduledFailed, err.Error(), nil)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	receipt, err := s.provider.Send(sendCtx, messaging.Message{
		To:        lead.Phone,
		From:      s.senderID,
		Body:      msg.Body,
		MediaURLs: msg.MediaURLs,
		Reference: msg.ID,
	})
	cancel()
	if err != nil {
		if refundErr := s.credits.Refund(ctx, charge, models.ReasonScheduledSend); refundErr != nil {
			entry.Errorf("Failed to refund charge %s: %v", charge.TransactionID, refundErr)
			utils.CaptureError(refundErr, map[string]string{"component": "scheduled_sweep", "charge_id": charge.TransactionID})
		}
		return s.finish(ctx, msg, models.ScheduledFailed, apperrors.NewProvider("messaging", err).Error(), nil)
	}
	if receipt == nil {
		receipt = &messaging.Receipt{Status: "queued"}
	}
	return s.finish(ctx, msg, models.ScheduledSent, "", receipt)
}

// finish settles a claimed message. Only the holder of the claim may settle it.
func (s *ScheduledMessageService) finish(ctx context.Context, msg *models.ScheduledMessage, status models.ScheduledMessageStatus, lastError string, receipt *messaging.Receipt) sweepOutcome {
	now := s.now()
	patch := repository.ScheduledPatch{Status: scheduledStatusPtr(status)}
	if lastError != "" {
		patch.LastError = &lastError
	}
	if receipt != nil {
		patch.SentAt = &now
		patch.ProviderMessageID = &receipt.ProviderMessageID
	}
	applied, err := s.messages.UpdateIf(ctx, repository.ScheduledCond{
		ID:        msg.ID,
		Status:    models.ScheduledPending,
		ClaimedAt: msg.ClaimedAt,
	}, patch)
	if err != nil || !applied {
		logrus.WithField("scheduled_message_id", msg.ID).Errorf("Failed to settle scheduled message as %s (applied=%v): %v", status, applied, err)
		if err != nil {
			utils.CaptureError(err, map[string]string{"component": "scheduled_sweep", "scheduled_message_id": msg.ID})
		}
	} else {
		patch.Apply(msg)
	}

	switch status {
	case models.ScheduledSent:
		s.log(ctx, msg, "sent", models.LogStatusSuccess, "Scheduled message sent")
		s.publish(ctx, msg, receipt)
		return outcomeSent
	case models.ScheduledCancelled:
		s.log(ctx, msg, "cancelled", models.LogStatusWarning, "Scheduled message cancelled: "+lastError)
		return outcomeCancelled
	default:
		s.log(ctx, msg, "failed", models.LogStatusError, "Scheduled message failed: "+lastError)
		return outcomeFailed
	}
}

func (s *ScheduledMessageService) publish(ctx context.Context, msg *models.ScheduledMessage, receipt *messaging.Receipt) {
	if s.publisher == nil || s.eventQueue == "" {
		return
	}
	if err := s.publisher.PublishMessage(ctx, s.eventQueue, map[string]interface{}{
		"type":                 "scheduled_message_sent",
		"tenant_id":            msg.TenantID,
		"scheduled_message_id": msg.ID,
		"lead_id":              msg.LeadID,
		"provider_message_id":  receipt.ProviderMessageID,
	}); err != nil {
		logrus.Warnf("Failed to publish scheduled_message_sent event: %v", err)
	}
}
