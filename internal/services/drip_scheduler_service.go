package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/config"
	"github.com/onegreenvn/green-outreach-services-backend/internal/database/repository"
	"github.com/onegreenvn/green-outreach-services-backend/internal/messaging"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

type sweepOutcome int

const (
	outcomeSkipped sweepOutcome = iota
	outcomeSent
	outcomeCompleted
	outcomeFailed
	outcomePaused
	outcomeCancelled
)

type sweepTally struct {
	mu  sync.Mutex
	res models.SweepResult
}

func (r *sweepTally) add(o sweepOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o {
	case outcomeSent:
		r.res.Sent++
	case outcomeCompleted:
		r.res.Sent++
		r.res.Completed++
	case outcomeFailed:
		r.res.Failed++
	case outcomePaused:
		r.res.Failed++
		r.res.Paused++
	case outcomeCancelled:
		r.res.Cancelled++
	default:
		r.res.Skipped++
	}
}

// DripSchedulerService sweeps due enrollments and sends their current step
type DripSchedulerService struct {
	enrollments EnrollmentStore
	campaigns   CampaignStore
	leads       LeadStore
	machine     *EnrollmentService
	credits     Spender
	provider    messaging.Provider
	publisher   EventPublisher
	cfg         config.SchedulerConfig
	senderID    string
	eventQueue  string
	disqualify  []string
	now         func() time.Time
}

func NewDripSchedulerService(
	enrollments EnrollmentStore,
	campaigns CampaignStore,
	leads LeadStore,
	machine *EnrollmentService,
	credits Spender,
	provider messaging.Provider,
	publisher EventPublisher,
	cfg *config.Config,
) *DripSchedulerService {
	return &DripSchedulerService{
		enrollments: enrollments,
		campaigns:   campaigns,
		leads:       leads,
		machine:     machine,
		credits:     credits,
		provider:    provider,
		publisher:   publisher,
		cfg:         cfg.Scheduler,
		senderID:    cfg.Provider.SenderID,
		eventQueue:  cfg.RabbitMQ.MessageQueue,
		disqualify:  cfg.DisqualifyingStatuses,
		now:         time.Now,
	}
}

// Sweep sends the current step of every due active enrollment, at most BatchSize per call
func (s *DripSchedulerService) Sweep(ctx context.Context) (models.SweepResult, error) {
	due, err := s.enrollments.ListDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("failed to list due enrollments: %w", err)
	}

	tally := &sweepTally{res: models.SweepResult{Due: len(due)}}
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range due {
		e := due[i]
		g.Go(func() error {
			tally.add(s.processDue(ctx, &e))
			return nil
		})
	}
	_ = g.Wait()

	if tally.res.Due > 0 {
		logrus.WithFields(logrus.Fields{
			"due":       tally.res.Due,
			"sent":      tally.res.Sent,
			"failed":    tally.res.Failed,
			"paused":    tally.res.Paused,
			"completed": tally.res.Completed,
			"skipped":   tally.res.Skipped,
		}).Info("Drip sweep finished")
	}
	return tally.res, nil
}

// claim moves next_send_at past the retry interval so overlapping sweeps skip the row
func (s *DripSchedulerService) claim(ctx context.Context, e *models.Enrollment) (bool, error) {
	leaseUntil := s.now().Add(s.cfg.RetryInterval)
	cond := repository.EnrollmentCond{
		ID:          e.ID,
		Statuses:    []models.EnrollmentStatus{models.EnrollmentStatusActive},
		CurrentStep: intPtr(e.CurrentStep),
		NextSendAt:  e.NextSendAt,
	}
	patch := repository.EnrollmentPatch{NextSendAt: timePtr(leaseUntil)}
	ok, err := s.enrollments.UpdateIf(ctx, cond, patch)
	if err != nil || !ok {
		return false, err
	}
	patch.Apply(e)
	return true, nil
}

func (s *DripSchedulerService) processDue(ctx context.Context, e *models.Enrollment) sweepOutcome {
	entry := logrus.WithFields(logrus.Fields{
		"enrollment_id": e.ID,
		"campaign_id":   e.CampaignID,
		"step":          e.CurrentStep,
	})

	claimed, err := s.claim(ctx, e)
	if err != nil {
		entry.Errorf("Failed to claim enrollment: %v", err)
		return outcomeSkipped
	}
	if !claimed {
		return outcomeSkipped
	}
	ctx, cancel := claimedContext(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	campaign, err := s.campaigns.GetByID(ctx, e.CampaignID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return s.cancelled(ctx, e, "campaign no longer exists")
		}
		return s.failed(ctx, e, fmt.Errorf("failed to load campaign: %w", err))
	}

	step, ok := campaign.StepAt(e.CurrentStep)
	if !ok {
		if err := s.machine.Complete(ctx, e); err != nil {
			entry.Errorf("Failed to complete enrollment: %v", err)
			return outcomeSkipped
		}
		return outcomeCompleted
	}

	lead, err := s.leads.GetByID(ctx, e.TenantID, e.LeadID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return s.cancelled(ctx, e, "lead no longer exists")
		}
		return s.failed(ctx, e, fmt.Errorf("failed to load lead: %w", err))
	}
	if !lead.Contactable(s.disqualify) {
		return s.cancelled(ctx, e, "lead can no longer be contacted")
	}

	receipt, charge, err := s.dispatch(ctx, e, campaign, step, lead)
	if err != nil {
		return s.failed(ctx, e, err)
	}

	sentAt := s.now()
	status, err := s.machine.Advance(ctx, e, campaign, sentAt)
	if err != nil {
		entry.Errorf("Step sent but enrollment could not advance: %v", err)
		utils.CaptureError(err, map[string]string{"component": "drip_sweep", "enrollment_id": e.ID})
		return outcomeSent
	}

	s.publish(ctx, map[string]interface{}{
		"type":                "drip_step_sent",
		"tenant_id":           e.TenantID,
		"enrollment_id":       e.ID,
		"campaign_id":         e.CampaignID,
		"lead_id":             e.LeadID,
		"step_number":         step.StepNumber,
		"provider_message_id": receipt.ProviderMessageID,
		"credits":             charge.Amount,
		"sent_at":             sentAt,
	})

	if status == models.EnrollmentStatusCompleted {
		return outcomeCompleted
	}
	return outcomeSent
}

// dispatch charges the tenant and sends the step; a charge is refunded if the send fails
func (s *DripSchedulerService) dispatch(ctx context.Context, e *models.Enrollment, campaign *models.Campaign, step *models.CampaignStep, lead *models.Lead) (*messaging.Receipt, *models.Charge, error) {
	body := step.Message
	cost := s.credits.MessageCost(body, len(step.MediaURLs))
	charge, err := s.credits.Authorize(ctx, e.TenantID, cost, models.ReasonMessageSend, e.ID)
	if err != nil {
		return nil, nil, err
	}

	sender := campaign.SenderID
	if sender == "" {
		sender = s.senderID
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	receipt, err := s.provider.Send(sendCtx, messaging.Message{
		To:        lead.Phone,
		From:      sender,
		Body:      body,
		MediaURLs: step.MediaURLs,
		Reference: e.ID,
	})
	cancel()
	if err != nil {
		if refundErr := s.credits.Refund(ctx, charge, models.ReasonMessageSend); refundErr != nil {
			logrus.WithField("enrollment_id", e.ID).Errorf("Failed to refund charge %s: %v", charge.TransactionID, refundErr)
			utils.CaptureError(refundErr, map[string]string{"component": "drip_sweep", "charge_id": charge.TransactionID})
		}
		return nil, nil, apperrors.NewProvider("messaging", err)
	}
	if receipt == nil {
		receipt = &messaging.Receipt{Status: "queued"}
	}
	return receipt, charge, nil
}

func (s *DripSchedulerService) failed(ctx context.Context, e *models.Enrollment, cause error) sweepOutcome {
	paused, err := s.machine.RecordFailure(ctx, e, cause, s.now().Add(s.cfg.RetryInterval), s.cfg.MaxConsecutiveFailures)
	if err != nil {
		logrus.WithField("enrollment_id", e.ID).Errorf("Failed to record send failure: %v", err)
		return outcomeFailed
	}
	if !apperrors.IsInsufficientFunds(cause) && !apperrors.IsProvider(cause) {
		utils.CaptureError(cause, map[string]string{"component": "drip_sweep", "enrollment_id": e.ID})
	}
	if paused {
		s.publish(ctx, map[string]interface{}{
			"type":          "enrollment_paused",
			"tenant_id":     e.TenantID,
			"enrollment_id": e.ID,
			"reason":        cause.Error(),
		})
		return outcomePaused
	}
	return outcomeFailed
}

func (s *DripSchedulerService) cancelled(ctx context.Context, e *models.Enrollment, reason string) sweepOutcome {
	if err := s.machine.cancel(ctx, e, reason); err != nil {
		logrus.WithField("enrollment_id", e.ID).Errorf("Failed to cancel enrollment: %v", err)
		return outcomeSkipped
	}
	return outcomeCancelled
}

func (s *DripSchedulerService) publish(ctx context.Context, message map[string]interface{}) {
	if s.publisher == nil || s.eventQueue == "" {
		return
	}
	if err := s.publisher.PublishMessage(ctx, s.eventQueue, message); err != nil {
		logrus.Warnf("Failed to publish %v event: %v", message["type"], err)
	}
}
