package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/config"
	"github.com/onegreenvn/green-outreach-services-backend/internal/database/repository"
	"github.com/onegreenvn/green-outreach-services-backend/internal/messaging"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/services/excel"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

// PlanBatches splits total recipients into percentage sized batches spaced intervalHours apart.
// EstimatedCompletion is when the last batch goes out.
func PlanBatches(total, percentage, intervalHours int, start time.Time) models.BatchPlan {
	size := (total*percentage + 99) / 100
	if size < 1 {
		size = 1
	}
	batches := 0
	if total > 0 {
		batches = (total + size - 1) / size
	}
	last := batches - 1
	if last < 0 {
		last = 0
	}
	return models.BatchPlan{
		TotalLeads:          total,
		BatchSize:           size,
		TotalBatches:        batches,
		StartDate:           start,
		EstimatedCompletion: start.Add(time.Duration(last*intervalHours) * time.Hour),
	}
}

func batchStatusPtr(s models.BatchStatus) *models.BatchStatus { return &s }

// BatchCampaignService plans batch campaigns and sends their batches when due
type BatchCampaignService struct {
	batches    BatchCampaignStore
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

func NewBatchCampaignService(
	batches BatchCampaignStore,
	leads LeadStore,
	credits Spender,
	provider messaging.Provider,
	publisher EventPublisher,
	activity ActivityLogger,
	cfg *config.Config,
) *BatchCampaignService {
	return &BatchCampaignService{
		batches:    batches,
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

func (s *BatchCampaignService) log(ctx context.Context, b *models.BatchCampaign, stage, status, message string, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	s.activity.Log(ctx, b.TenantID, models.EntityBatchCampaign, b.ID, stage, status, message, metadata)
}

func (s *BatchCampaignService) validate(req *models.ScheduleBatchCampaignRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidation("name is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperrors.NewValidation("message is required")
	}
	if req.PercentagePerBatch < 1 || req.PercentagePerBatch > 100 {
		return apperrors.NewValidation("percentage_per_batch must be between 1 and 100, got %d", req.PercentagePerBatch)
	}
	if req.IntervalHours < 1 {
		return apperrors.NewValidation("interval_hours must be at least 1, got %d", req.IntervalHours)
	}
	if !req.StartDate.After(s.now()) {
		return apperrors.NewValidation("start_date must be in the future")
	}
	if len(req.LeadIDs) == 0 {
		return apperrors.NewValidation("at least one lead is required")
	}
	return nil
}

// Schedule validates and plans a batch campaign and stores its recipient list.
// Duplicate and unknown lead ids are dropped and counted.
func (s *BatchCampaignService) Schedule(ctx context.Context, tenantID string, req *models.ScheduleBatchCampaignRequest) (*models.BatchCampaignResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	unique := make([]string, 0, len(req.LeadIDs))
	seen := make(map[string]bool, len(req.LeadIDs))
	for _, id := range req.LeadIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	duplicates := len(req.LeadIDs) - len(unique)

	leads, err := s.leads.GetByIDs(ctx, tenantID, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}
	known := make(map[string]bool, len(leads))
	for _, l := range leads {
		known[l.ID] = true
	}
	recipients := make([]models.BatchCampaignRecipient, 0, len(unique))
	for _, id := range unique {
		if !known[id] {
			continue
		}
		recipients = append(recipients, models.BatchCampaignRecipient{
			LeadID:   id,
			Position: len(recipients),
			Status:   models.RecipientPending,
		})
	}
	unknown := len(unique) - len(recipients)
	if len(recipients) == 0 {
		return nil, apperrors.NewValidation("none of the %d lead ids belong to this tenant", len(unique))
	}

	plan := PlanBatches(len(recipients), req.PercentagePerBatch, req.IntervalHours, req.StartDate)
	autoRepeat := true
	if req.AutoRepeat != nil {
		autoRepeat = *req.AutoRepeat
	}
	start := req.StartDate
	campaign := &models.BatchCampaign{
		TenantID:            tenantID,
		Name:                strings.TrimSpace(req.Name),
		Message:             req.Message,
		MediaURLs:           pq.StringArray(req.MediaURLs),
		SenderID:            req.SenderID,
		TotalLeads:          plan.TotalLeads,
		PercentagePerBatch:  req.PercentagePerBatch,
		IntervalHours:       req.IntervalHours,
		BatchSize:           plan.BatchSize,
		TotalBatches:        plan.TotalBatches,
		StartDate:           start,
		NextBatchDate:       &start,
		EstimatedCompletion: plan.EstimatedCompletion,
		Status:              models.BatchStatusScheduled,
		AutoRepeat:          autoRepeat,
	}
	if err := s.batches.Create(ctx, campaign, recipients); err != nil {
		return nil, fmt.Errorf("failed to create batch campaign: %w", err)
	}

	s.log(ctx, campaign, "scheduled", models.LogStatusInfo,
		fmt.Sprintf("Scheduled %d recipients in %d batches of %d", plan.TotalLeads, plan.TotalBatches, plan.BatchSize),
		map[string]interface{}{"duplicates": duplicates, "unknown": unknown})

	return &models.BatchCampaignResponse{
		Campaign:         campaign,
		Plan:             plan,
		DuplicateLeads:   duplicates,
		UnknownLeads:     unknown,
		EstimatedCredits: s.credits.MessageCost(req.Message, len(req.MediaURLs)) * int64(plan.TotalLeads),
	}, nil
}

// ResolveImported turns an imported spreadsheet into lead ids. Phone numbers
// with no matching lead are returned as unmatched.
func (s *BatchCampaignService) ResolveImported(ctx context.Context, tenantID string, imported *excel.ImportResult) ([]string, []string, error) {
	leadIDs := append([]string(nil), imported.LeadIDs...)
	if len(imported.Phones) == 0 {
		return leadIDs, nil, nil
	}
	byPhone, err := s.leads.FindIDsByPhones(ctx, tenantID, imported.Phones)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve phones: %w", err)
	}
	var unmatched []string
	for _, phone := range imported.Phones {
		if id, ok := byPhone[phone]; ok {
			leadIDs = append(leadIDs, id)
			continue
		}
		unmatched = append(unmatched, phone)
	}
	return leadIDs, unmatched, nil
}

// Get returns one batch campaign
func (s *BatchCampaignService) Get(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error) {
	return s.batches.GetByID(ctx, tenantID, id)
}

// List returns a page of batch campaigns
func (s *BatchCampaignService) List(ctx context.Context, tenantID string, offset, limit int) ([]models.BatchCampaign, int64, error) {
	return s.batches.List(ctx, tenantID, offset, limit)
}

// Recipients returns a campaign's recipient list
func (s *BatchCampaignService) Recipients(ctx context.Context, tenantID, id string) (*models.BatchCampaign, []models.BatchCampaignRecipient, error) {
	campaign, err := s.batches.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	recipients, err := s.batches.ListRecipients(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return campaign, recipients, nil
}

func (s *BatchCampaignService) transition(ctx context.Context, b *models.BatchCampaign, to models.BatchStatus, patch repository.BatchPatch, message string) error {
	if !b.Status.CanTransitionTo(to) {
		return apperrors.NewValidation("cannot move batch campaign %s from %s to %s", b.ID, b.Status, to)
	}
	patch.Status = batchStatusPtr(to)
	applied, err := s.batches.UpdateIf(ctx, repository.BatchCond{ID: b.ID, Statuses: []models.BatchStatus{b.Status}}, patch)
	if err != nil {
		return fmt.Errorf("failed to update batch campaign %s: %w", b.ID, err)
	}
	if !applied {
		return apperrors.NewConflict("batch campaign %s changed concurrently", b.ID)
	}
	patch.Apply(b)
	s.log(ctx, b, string(to), models.LogStatusInfo, message, nil)
	return nil
}

// Pause stops further batches until resumed
func (s *BatchCampaignService) Pause(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error) {
	b, err := s.batches.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, b, models.BatchStatusPaused, repository.BatchPatch{}, "Batch campaign paused"); err != nil {
		return nil, err
	}
	return b, nil
}

// Resume continues a paused campaign; an overdue next batch goes out on the next sweep
func (s *BatchCampaignService) Resume(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error) {
	b, err := s.batches.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BatchStatusPaused {
		return nil, apperrors.NewValidation("only paused batch campaigns can be resumed, %s is %s", id, b.Status)
	}
	to := models.BatchStatusRunning
	if b.BatchesSent == 0 {
		to = models.BatchStatusScheduled
	}
	// a credit denial paused the batch mid-send; the rest goes out on the next sweep
	next := s.now()
	if b.LastError == "" && b.NextBatchDate != nil && b.NextBatchDate.After(next) {
		next = *b.NextBatchDate
	}
	patch := repository.BatchPatch{NextBatchDate: timePtr(next), LastError: strPtr("")}
	if err := s.transition(ctx, b, to, patch, "Batch campaign resumed"); err != nil {
		return nil, err
	}
	return b, nil
}

// Cancel stops the campaign for good
func (s *BatchCampaignService) Cancel(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error) {
	b, err := s.batches.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, b, models.BatchStatusCancelled, repository.BatchPatch{ClearNext: true}, "Batch campaign cancelled"); err != nil {
		return nil, err
	}
	return b, nil
}

// Sweep sends the next batch of every due campaign
func (s *BatchCampaignService) Sweep(ctx context.Context) (models.SweepResult, error) {
	due, err := s.batches.ListDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("failed to list due batch campaigns: %w", err)
	}
	result := models.SweepResult{Due: len(due)}
	for i := range due {
		res, err := s.runBatch(ctx, &due[i])
		if err != nil {
			logrus.WithField("batch_campaign_id", due[i].ID).Errorf("Batch run failed: %v", err)
			utils.CaptureError(err, map[string]string{"component": "batch_sweep", "batch_campaign_id": due[i].ID})
			result.Failed++
			continue
		}
		result.Merge(res)
	}
	return result, nil
}

type batchTally struct {
	mu        sync.Mutex
	attempted int
	sent      int
	failed    int
	skipped   int
	denied    error
}

func (t *batchTally) isDenied() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.denied != nil
}

// runBatch claims one due campaign and sends up to batch_size pending recipients
func (s *BatchCampaignService) runBatch(ctx context.Context, b *models.BatchCampaign) (models.SweepResult, error) {
	now := s.now()
	next := now.Add(b.Interval())
	claimed, err := s.batches.UpdateIf(ctx, repository.BatchCond{
		ID:            b.ID,
		Statuses:      []models.BatchStatus{models.BatchStatusScheduled, models.BatchStatusRunning},
		NextBatchDate: b.NextBatchDate,
	}, repository.BatchPatch{NextBatchDate: &next})
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("failed to claim batch: %w", err)
	}
	if !claimed {
		return models.SweepResult{Skipped: 1}, nil
	}
	b.NextBatchDate = &next
	// the batch is ours now; recipients must be settled even if the caller is gone
	ctx = context.WithoutCancel(ctx)

	recipients, err := s.batches.NextPending(ctx, b.ID, b.BatchSize)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("failed to load pending recipients: %w", err)
	}
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.LeadID)
	}
	leads, err := s.leads.GetByIDs(ctx, b.TenantID, ids)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("failed to load leads: %w", err)
	}
	leadByID := make(map[string]*models.Lead, len(leads))
	for i := range leads {
		leadByID[leads[i].ID] = &leads[i]
	}

	tally := &batchTally{}
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range recipients {
		r := recipients[i]
		g.Go(func() error {
			s.sendRecipient(ctx, b, &r, leadByID[r.LeadID], tally)
			return nil
		})
	}
	_ = g.Wait()

	settleCtx, cancel := context.WithTimeout(ctx, settleGrace)
	defer cancel()
	return s.finishBatch(settleCtx, b, len(recipients), tally)
}

func (s *BatchCampaignService) sendRecipient(ctx context.Context, b *models.BatchCampaign, r *models.BatchCampaignRecipient, lead *models.Lead, tally *batchTally) {
	if tally.isDenied() {
		return
	}
	ctx, release := claimedContext(ctx, s.cfg.DispatchTimeout)
	defer release()
	settle := func(status models.RecipientStatus, lastError string) {
		if _, err := s.batches.MarkRecipient(ctx, r.ID, status, lastError, s.now()); err != nil {
			logrus.WithField("recipient_id", r.ID).Errorf("Failed to settle recipient: %v", err)
		}
		tally.mu.Lock()
		defer tally.mu.Unlock()
		tally.attempted++
		switch status {
		case models.RecipientSent:
			tally.sent++
		case models.RecipientFailed:
			tally.failed++
		case models.RecipientSkipped:
			tally.skipped++
		}
	}

	if lead == nil {
		settle(models.RecipientSkipped, "lead no longer exists")
		return
	}
	if !lead.Contactable(s.disqualify) {
		settle(models.RecipientSkipped, "lead can no longer be contacted")
		return
	}

	cost := s.credits.MessageCost(b.Message, len(b.MediaURLs))
	charge, err := s.credits.Authorize(ctx, b.TenantID, cost, models.ReasonBatchSend, b.ID)
	if err != nil {
		if apperrors.IsInsufficientFunds(err) {
			tally.mu.Lock()
			if tally.denied == nil {
				tally.denied = err
			}
			tally.mu.Unlock()
			return
		}
		settle(models.RecipientFailed, err.Error())
		return
	}

	sender := b.SenderID
	if sender == "" {
		sender = s.senderID
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	_, err = s.provider.Send(sendCtx, messaging.Message{
		To:        lead.Phone,
		From:      sender,
		Body:      b.Message,
		MediaURLs: b.MediaURLs,
		Reference: r.ID,
	})
	cancel()
	if err != nil {
		if refundErr := s.credits.Refund(ctx, charge, models.ReasonBatchSend); refundErr != nil {
			logrus.WithField("recipient_id", r.ID).Errorf("Failed to refund charge %s: %v", charge.TransactionID, refundErr)
		}
		settle(models.RecipientFailed, apperrors.NewProvider("messaging", err).Error())
		return
	}
	settle(models.RecipientSent, "")
}

// finishBatch records counters and moves the campaign to its next status
func (s *BatchCampaignService) finishBatch(ctx context.Context, b *models.BatchCampaign, picked int, tally *batchTally) (models.SweepResult, error) {
	now := s.now()
	counters := repository.BatchPatch{
		LeadsSent:   intPtr(b.LeadsSent + tally.attempted),
		LeadsFailed: intPtr(b.LeadsFailed + tally.failed),
	}
	if tally.attempted > 0 {
		counters.BatchesSent = intPtr(b.BatchesSent + 1)
	}
	if _, err := s.batches.UpdateIf(ctx, repository.BatchCond{ID: b.ID}, counters); err != nil {
		return models.SweepResult{}, fmt.Errorf("failed to record batch counters: %w", err)
	}
	counters.Apply(b)

	result := models.SweepResult{Sent: tally.sent, Failed: tally.failed, Skipped: tally.skipped}
	var (
		to      models.BatchStatus
		patch   repository.BatchPatch
		stage   string
		message string
	)
	switch {
	case tally.denied != nil:
		to = models.BatchStatusPaused
		patch = repository.BatchPatch{LastError: strPtr(tally.denied.Error())}
		stage, message = "paused", "Batch paused: "+tally.denied.Error()
		result.Paused++
	case b.LeadsSent >= b.TotalLeads || picked == 0 || !b.AutoRepeat:
		to = models.BatchStatusCompleted
		patch = repository.BatchPatch{CompletedAt: timePtr(now), ClearNext: true}
		stage, message = "completed", fmt.Sprintf("Batch campaign completed after %d batches", b.BatchesSent)
		result.Completed++
	default:
		to = models.BatchStatusRunning
		stage, message = "batch_sent", fmt.Sprintf("Batch %d of %d sent", b.BatchesSent, b.TotalBatches)
	}

	patch.Status = batchStatusPtr(to)
	applied, err := s.batches.UpdateIf(ctx, repository.BatchCond{
		ID:       b.ID,
		Statuses: []models.BatchStatus{models.BatchStatusScheduled, models.BatchStatusRunning},
	}, patch)
	if err != nil {
		return result, fmt.Errorf("failed to update batch status: %w", err)
	}
	if applied {
		patch.Apply(b)
	}

	s.log(ctx, b, stage, models.LogStatusSuccess, message, map[string]interface{}{
		"attempted":  tally.attempted,
		"sent":       tally.sent,
		"failed":     tally.failed,
		"skipped":    tally.skipped,
		"leads_sent": b.LeadsSent,
	})
	if s.publisher != nil && s.eventQueue != "" {
		if err := s.publisher.PublishMessage(ctx, s.eventQueue, map[string]interface{}{
			"type":              "batch_sent",
			"tenant_id":         b.TenantID,
			"batch_campaign_id": b.ID,
			"attempted":         tally.attempted,
			"sent":              tally.sent,
			"status":            b.Status,
		}); err != nil {
			logrus.Warnf("Failed to publish batch_sent event: %v", err)
		}
	}
	return result, nil
}
