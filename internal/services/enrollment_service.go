package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/database/repository"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// EnrollmentService owns the enrollment lifecycle. Every status change goes through
// a conditional update guarded by the status the change was decided from.
type EnrollmentService struct {
	campaigns     CampaignStore
	leads         LeadStore
	enrollments   EnrollmentStore
	activity      ActivityLogger
	disqualifying []string
	now           func() time.Time
}

func NewEnrollmentService(campaigns CampaignStore, leads LeadStore, enrollments EnrollmentStore, activity ActivityLogger, disqualifying []string) *EnrollmentService {
	return &EnrollmentService{
		campaigns:     campaigns,
		leads:         leads,
		enrollments:   enrollments,
		activity:      activity,
		disqualifying: disqualifying,
		now:           time.Now,
	}
}

func statusPtr(s models.EnrollmentStatus) *models.EnrollmentStatus { return &s }
func intPtr(v int) *int                                             { return &v }
func strPtr(v string) *string                                       { return &v }
func timePtr(t time.Time) *time.Time                                { return &t }

// stepDelay is the delay of the step at index, or zero past the last step
func stepDelay(campaign *models.Campaign, index int) time.Duration {
	if step, ok := campaign.StepAt(index); ok {
		return step.Delay()
	}
	return 0
}

func (s *EnrollmentService) log(ctx context.Context, e *models.Enrollment, stage, status, message string, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["campaign_id"] = e.CampaignID
	metadata["lead_id"] = e.LeadID
	metadata["current_step"] = e.CurrentStep
	s.activity.Log(ctx, e.TenantID, models.EntityEnrollment, e.ID, stage, status, message, metadata)
}

// Enroll puts a lead into a campaign. A lead that already has a row for the campaign is
// skipped, never duplicated.
func (s *EnrollmentService) Enroll(ctx context.Context, tenantID, campaignID, leadID string, trigger models.TriggerContext) (*models.EnrollResult, error) {
	campaign, err := s.campaigns.GetByTenantAndID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsActive {
		return nil, apperrors.NewValidation("campaign %s is not active", campaignID)
	}
	return s.enrollInCampaign(ctx, campaign, leadID, trigger)
}

func (s *EnrollmentService) enrollInCampaign(ctx context.Context, campaign *models.Campaign, leadID string, trigger models.TriggerContext) (*models.EnrollResult, error) {
	first, ok := campaign.StepAt(0)
	if !ok {
		return nil, apperrors.NewValidation("campaign %s has no steps", campaign.ID)
	}
	lead, err := s.leads.GetByID(ctx, campaign.TenantID, leadID)
	if err != nil {
		return nil, err
	}
	if !lead.Contactable(s.disqualifying) {
		return nil, apperrors.NewValidation("lead %s cannot be contacted", leadID)
	}

	now := s.now()
	enrollment := &models.Enrollment{
		CampaignID:   campaign.ID,
		LeadID:       leadID,
		TenantID:     campaign.TenantID,
		Status:       models.EnrollmentStatusActive,
		CurrentStep:  0,
		NextSendAt:   timePtr(now.Add(first.Delay())),
		EnrolledAt:   now,
		TriggerType:  trigger.Type,
		TriggerValue: trigger.Value,
	}
	created, err := s.enrollments.CreateIfAbsent(ctx, enrollment)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}
	if !created {
		result := &models.EnrollResult{Skipped: true, Reason: "already enrolled"}
		if existing, err := s.enrollments.GetByCampaignAndLead(ctx, campaign.ID, leadID); err == nil && existing != nil {
			result.EnrollmentID = existing.ID
			result.Reason = fmt.Sprintf("already enrolled (%s)", existing.Status)
		}
		return result, nil
	}

	s.log(ctx, enrollment, "enrolled", models.LogStatusSuccess, "Lead enrolled", map[string]interface{}{
		"trigger_type":  trigger.Type,
		"trigger_value": trigger.Value,
		"next_send_at":  enrollment.NextSendAt,
	})
	return &models.EnrollResult{EnrollmentID: enrollment.ID}, nil
}

// ReEnroll restarts or resumes a campaign for each lead independently and returns
// per-lead outcomes. Already active enrollments are skipped even when resetProgress is set.
// An inactive campaign accepts no re-enrollments.
func (s *EnrollmentService) ReEnroll(ctx context.Context, tenantID, campaignID string, leadIDs []string, resetProgress bool) (*models.ReEnrollResult, error) {
	campaign, err := s.campaigns.GetByTenantAndID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsActive {
		return nil, apperrors.NewValidation("campaign %s is not active", campaignID)
	}
	if len(campaign.Steps) == 0 {
		return nil, apperrors.NewValidation("campaign %s has no steps", campaignID)
	}
	if len(leadIDs) == 0 {
		return nil, apperrors.NewValidation("at least one lead id is required")
	}

	result := &models.ReEnrollResult{Items: make([]models.ReEnrollItem, 0, len(leadIDs))}
	seen := make(map[string]bool, len(leadIDs))
	for _, leadID := range leadIDs {
		if seen[leadID] {
			continue
		}
		seen[leadID] = true
		result.Add(s.reEnrollOne(ctx, campaign, leadID, resetProgress))
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"re_enrolled": result.ReEnrolledCount,
		"reset":       result.ResetCount,
		"skipped":     result.SkippedCount,
		"failed":      result.FailedCount,
	}).Info("Bulk re-enroll finished")
	return result, nil
}

func (s *EnrollmentService) reEnrollOne(ctx context.Context, campaign *models.Campaign, leadID string, resetProgress bool) models.ReEnrollItem {
	item := models.ReEnrollItem{LeadID: leadID}
	fail := func(err error) models.ReEnrollItem {
		item.Outcome = models.ReEnrollFailed
		item.Error = err.Error()
		return item
	}

	lead, err := s.leads.GetByID(ctx, campaign.TenantID, leadID)
	if err != nil {
		return fail(err)
	}
	if !lead.Contactable(s.disqualifying) {
		return fail(apperrors.NewValidation("lead %s cannot be contacted", leadID))
	}

	existing, err := s.enrollments.GetByCampaignAndLead(ctx, campaign.ID, leadID)
	if err != nil {
		return fail(err)
	}
	if existing == nil {
		res, err := s.enrollInCampaign(ctx, campaign, leadID, models.TriggerContext{Type: "re_enroll"})
		if err != nil {
			return fail(err)
		}
		item.EnrollmentID = res.EnrollmentID
		if res.Skipped {
			item.Outcome = models.ReEnrollSkipped
			item.Error = res.Reason
			return item
		}
		item.Outcome = models.ReEnrollCreated
		return item
	}

	item.EnrollmentID = existing.ID
	switch existing.Status {
	case models.EnrollmentStatusActive:
		item.Outcome = models.ReEnrollSkipped
		item.Error = "already active"
		return item
	case models.EnrollmentStatusPaused:
		if resetProgress {
			err = s.restart(ctx, campaign, existing)
			item.Outcome = models.ReEnrollReset
		} else {
			err = s.reactivate(ctx, campaign, existing, "reactivated")
			item.Outcome = models.ReEnrollReactivated
		}
	case models.EnrollmentStatusCompleted, models.EnrollmentStatusCancelled:
		err = s.restart(ctx, campaign, existing)
		item.Outcome = models.ReEnrollReset
	default:
		err = apperrors.NewValidation("enrollment %s has unknown status %q", existing.ID, existing.Status)
	}
	if err != nil {
		if apperrors.IsConflict(err) {
			item.Outcome = models.ReEnrollSkipped
			item.Error = err.Error()
			return item
		}
		return fail(err)
	}
	return item
}

// restart sends the enrollment back to step 0, relative to now
func (s *EnrollmentService) restart(ctx context.Context, campaign *models.Campaign, e *models.Enrollment) error {
	if !e.Status.CanTransitionTo(models.EnrollmentStatusActive) {
		return apperrors.NewValidation("cannot restart enrollment in status %s", e.Status)
	}
	now := s.now()
	patch := repository.EnrollmentPatch{
		Status:        statusPtr(models.EnrollmentStatusActive),
		CurrentStep:   intPtr(0),
		NextSendAt:    timePtr(now.Add(stepDelay(campaign, 0))),
		FailureCount:  intPtr(0),
		LastError:     strPtr(""),
		EnrolledAt:    timePtr(now),
		ClearTerminal: true,
	}
	return s.apply(ctx, e, patch, "re_enrolled", models.LogStatusSuccess, "Enrollment restarted from the first step")
}

// reactivate resumes a paused enrollment at its current step, relative to now
func (s *EnrollmentService) reactivate(ctx context.Context, campaign *models.Campaign, e *models.Enrollment, stage string) error {
	if e.Status != models.EnrollmentStatusPaused {
		return apperrors.NewValidation("only paused enrollments can be resumed, enrollment %s is %s", e.ID, e.Status)
	}
	now := s.now()
	patch := repository.EnrollmentPatch{
		Status:       statusPtr(models.EnrollmentStatusActive),
		NextSendAt:   timePtr(now.Add(stepDelay(campaign, e.CurrentStep))),
		FailureCount: intPtr(0),
		LastError:    strPtr(""),
	}
	return s.apply(ctx, e, patch, stage, models.LogStatusSuccess, "Enrollment resumed")
}

// apply writes patch guarded by the status and step e was read with, then mirrors it onto e
func (s *EnrollmentService) apply(ctx context.Context, e *models.Enrollment, patch repository.EnrollmentPatch, stage, logStatus, message string) error {
	if patch.Status != nil && !e.Status.CanTransitionTo(*patch.Status) {
		return apperrors.NewValidation("cannot move enrollment %s from %s to %s", e.ID, e.Status, *patch.Status)
	}
	cond := repository.EnrollmentCond{
		ID:          e.ID,
		Statuses:    []models.EnrollmentStatus{e.Status},
		CurrentStep: intPtr(e.CurrentStep),
	}
	applied, err := s.enrollments.UpdateIf(ctx, cond, patch)
	if err != nil {
		return fmt.Errorf("failed to update enrollment %s: %w", e.ID, err)
	}
	if !applied {
		return apperrors.NewConflict("enrollment %s changed concurrently", e.ID)
	}
	patch.Apply(e)
	s.log(ctx, e, stage, logStatus, message, nil)
	return nil
}

// Get returns one enrollment
func (s *EnrollmentService) Get(ctx context.Context, tenantID, id string) (*models.Enrollment, error) {
	return s.enrollments.GetByID(ctx, tenantID, id)
}

// ListByCampaign returns a page of a campaign's enrollments
func (s *EnrollmentService) ListByCampaign(ctx context.Context, tenantID, campaignID string, status models.EnrollmentStatus, offset, limit int) ([]models.Enrollment, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperrors.NewValidation("unknown enrollment status %q", status)
	}
	if _, err := s.campaigns.GetByTenantAndID(ctx, tenantID, campaignID); err != nil {
		return nil, 0, err
	}
	return s.enrollments.ListByCampaign(ctx, tenantID, campaignID, status, offset, limit)
}

// Pause stops an active enrollment from being swept
func (s *EnrollmentService) Pause(ctx context.Context, tenantID, id string) (*models.Enrollment, error) {
	e, err := s.enrollments.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	patch := repository.EnrollmentPatch{
		Status:    statusPtr(models.EnrollmentStatusPaused),
		ClearNext: true,
	}
	if err := s.apply(ctx, e, patch, "paused", models.LogStatusInfo, "Enrollment paused"); err != nil {
		return nil, err
	}
	return e, nil
}

// Resume reactivates a paused enrollment; the current step's delay restarts from now
func (s *EnrollmentService) Resume(ctx context.Context, tenantID, id string) (*models.Enrollment, error) {
	e, err := s.enrollments.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EnrollmentStatusPaused {
		return nil, apperrors.NewValidation("only paused enrollments can be resumed, enrollment %s is %s", id, e.Status)
	}
	campaign, err := s.campaigns.GetByID(ctx, e.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.reactivate(ctx, campaign, e, "resumed"); err != nil {
		return nil, err
	}
	return e, nil
}

// Cancel ends an active or paused enrollment
func (s *EnrollmentService) Cancel(ctx context.Context, tenantID, id string) (*models.Enrollment, error) {
	e, err := s.enrollments.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(ctx, e, "cancelled by operator"); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EnrollmentService) cancel(ctx context.Context, e *models.Enrollment, reason string) error {
	now := s.now()
	patch := repository.EnrollmentPatch{
		Status:      statusPtr(models.EnrollmentStatusCancelled),
		CancelledAt: timePtr(now),
		ClearNext:   true,
		LastError:   strPtr(reason),
	}
	return s.apply(ctx, e, patch, "cancelled", models.LogStatusWarning, "Enrollment cancelled: "+reason)
}

// CancelOpenForLead cancels every active or paused enrollment of a lead and returns how many
func (s *EnrollmentService) CancelOpenForLead(ctx context.Context, tenantID, leadID, reason string) (int, error) {
	open, err := s.enrollments.ListOpenByLead(ctx, tenantID, leadID)
	if err != nil {
		return 0, fmt.Errorf("failed to list enrollments of lead %s: %w", leadID, err)
	}
	cancelled := 0
	for i := range open {
		if err := s.cancel(ctx, &open[i], reason); err != nil {
			if apperrors.IsConflict(err) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// Advance records a successful send of the current step. With steps left the next one
// becomes current and is scheduled relative to sentAt; otherwise the enrollment completes.
// An enrollment paused or cancelled while the send was in flight keeps its status and
// only records the progress.
func (s *EnrollmentService) Advance(ctx context.Context, e *models.Enrollment, campaign *models.Campaign, sentAt time.Time) (models.EnrollmentStatus, error) {
	nextStep := e.CurrentStep + 1
	patch := repository.EnrollmentPatch{
		CurrentStep:  intPtr(nextStep),
		LastSentAt:   timePtr(sentAt),
		FailureCount: intPtr(0),
		LastError:    strPtr(""),
	}
	stage, message := "step_sent", fmt.Sprintf("Step %d sent", e.CurrentStep+1)
	if step, ok := campaign.StepAt(nextStep); ok {
		patch.NextSendAt = timePtr(sentAt.Add(step.Delay()))
		patch.Status = statusPtr(models.EnrollmentStatusActive)
	} else {
		patch.Status = statusPtr(models.EnrollmentStatusCompleted)
		patch.CompletedAt = timePtr(sentAt)
		patch.ClearNext = true
		stage, message = "completed", fmt.Sprintf("Step %d sent, campaign completed", e.CurrentStep+1)
	}

	err := s.apply(ctx, e, patch, stage, models.LogStatusSuccess, message)
	if err == nil {
		return e.Status, nil
	}
	if !apperrors.IsConflict(err) {
		return "", err
	}

	current, getErr := s.enrollments.GetByID(ctx, e.TenantID, e.ID)
	if getErr != nil {
		return "", getErr
	}
	if current.Status == models.EnrollmentStatusActive || current.CurrentStep != e.CurrentStep {
		return "", err
	}
	progress := repository.EnrollmentPatch{
		CurrentStep:  intPtr(nextStep),
		LastSentAt:   timePtr(sentAt),
		FailureCount: intPtr(0),
		LastError:    strPtr(""),
	}
	if err := s.apply(ctx, current, progress, "step_sent", models.LogStatusSuccess,
		fmt.Sprintf("Step %d sent while enrollment was %s", e.CurrentStep+1, current.Status)); err != nil {
		return "", err
	}
	*e = *current
	return e.Status, nil
}

// RecordFailure keeps the current step, pushes the next attempt to retryAt and pauses the
// enrollment once failures reach maxFailures. It reports whether the enrollment was paused.
func (s *EnrollmentService) RecordFailure(ctx context.Context, e *models.Enrollment, cause error, retryAt time.Time, maxFailures int) (bool, error) {
	failures := e.FailureCount + 1
	patch := repository.EnrollmentPatch{
		FailureCount: intPtr(failures),
		LastError:    strPtr(cause.Error()),
		NextSendAt:   timePtr(retryAt),
	}
	paused := failures >= maxFailures
	stage, status := "send_failed", models.LogStatusWarning
	message := fmt.Sprintf("Step %d failed (%d/%d): %v", e.CurrentStep+1, failures, maxFailures, cause)
	if paused {
		patch.Status = statusPtr(models.EnrollmentStatusPaused)
		patch.NextSendAt = nil
		patch.ClearNext = true
		stage, status = "paused", models.LogStatusError
		message = fmt.Sprintf("Enrollment paused after %d consecutive failures: %v", failures, cause)
	}
	if err := s.apply(ctx, e, patch, stage, status, message); err != nil {
		return false, err
	}
	return paused, nil
}

// Complete finishes an enrollment whose step pointer is past the last step
func (s *EnrollmentService) Complete(ctx context.Context, e *models.Enrollment) error {
	now := s.now()
	patch := repository.EnrollmentPatch{
		Status:      statusPtr(models.EnrollmentStatusCompleted),
		CompletedAt: timePtr(now),
		ClearNext:   true,
	}
	return s.apply(ctx, e, patch, "completed", models.LogStatusSuccess, "No steps remain, enrollment completed")
}
