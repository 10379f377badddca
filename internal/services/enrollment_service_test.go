package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

const (
	campaignA = "aaaaaaaa-0000-0000-0000-000000000001"
	leadA     = "bbbbbbbb-0000-0000-0000-000000000001"
	leadB     = "bbbbbbbb-0000-0000-0000-000000000002"
	leadC     = "bbbbbbbb-0000-0000-0000-000000000003"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type enrollmentFixture struct {
	campaigns   *memCampaignStore
	leads       *memLeadStore
	enrollments *memEnrollmentStore
	activity    *recordingActivity
	clock       *fixedClock
	svc         *EnrollmentService
}

func newEnrollmentFixture(campaign models.Campaign, leads ...models.Lead) *enrollmentFixture {
	f := &enrollmentFixture{
		campaigns:   newMemCampaignStore(campaign),
		leads:       newMemLeadStore(leads...),
		enrollments: newMemEnrollmentStore(),
		activity:    &recordingActivity{},
		clock:       newFixedClock(t0),
	}
	f.svc = NewEnrollmentService(f.campaigns, f.leads, f.enrollments, f.activity, testConfig().DisqualifyingStatuses)
	f.svc.now = f.clock.Now
	return f
}

func TestEnrollSchedulesFirstStep(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.TagAddedTrigger{Tag: "vip"}, 2, 24), testLead(leadA))

	res, err := f.svc.Enroll(context.Background(), testTenant, campaignA, leadA, models.TriggerContext{Type: "manual"})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if res.Skipped || res.EnrollmentID == "" {
		t.Fatalf("Enroll result = %+v", res)
	}
	e := f.enrollments.get(res.EnrollmentID)
	if e.Status != models.EnrollmentStatusActive || e.CurrentStep != 0 {
		t.Errorf("enrollment = %+v", e)
	}
	if want := t0.Add(2 * time.Hour); !e.NextSendAt.Equal(want) {
		t.Errorf("NextSendAt = %v, want %v", e.NextSendAt, want)
	}
}

func TestEnrollTwiceIsSkipped(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0), testLead(leadA))
	ctx := context.Background()

	first, err := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{})
	if err != nil {
		t.Fatalf("first Enroll: %v", err)
	}
	second, err := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{})
	if err != nil {
		t.Fatalf("second Enroll: %v", err)
	}
	if !second.Skipped || second.EnrollmentID != first.EnrollmentID {
		t.Errorf("second Enroll = %+v, want skipped pointing at %s", second, first.EnrollmentID)
	}
}

func TestEnrollConcurrentCreatesOneRow(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0), testLead(leadA))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Enroll(context.Background(), testTenant, campaignA, leadA, models.TriggerContext{}); err != nil {
				t.Errorf("Enroll: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(f.enrollments.all()); n != 1 {
		t.Errorf("enrollment rows = %d, want 1", n)
	}
}

func TestEnrollRejections(t *testing.T) {
	dnc := testLead(leadB)
	dnc.DoNotContact = true
	unsubscribed := testLead(leadC)
	unsubscribed.Status = "Unsubscribed"

	inactive := dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0)
	f := newEnrollmentFixture(inactive, testLead(leadA), dnc, unsubscribed)
	ctx := context.Background()

	if _, err := f.svc.Enroll(ctx, testTenant, campaignA, leadB, models.TriggerContext{}); !apperrors.IsValidation(err) {
		t.Errorf("do-not-contact lead: expected validation error, got %v", err)
	}
	if _, err := f.svc.Enroll(ctx, testTenant, campaignA, leadC, models.TriggerContext{}); !apperrors.IsValidation(err) {
		t.Errorf("unsubscribed lead: expected validation error, got %v", err)
	}
	if _, err := f.svc.Enroll(ctx, otherTenant, campaignA, leadA, models.TriggerContext{}); !apperrors.IsNotFound(err) {
		t.Errorf("other tenant: expected not found, got %v", err)
	}

	_ = f.campaigns.SetActive(ctx, testTenant, campaignA, false)
	if _, err := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{}); !apperrors.IsValidation(err) {
		t.Errorf("inactive campaign: expected validation error, got %v", err)
	}
}

func TestPauseResumeCancel(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 5, 24), testLead(leadA))
	ctx := context.Background()

	res, err := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	paused, err := f.svc.Pause(ctx, testTenant, res.EnrollmentID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != models.EnrollmentStatusPaused || paused.NextSendAt != nil {
		t.Errorf("paused = %+v", paused)
	}
	if _, err := f.svc.Pause(ctx, testTenant, res.EnrollmentID); !apperrors.IsValidation(err) {
		t.Errorf("pausing twice: expected validation error, got %v", err)
	}

	f.clock.Advance(48 * time.Hour)
	resumed, err := f.svc.Resume(ctx, testTenant, res.EnrollmentID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if want := f.clock.Now().Add(5 * time.Hour); !resumed.NextSendAt.Equal(want) {
		t.Errorf("resumed NextSendAt = %v, want %v", resumed.NextSendAt, want)
	}

	cancelled, err := f.svc.Cancel(ctx, testTenant, res.EnrollmentID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.EnrollmentStatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("cancelled = %+v", cancelled)
	}
	if _, err := f.svc.Resume(ctx, testTenant, res.EnrollmentID); !apperrors.IsValidation(err) {
		t.Errorf("resume cancelled: expected validation error, got %v", err)
	}

	want := []string{"enrolled", "paused", "resumed", "cancelled"}
	got := f.activity.stages(res.EnrollmentID)
	if len(got) != len(want) {
		t.Fatalf("activity stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReEnrollMixedOutcomes(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0, 24), testLead(leadA), testLead(leadB), testLead(leadC))
	ctx := context.Background()

	// leadB finished the campaign, leadC is still running it
	for _, id := range []string{leadB, leadC} {
		if _, err := f.svc.Enroll(ctx, testTenant, campaignA, id, models.TriggerContext{}); err != nil {
			t.Fatalf("Enroll %s: %v", id, err)
		}
	}
	done, _ := f.enrollments.GetByCampaignAndLead(ctx, campaignA, leadB)
	if err := f.svc.Complete(ctx, done); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	f.clock.Advance(time.Hour)
	res, err := f.svc.ReEnroll(ctx, testTenant, campaignA, []string{leadA, leadB, leadC, leadA}, false)
	if err != nil {
		t.Fatalf("ReEnroll: %v", err)
	}
	if res.ReEnrolledCount != 2 || res.ResetCount != 1 || res.SkippedCount != 1 || res.FailedCount != 0 {
		t.Errorf("ReEnroll = %+v", res)
	}
	if res.TotalProcessed != 3 {
		t.Errorf("TotalProcessed = %d, want 3 after dedupe", res.TotalProcessed)
	}

	restarted, _ := f.enrollments.GetByCampaignAndLead(ctx, campaignA, leadB)
	if restarted.Status != models.EnrollmentStatusActive || restarted.CurrentStep != 0 || restarted.CompletedAt != nil {
		t.Errorf("restarted = %+v", restarted)
	}
	if !restarted.NextSendAt.Equal(f.clock.Now()) {
		t.Errorf("restarted NextSendAt = %v, want %v", restarted.NextSendAt, f.clock.Now())
	}
	if n := len(f.enrollments.all()); n != 3 {
		t.Errorf("enrollment rows = %d, want 3", n)
	}
}

func TestReEnrollPaused(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0, 24), testLead(leadA), testLead(leadB))
	ctx := context.Background()

	ids := map[string]string{}
	for _, lead := range []string{leadA, leadB} {
		res, err := f.svc.Enroll(ctx, testTenant, campaignA, lead, models.TriggerContext{})
		if err != nil {
			t.Fatalf("Enroll: %v", err)
		}
		e := f.enrollments.get(res.EnrollmentID)
		if _, err := f.svc.Advance(ctx, e, mustCampaign(t, f, campaignA), t0); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if _, err := f.svc.Pause(ctx, testTenant, res.EnrollmentID); err != nil {
			t.Fatalf("Pause: %v", err)
		}
		ids[lead] = res.EnrollmentID
	}

	if _, err := f.svc.ReEnroll(ctx, testTenant, campaignA, []string{leadA}, false); err != nil {
		t.Fatalf("ReEnroll keep progress: %v", err)
	}
	if e := f.enrollments.get(ids[leadA]); e.Status != models.EnrollmentStatusActive || e.CurrentStep != 1 {
		t.Errorf("reactivated = %+v, want active at step 1", e)
	}

	res, err := f.svc.ReEnroll(ctx, testTenant, campaignA, []string{leadB}, true)
	if err != nil {
		t.Fatalf("ReEnroll reset: %v", err)
	}
	if res.ResetCount != 1 {
		t.Errorf("ReEnroll reset = %+v", res)
	}
	if e := f.enrollments.get(ids[leadB]); e.Status != models.EnrollmentStatusActive || e.CurrentStep != 0 {
		t.Errorf("reset = %+v, want active at step 0", e)
	}
}

func TestReEnrollInactiveCampaign(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0), testLead(leadA), testLead(leadB))
	ctx := context.Background()

	res, err := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := f.svc.Complete(ctx, f.enrollments.get(res.EnrollmentID)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_ = f.campaigns.SetActive(ctx, testTenant, campaignA, false)

	if _, err := f.svc.ReEnroll(ctx, testTenant, campaignA, []string{leadA, leadB}, true); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := len(f.enrollments.all()); n != 1 {
		t.Errorf("enrollment rows = %d, want 1", n)
	}
	if e := f.enrollments.get(res.EnrollmentID); e.Status != models.EnrollmentStatusCompleted {
		t.Errorf("status = %s, want completed", e.Status)
	}
}

func TestAdvanceThroughAllSteps(t *testing.T) {
	campaign := dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0, 24, 6)
	f := newEnrollmentFixture(campaign, testLead(leadA))
	ctx := context.Background()

	res, err := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	c := mustCampaign(t, f, campaignA)
	sentAt := t0
	for step := 0; step < 3; step++ {
		e := f.enrollments.get(res.EnrollmentID)
		status, err := f.svc.Advance(ctx, e, c, sentAt)
		if err != nil {
			t.Fatalf("Advance step %d: %v", step, err)
		}
		if step < 2 {
			if status != models.EnrollmentStatusActive {
				t.Fatalf("status after step %d = %s", step, status)
			}
			want := sentAt.Add(c.Steps[step+1].Delay())
			if !e.NextSendAt.Equal(want) {
				t.Errorf("NextSendAt after step %d = %v, want %v", step, e.NextSendAt, want)
			}
		} else if status != models.EnrollmentStatusCompleted {
			t.Fatalf("final status = %s, want completed", status)
		}
		sentAt = sentAt.Add(24 * time.Hour)
	}

	e := f.enrollments.get(res.EnrollmentID)
	if e.CurrentStep != 3 || e.NextSendAt != nil || e.CompletedAt == nil {
		t.Errorf("completed enrollment = %+v", e)
	}
}

func TestAdvanceWhilePausedKeepsStatus(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0, 24), testLead(leadA))
	ctx := context.Background()

	res, _ := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{})
	inFlight := f.enrollments.get(res.EnrollmentID)
	if _, err := f.svc.Pause(ctx, testTenant, res.EnrollmentID); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	status, err := f.svc.Advance(ctx, inFlight, mustCampaign(t, f, campaignA), t0)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if status != models.EnrollmentStatusPaused {
		t.Errorf("status = %s, want paused", status)
	}
	if e := f.enrollments.get(res.EnrollmentID); e.CurrentStep != 1 || e.Status != models.EnrollmentStatusPaused {
		t.Errorf("enrollment = %+v, want paused at step 1", e)
	}
}

func TestRecordFailurePausesAtThreshold(t *testing.T) {
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0), testLead(leadA))
	ctx := context.Background()
	res, _ := f.svc.Enroll(ctx, testTenant, campaignA, leadA, models.TriggerContext{})

	cause := apperrors.NewProvider("messaging", context.DeadlineExceeded)
	for i := 1; i <= 3; i++ {
		e := f.enrollments.get(res.EnrollmentID)
		paused, err := f.svc.RecordFailure(ctx, e, cause, t0.Add(30*time.Minute), 3)
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
		if paused != (i == 3) {
			t.Errorf("failure %d paused = %v", i, paused)
		}
	}
	e := f.enrollments.get(res.EnrollmentID)
	if e.Status != models.EnrollmentStatusPaused || e.FailureCount != 3 || e.LastError == "" || e.NextSendAt != nil {
		t.Errorf("enrollment = %+v", e)
	}
}

func TestCancelOpenForLead(t *testing.T) {
	second := dripCampaign("aaaaaaaa-0000-0000-0000-000000000002", models.LeadCreatedTrigger{}, 0)
	f := newEnrollmentFixture(dripCampaign(campaignA, models.LeadCreatedTrigger{}, 0), testLead(leadA))
	_ = f.campaigns.Create(context.Background(), &second)
	ctx := context.Background()

	for _, id := range []string{campaignA, second.ID} {
		if _, err := f.svc.Enroll(ctx, testTenant, id, leadA, models.TriggerContext{}); err != nil {
			t.Fatalf("Enroll: %v", err)
		}
	}
	n, err := f.svc.CancelOpenForLead(ctx, testTenant, leadA, "lead status changed to unsubscribed")
	if err != nil {
		t.Fatalf("CancelOpenForLead: %v", err)
	}
	if n != 2 {
		t.Errorf("cancelled = %d, want 2", n)
	}
	for _, e := range f.enrollments.all() {
		if e.Status != models.EnrollmentStatusCancelled {
			t.Errorf("enrollment %s is %s", e.ID, e.Status)
		}
	}
}

func mustCampaign(t *testing.T, f *enrollmentFixture, id string) *models.Campaign {
	t.Helper()
	c, err := f.campaigns.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("campaign %s: %v", id, err)
	}
	return c
}
