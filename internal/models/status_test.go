package models

import (
	"testing"
	"time"
)

func TestEnrollmentTransitions(t *testing.T) {
	tests := []struct {
		from, to EnrollmentStatus
		want     bool
	}{
		{EnrollmentStatusActive, EnrollmentStatusPaused, true},
		{EnrollmentStatusActive, EnrollmentStatusCompleted, true},
		{EnrollmentStatusPaused, EnrollmentStatusActive, true},
		{EnrollmentStatusPaused, EnrollmentStatusCompleted, false},
		{EnrollmentStatusCompleted, EnrollmentStatusActive, true},
		{EnrollmentStatusCompleted, EnrollmentStatusPaused, false},
		{EnrollmentStatusCancelled, EnrollmentStatusActive, true},
		{EnrollmentStatusCancelled, EnrollmentStatusCompleted, false},
		{"unknown", EnrollmentStatusActive, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEnrollmentSourcesInto(t *testing.T) {
	got := EnrollmentSourcesInto(EnrollmentStatusActive)
	want := []EnrollmentStatus{EnrollmentStatusPaused, EnrollmentStatusCompleted, EnrollmentStatusCancelled}
	if len(got) != len(want) {
		t.Fatalf("sources = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sources[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if !EnrollmentStatusPaused.IsOpen() || EnrollmentStatusCompleted.IsOpen() {
		t.Error("IsOpen mismatch")
	}
}

func TestBatchTransitions(t *testing.T) {
	if !BatchStatusPaused.CanTransitionTo(BatchStatusScheduled) {
		t.Error("paused batch should resume to scheduled")
	}
	if BatchStatusCompleted.CanTransitionTo(BatchStatusRunning) || BatchStatusCancelled.CanTransitionTo(BatchStatusPaused) {
		t.Error("terminal batch statuses must not transition")
	}
	if !BatchStatusCancelled.IsTerminal() || BatchStatusPaused.IsTerminal() {
		t.Error("IsTerminal mismatch")
	}
}

func TestStepDelay(t *testing.T) {
	step := CampaignStep{DelayDays: 1, DelayHours: 6}
	if got := step.Delay(); got != 30*time.Hour {
		t.Errorf("Delay() = %v, want 30h", got)
	}
	if got := (CampaignStep{}).Delay(); got != 0 {
		t.Errorf("zero Delay() = %v", got)
	}
}

func TestCampaignStepAt(t *testing.T) {
	c := Campaign{Steps: []CampaignStep{{StepNumber: 2}, {StepNumber: 1}}}
	c.SortSteps()
	if s, ok := c.StepAt(0); !ok || s.StepNumber != 1 {
		t.Errorf("StepAt(0) = %+v, %v", s, ok)
	}
	if _, ok := c.StepAt(2); ok {
		t.Error("StepAt past the end should be false")
	}
}

func TestTriggerRoundTrip(t *testing.T) {
	req := TriggerRequest{Type: TriggerTagAdded, Tag: " vip "}
	trigger, err := req.ToTrigger()
	if err != nil {
		t.Fatalf("ToTrigger: %v", err)
	}
	raw, err := EncodeTrigger(trigger)
	if err != nil {
		t.Fatalf("EncodeTrigger: %v", err)
	}
	decoded, err := ParseTrigger(TriggerTagAdded, raw)
	if err != nil {
		t.Fatalf("ParseTrigger: %v", err)
	}
	if decoded.Filter() != "vip" {
		t.Errorf("Filter() = %q", decoded.Filter())
	}

	if _, err := ParseTrigger("note_added", raw); err == nil {
		t.Error("unknown trigger type should fail")
	}
	if empty, err := ParseTrigger(TriggerLeadCreated, nil); err != nil || empty.Filter() != "" {
		t.Errorf("empty config = %v, %v", empty, err)
	}
}

func TestLeadContactable(t *testing.T) {
	disqualifying := []string{"do_not_contact", "unsubscribed"}
	tests := []struct {
		name string
		lead Lead
		want bool
	}{
		{"ok", Lead{Phone: "+84900000001", Status: "new"}, true},
		{"no phone", Lead{Status: "new"}, false},
		{"flagged", Lead{Phone: "+84900000001", DoNotContact: true}, false},
		{"disqualified status", Lead{Phone: "+84900000001", Status: " Unsubscribed"}, false},
	}
	for _, tt := range tests {
		if got := tt.lead.Contactable(disqualifying); got != tt.want {
			t.Errorf("%s: Contactable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReEnrollResultAdd(t *testing.T) {
	var r ReEnrollResult
	for _, o := range []ReEnrollOutcome{ReEnrollCreated, ReEnrollReset, ReEnrollReactivated, ReEnrollSkipped, ReEnrollFailed} {
		r.Add(ReEnrollItem{Outcome: o})
	}
	if r.ReEnrolledCount != 3 || r.ResetCount != 1 || r.ReactivatedCount != 1 || r.SkippedCount != 1 || r.FailedCount != 1 || r.TotalProcessed != 5 {
		t.Errorf("result = %+v", r)
	}
}
