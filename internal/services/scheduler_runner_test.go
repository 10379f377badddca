package services

import (
	"context"
	"errors"
	"testing"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

type stubSweeper struct {
	res   models.SweepResult
	err   error
	calls int
}

func (s *stubSweeper) Sweep(ctx context.Context) (models.SweepResult, error) {
	s.calls++
	return s.res, s.err
}

func TestSweepDueWorkRunsEverySweep(t *testing.T) {
	drip := &stubSweeper{res: models.SweepResult{Due: 2, Sent: 2}}
	batch := &stubSweeper{err: errors.New("db down")}
	scheduled := &stubSweeper{res: models.SweepResult{Due: 1, Failed: 1}}
	runner := NewSchedulerRunner(drip, batch, scheduled, 0)

	res := runner.SweepDueWork(context.Background())
	if drip.calls != 1 || batch.calls != 1 || scheduled.calls != 1 {
		t.Errorf("calls = %d/%d/%d", drip.calls, batch.calls, scheduled.calls)
	}
	if res.Total.Due != 3 || res.Total.Sent != 2 || res.Total.Failed != 1 {
		t.Errorf("total = %+v", res.Total)
	}
	if len(res.Errors) != 1 {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestSchedulerRunnerDisabledTicker(t *testing.T) {
	runner := NewSchedulerRunner(&stubSweeper{}, &stubSweeper{}, &stubSweeper{}, 0)
	runner.Start()
	runner.Stop()
}
