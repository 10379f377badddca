package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

// Sweeper is one kind of due work
type Sweeper interface {
	Sweep(ctx context.Context) (models.SweepResult, error)
}

// SchedulerRunner runs the drip, batch and scheduled message sweeps, either on
// its own ticker or when POST /internal/sweep is called
type SchedulerRunner struct {
	drip      Sweeper
	batch     Sweeper
	scheduled Sweeper
	interval  time.Duration
	stopChan  chan bool
}

func NewSchedulerRunner(drip, batch, scheduled Sweeper, interval time.Duration) *SchedulerRunner {
	return &SchedulerRunner{
		drip:      drip,
		batch:     batch,
		scheduled: scheduled,
		interval:  interval,
		stopChan:  make(chan bool),
	}
}

// SweepDueWork runs every sweep once. A failing sweep does not stop the others.
func (s *SchedulerRunner) SweepDueWork(ctx context.Context) models.SweepDueWorkResult {
	var result models.SweepDueWorkResult
	run := func(name string, sw Sweeper, into *models.SweepResult) {
		if sw == nil {
			return
		}
		res, err := sw.Sweep(ctx)
		*into = res
		result.Total.Merge(res)
		if err != nil {
			logrus.Errorf("%s sweep failed: %v", name, err)
			utils.CaptureError(err, map[string]string{"component": name + "_sweep"})
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
		}
	}
	run("drip", s.drip, &result.Drip)
	run("batch", s.batch, &result.Batch)
	run("scheduled", s.scheduled, &result.Scheduled)

	if result.Total.Due > 0 {
		logrus.WithFields(logrus.Fields{
			"due":       result.Total.Due,
			"sent":      result.Total.Sent,
			"failed":    result.Total.Failed,
			"paused":    result.Total.Paused,
			"completed": result.Total.Completed,
		}).Info("Due work sweep finished")
	}
	return result
}

// Start starts the ticker; a zero interval leaves sweeping to the external trigger
func (s *SchedulerRunner) Start() {
	if s.interval <= 0 {
		logrus.Info("Scheduler ticker disabled, waiting for external sweep triggers")
		return
	}
	go s.run()
	logrus.Infof("Scheduler started (interval %s)", s.interval)
}

// Stop stops the ticker
func (s *SchedulerRunner) Stop() {
	if s.interval <= 0 {
		return
	}
	s.stopChan <- true
	logrus.Info("Scheduler stopped")
}

func (s *SchedulerRunner) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			return
		}
	}
}

func (s *SchedulerRunner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	s.SweepDueWork(ctx)
}
