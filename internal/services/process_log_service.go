package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// ProcessLogService persists the activity log of scheduled work and streams it over SSE
type ProcessLogService struct {
	logRepo         ProcessLogStore
	sseHub          *SSEHub
	cleanupStopChan chan struct{}
	cleanupStop     sync.Once
}

func NewProcessLogService(logRepo ProcessLogStore, sseHub *SSEHub) *ProcessLogService {
	return &ProcessLogService{
		logRepo:         logRepo,
		sseHub:          sseHub,
		cleanupStopChan: make(chan struct{}),
	}
}

// Log records an activity entry. Failures are logged and never returned to the caller.
func (s *ProcessLogService) Log(ctx context.Context, tenantID, entityType, entityID, stage, status, message string, metadata map[string]interface{}) {
	entry := &models.ProcessLog{
		EntityType: entityType,
		EntityID:   entityID,
		TenantID:   tenantID,
		Stage:      stage,
		Status:     status,
		Message:    message,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	if err := s.logRepo.Create(context.WithoutCancel(ctx), entry); err != nil {
		logrus.WithFields(logrus.Fields{
			"entity_type": entityType,
			"entity_id":   entityID,
			"stage":       stage,
		}).Errorf("Failed to save activity log: %v", err)
		return
	}

	if s.sseHub != nil {
		s.sseHub.BroadcastLog(entry)
	}
}

// List returns a page of a tenant's activity, optionally for one entity
func (s *ProcessLogService) List(ctx context.Context, tenantID, entityType, entityID string, offset, limit int) ([]models.ProcessLogResponse, int64, error) {
	logs, total, err := s.logRepo.List(ctx, tenantID, entityType, entityID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	out := make([]models.ProcessLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, models.ProcessLogResponse{
			ID:         l.ID,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			Stage:      l.Stage,
			Status:     l.Status,
			Message:    l.Message,
			Metadata:   l.Metadata,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}
	return out, total, nil
}

// StartLogCleanup starts a background goroutine to periodically clean up old entries
func (s *ProcessLogService) StartLogCleanup(interval time.Duration, retentionDays int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.cleanupOldLogs(retentionDays)

		for {
			select {
			case <-ticker.C:
				s.cleanupOldLogs(retentionDays)
			case <-s.cleanupStopChan:
				return
			}
		}
	}()
	logrus.Infof("Activity log cleanup started (interval: %v, retention: %d days)", interval, retentionDays)
}

// StopLogCleanup stops the cleanup goroutine
func (s *ProcessLogService) StopLogCleanup() {
	s.cleanupStop.Do(func() { close(s.cleanupStopChan) })
}

func (s *ProcessLogService) cleanupOldLogs(retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deletedCount, err := s.logRepo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		logrus.Errorf("Failed to cleanup old activity logs: %v", err)
		return
	}
	if deletedCount > 0 {
		logrus.Infof("Activity cleanup deleted %d entries older than %d day(s)", deletedCount, retentionDays)
	} else {
		logrus.Debugf("Activity cleanup found nothing older than %d day(s)", retentionDays)
	}
}
