package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
	"github.com/onegreenvn/green-outreach-services-backend/internal/utils"
)

// TriggerService matches lead events against campaign triggers and enrolls the lead.
// Enrollment failures are logged and counted, never returned, so the action that
// produced the event is never blocked by them.
type TriggerService struct {
	campaigns     CampaignStore
	enrollment    *EnrollmentService
	disqualifying []string
	stopChan      chan struct{}
	stopOnce      sync.Once
}

func NewTriggerService(campaigns CampaignStore, enrollment *EnrollmentService, disqualifying []string) *TriggerService {
	return &TriggerService{
		campaigns:     campaigns,
		enrollment:    enrollment,
		disqualifying: disqualifying,
		stopChan:      make(chan struct{}),
	}
}

// HandleEvent evaluates one lead event and returns what happened
func (s *TriggerService) HandleEvent(ctx context.Context, event models.LeadEvent) models.TriggerSummary {
	summary := models.TriggerSummary{}
	entry := logrus.WithFields(logrus.Fields{
		"tenant_id":  event.TenantID,
		"lead_id":    event.LeadID,
		"event_type": event.Type,
		"value":      event.Value,
	})

	if !event.Type.Valid() {
		entry.Warn("Ignoring lead event with unknown type")
		return summary
	}

	if event.Type == models.TriggerStatusChange && models.IsDisqualifyingStatus(event.Value, s.disqualifying) {
		cancelled, err := s.enrollment.CancelOpenForLead(ctx, event.TenantID, event.LeadID, fmt.Sprintf("lead status changed to %s", strings.TrimSpace(event.Value)))
		if err != nil {
			entry.Errorf("Failed to cancel enrollments of disqualified lead: %v", err)
		}
		summary.Cancelled = cancelled
		return summary
	}

	campaigns, err := s.campaigns.ListActiveByTrigger(ctx, event.TenantID, event.Type)
	if err != nil {
		entry.Errorf("Failed to load campaigns for trigger: %v", err)
		return summary
	}

	for i := range campaigns {
		campaign := &campaigns[i]
		trigger, err := campaign.Trigger()
		if err != nil {
			entry.WithField("campaign_id", campaign.ID).Errorf("Campaign has an unreadable trigger config: %v", err)
			continue
		}
		if !models.MatchTrigger(trigger, event.Type, event.Value) {
			continue
		}
		if len(campaign.Steps) == 0 {
			entry.WithField("campaign_id", campaign.ID).Warn("Campaign matches trigger but has no steps, skipping")
			continue
		}

		summary.Matched++
		result, err := s.enrollment.enrollInCampaign(ctx, campaign, event.LeadID, models.TriggerContext{
			Type:  string(event.Type),
			Value: event.Value,
		})
		switch {
		case err != nil:
			summary.Failed++
			entry.WithField("campaign_id", campaign.ID).Warnf("Trigger enrollment failed: %v", err)
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Enrolled++
		}
	}

	entry.WithFields(logrus.Fields{
		"matched":  summary.Matched,
		"enrolled": summary.Enrolled,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}).Debug("Lead event evaluated")
	return summary
}

// StartRabbitMQConsumer consumes lead events from a queue and evaluates them
func (s *TriggerService) StartRabbitMQConsumer(channel *amqp.Channel, queueName string) error {
	_, err := channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := channel.Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logrus.Infof("RabbitMQ consumer started for %s queue", queueName)

	go s.consume(msgs)

	return nil
}

func (s *TriggerService) consume(msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-s.stopChan:
			logrus.Info("Lead event consumer stopped")
			return
		case msg, ok := <-msgs:
			if !ok {
				logrus.Warn("Lead event channel closed")
				return
			}
			s.handleDelivery(msg)
		}
	}
}

// StopRabbitMQConsumer stops the consumer goroutine. Safe to call more than once.
func (s *TriggerService) StopRabbitMQConsumer() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *TriggerService) handleDelivery(msg amqp.Delivery) {
	event, err := decodeLeadEvent(msg.Body)
	if err != nil {
		logrus.Errorf("Dropping malformed lead event: %v", err)
		utils.CaptureError(err, map[string]string{"component": "lead_event_consumer"})
		_ = msg.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.HandleEvent(ctx, event)

	if err := msg.Ack(false); err != nil {
		logrus.Errorf("Failed to ack lead event: %v", err)
	}
}

func decodeLeadEvent(body []byte) (models.LeadEvent, error) {
	var event models.LeadEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal lead event: %w", err)
	}
	if event.TenantID == "" || event.LeadID == "" {
		return event, apperrors.NewValidation("lead event requires tenant_id and lead_id")
	}
	if !event.Type.Valid() {
		return event, apperrors.NewValidation("unknown lead event type %q", event.Type)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event, nil
}
