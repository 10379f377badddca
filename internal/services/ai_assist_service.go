package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/ai"
	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// AIAssistService drafts and rewrites campaign messages. Each call is charged
// a flat cost up front and refunded when the completion fails.
type AIAssistService struct {
	completer ai.Completer
	credits   Spender
	timeout   time.Duration
}

func NewAIAssistService(completer ai.Completer, credits Spender, timeout time.Duration) *AIAssistService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AIAssistService{
		completer: completer,
		credits:   credits,
		timeout:   timeout,
	}
}

func buildPrompt(req *models.AIAssistRequest) (string, error) {
	var b strings.Builder
	switch req.Action {
	case AIActionDraftMessage:
		if strings.TrimSpace(req.Brief) == "" {
			return "", apperrors.NewValidation("brief is required to draft a message")
		}
		b.WriteString("Write a short SMS marketing message.\n")
		fmt.Fprintf(&b, "Brief: %s\n", strings.TrimSpace(req.Brief))
	case AIActionRewriteMessage:
		if strings.TrimSpace(req.Text) == "" {
			return "", apperrors.NewValidation("text is required to rewrite a message")
		}
		b.WriteString("Rewrite the following SMS message, keeping its meaning.\n")
		fmt.Fprintf(&b, "Message: %s\n", strings.TrimSpace(req.Text))
	default:
		return "", apperrors.NewValidation("unknown action %q", req.Action)
	}
	if req.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Tone)
	}
	if req.MaxChars > 0 {
		fmt.Fprintf(&b, "Stay under %d characters.\n", req.MaxChars)
	}
	b.WriteString("Reply with the message text only.")
	return b.String(), nil
}

// Assist runs one AI action for the tenant
func (s *AIAssistService) Assist(ctx context.Context, tenantID string, req *models.AIAssistRequest) (*models.AIAssistResponse, error) {
	cost, ok := AIActionCost(req.Action)
	if !ok {
		return nil, apperrors.NewValidation("unknown action %q", req.Action)
	}
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}
	if s.completer == nil {
		return nil, apperrors.NewProvider("ai", ai.ErrNotConfigured)
	}

	reason := models.ReasonAIDraft
	if req.Action == AIActionRewriteMessage {
		reason = models.ReasonAIRewrite
	}
	charge, err := s.credits.Authorize(ctx, tenantID, cost, reason, req.Action)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.completer.Complete(callCtx, prompt)
	if err != nil {
		if refundErr := s.credits.Refund(ctx, charge, reason); refundErr != nil {
			logrus.WithField("tenant_id", tenantID).Errorf("Failed to refund AI charge %s: %v", charge.TransactionID, refundErr)
		}
		if errors.Is(err, ai.ErrNotConfigured) {
			return nil, apperrors.NewProvider("ai", err)
		}
		return nil, apperrors.NewProvider("ai", fmt.Errorf("completion failed: %w", err))
	}

	text = strings.TrimSpace(text)
	if req.MaxChars > 0 && utf8.RuneCountInString(text) > req.MaxChars {
		text = string([]rune(text)[:req.MaxChars])
	}
	return &models.AIAssistResponse{
		Action:      req.Action,
		Text:        text,
		Characters:  utf8.RuneCountInString(text),
		CreditsUsed: cost,
		MessageCost: s.credits.MessageCost(text, 0),
	}, nil
}
