package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

const (
	shortMessageChars = 140
	longMessageChars  = 280

	// balanceWriteAttempts bounds the optimistic retry loop when concurrent writers move the balance
	balanceWriteAttempts = 10
)

// AI action costs are flat regardless of prompt or output length
const (
	AIActionDraftMessage   = "draft_message"
	AIActionRewriteMessage = "rewrite_message"
)

var aiActionCosts = map[string]int64{
	AIActionDraftMessage:   2,
	AIActionRewriteMessage: 1,
}

// TextCost prices a message body by character count
func TextCost(body string) int64 {
	n := utf8.RuneCountInString(body)
	switch {
	case n <= shortMessageChars:
		return 1
	case n <= longMessageChars:
		return 2
	default:
		return 3
	}
}

// AIActionCost returns the flat cost of an AI-assisted action
func AIActionCost(action string) (int64, bool) {
	cost, ok := aiActionCosts[action]
	return cost, ok
}

// CreditService is the Credit Gate: every billable action authorizes through it
type CreditService struct {
	store          CreditStore
	activity       ActivityLogger
	mediaSurcharge int64
}

func NewCreditService(store CreditStore, activity ActivityLogger, mediaSurcharge int64) *CreditService {
	if mediaSurcharge < 0 {
		mediaSurcharge = 0
	}
	return &CreditService{
		store:          store,
		activity:       activity,
		mediaSurcharge: mediaSurcharge,
	}
}

// MessageCost prices one message to one recipient
func (s *CreditService) MessageCost(body string, mediaCount int) int64 {
	if mediaCount < 0 {
		mediaCount = 0
	}
	return TextCost(body) + int64(mediaCount)*s.mediaSurcharge
}

// Authorize charges amount to the tenant. It fails with an insufficient funds error,
// mutating nothing, when the balance does not cover the amount.
func (s *CreditService) Authorize(ctx context.Context, tenantID string, amount int64, reason, reference string) (*models.Charge, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidation("charge amount must be positive, got %d", amount)
	}

	for attempt := 0; attempt < balanceWriteAttempts; attempt++ {
		balance, err := s.store.GetBalance(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to read balance: %w", err)
		}
		if balance < amount {
			return nil, apperrors.NewInsufficientFunds(tenantID, amount, balance)
		}

		txn := &models.CreditTransaction{
			Amount:    -amount,
			Type:      models.TransactionSpend,
			Reason:    reason,
			Reference: reference,
		}
		applied, err := s.store.ApplyDelta(ctx, tenantID, balance, txn)
		if err != nil {
			return nil, fmt.Errorf("failed to record spend: %w", err)
		}
		if applied {
			return &models.Charge{
				TransactionID: txn.ID,
				TenantID:      tenantID,
				Amount:        amount,
				BalanceAfter:  txn.BalanceAfter,
			}, nil
		}
		logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "attempt": attempt + 1}).
			Debug("Balance changed during authorization, retrying")
	}
	return nil, apperrors.NewConflict("balance of tenant %s is changing too quickly, retry later", tenantID)
}

// Refund returns a charge as a new ledger entry; the charge itself is never edited
func (s *CreditService) Refund(ctx context.Context, charge *models.Charge, reason string) error {
	if charge == nil {
		return nil
	}
	refundOf := charge.TransactionID
	_, err := s.credit(ctx, charge.TenantID, charge.Amount, models.TransactionRefund, reason, charge.TransactionID, &refundOf)
	return err
}

// Grant tops up a tenant balance
func (s *CreditService) Grant(ctx context.Context, tenantID string, amount int64, reference string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidation("grant amount must be positive, got %d", amount)
	}
	if err := s.store.EnsureAccount(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to open credit account: %w", err)
	}
	txn, err := s.credit(ctx, tenantID, amount, models.TransactionGrant, models.ReasonTopUp, reference, nil)
	if err != nil {
		return nil, err
	}
	if s.activity != nil {
		s.activity.Log(ctx, tenantID, models.EntityCredit, txn.ID, "credits_granted", models.LogStatusSuccess,
			fmt.Sprintf("Granted %d credits", amount), map[string]interface{}{"balance_after": txn.BalanceAfter})
	}
	return txn, nil
}

func (s *CreditService) credit(ctx context.Context, tenantID string, amount int64, kind models.TransactionType, reason, reference string, refundOf *string) (*models.CreditTransaction, error) {
	for attempt := 0; attempt < balanceWriteAttempts; attempt++ {
		balance, err := s.store.GetBalance(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to read balance: %w", err)
		}
		txn := &models.CreditTransaction{
			Amount:    amount,
			Type:      kind,
			Reason:    reason,
			Reference: reference,
			RefundOf:  refundOf,
		}
		applied, err := s.store.ApplyDelta(ctx, tenantID, balance, txn)
		if err != nil {
			return nil, fmt.Errorf("failed to record %s: %w", kind, err)
		}
		if applied {
			return txn, nil
		}
	}
	return nil, apperrors.NewConflict("balance of tenant %s is changing too quickly, retry later", tenantID)
}

// Balance returns the tenant's spendable balance
func (s *CreditService) Balance(ctx context.Context, tenantID string) (int64, error) {
	return s.store.GetBalance(ctx, tenantID)
}

// Transactions returns a page of the tenant ledger
func (s *CreditService) Transactions(ctx context.Context, tenantID string, offset, limit int) ([]models.CreditTransaction, int64, error) {
	return s.store.ListTransactions(ctx, tenantID, offset, limit)
}

// Estimate prices a message for a number of recipients against the current balance
func (s *CreditService) Estimate(ctx context.Context, tenantID string, req *models.CostEstimateRequest) (*models.CostEstimateResponse, error) {
	recipients := req.Recipients
	if recipients <= 0 {
		recipients = 1
	}
	balance, err := s.store.GetBalance(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	unit := s.MessageCost(req.Body, req.MediaCount)
	total := unit * int64(recipients)
	return &models.CostEstimateResponse{
		Characters: utf8.RuneCountInString(req.Body),
		UnitCost:   unit,
		Recipients: recipients,
		TotalCost:  total,
		Balance:    balance,
		CanAfford:  balance >= total,
	}, nil
}
