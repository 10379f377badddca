package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

func TestMessageCost(t *testing.T) {
	svc := NewCreditService(newMemCreditStore(nil), nil, 2)

	tests := []struct {
		name  string
		body  string
		media int
		want  int64
	}{
		{"empty", "", 0, 1},
		{"140 chars", strings.Repeat("a", 140), 0, 1},
		{"141 chars", strings.Repeat("a", 141), 0, 2},
		{"280 chars", strings.Repeat("a", 280), 0, 2},
		{"281 chars", strings.Repeat("a", 281), 0, 3},
		{"multibyte counts runes", strings.Repeat("ố", 140), 0, 1},
		{"one attachment", "hello", 1, 3},
		{"two attachments long text", strings.Repeat("a", 281), 2, 7},
		{"negative media ignored", "hello", -1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.MessageCost(tt.body, tt.media); got != tt.want {
				t.Errorf("MessageCost() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAIActionCost(t *testing.T) {
	if cost, ok := AIActionCost(AIActionDraftMessage); !ok || cost != 2 {
		t.Errorf("draft cost = %d, %v", cost, ok)
	}
	if cost, ok := AIActionCost(AIActionRewriteMessage); !ok || cost != 1 {
		t.Errorf("rewrite cost = %d, %v", cost, ok)
	}
	if _, ok := AIActionCost("summarize"); ok {
		t.Error("unknown action should not be priced")
	}
}

func TestAuthorizeInsufficientFunds(t *testing.T) {
	store := newMemCreditStore(map[string]int64{testTenant: 2})
	svc := NewCreditService(store, nil, 2)

	_, err := svc.Authorize(context.Background(), testTenant, 3, models.ReasonMessageSend, "ref")
	if !apperrors.IsInsufficientFunds(err) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if balance, _ := store.GetBalance(context.Background(), testTenant); balance != 2 {
		t.Errorf("balance changed to %d after a denied charge", balance)
	}
	if len(store.txns) != 0 {
		t.Errorf("denied charge wrote %d ledger entries", len(store.txns))
	}
}

func TestAuthorizeRejectsNonPositive(t *testing.T) {
	svc := NewCreditService(newMemCreditStore(map[string]int64{testTenant: 5}), nil, 2)
	if _, err := svc.Authorize(context.Background(), testTenant, 0, models.ReasonMessageSend, ""); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestAuthorizeConcurrentSingleCredit(t *testing.T) {
	store := newMemCreditStore(map[string]int64{testTenant: 1})
	svc := NewCreditService(store, nil, 2)

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		denied    int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Authorize(context.Background(), testTenant, 1, models.ReasonMessageSend, "ref")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.IsInsufficientFunds(err):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
	if denied != callers-1 {
		t.Errorf("denied = %d, want %d", denied, callers-1)
	}
	if balance, _ := store.GetBalance(context.Background(), testTenant); balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestRefundIsSeparateEntry(t *testing.T) {
	store := newMemCreditStore(map[string]int64{testTenant: 5})
	svc := NewCreditService(store, nil, 2)
	ctx := context.Background()

	charge, err := svc.Authorize(ctx, testTenant, 2, models.ReasonMessageSend, "ref")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if charge.BalanceAfter != 3 {
		t.Errorf("BalanceAfter = %d, want 3", charge.BalanceAfter)
	}
	if err := svc.Refund(ctx, charge, models.ReasonMessageSend); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if balance, _ := svc.Balance(ctx, testTenant); balance != 5 {
		t.Errorf("balance after refund = %d, want 5", balance)
	}
	if store.countType(models.TransactionSpend) != 1 || store.countType(models.TransactionRefund) != 1 {
		t.Errorf("ledger = %+v, want one spend and one refund", store.txns)
	}

	if err := svc.Refund(ctx, charge, models.ReasonMessageSend); !apperrors.IsConflict(err) {
		t.Errorf("second refund: expected conflict, got %v", err)
	}
	if balance, _ := svc.Balance(ctx, testTenant); balance != 5 {
		t.Errorf("balance after double refund = %d, want 5", balance)
	}
}

func TestGrantOpensAccount(t *testing.T) {
	store := newMemCreditStore(nil)
	activity := &recordingActivity{}
	svc := NewCreditService(store, activity, 2)

	txn, err := svc.Grant(context.Background(), testTenant, 50, "invoice-1")
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if txn.BalanceAfter != 50 || txn.Type != models.TransactionGrant {
		t.Errorf("grant txn = %+v", txn)
	}
	if len(activity.stages(txn.ID)) != 1 {
		t.Errorf("grant was not logged")
	}
	if _, err := svc.Grant(context.Background(), testTenant, -1, ""); !apperrors.IsValidation(err) {
		t.Errorf("negative grant: expected validation error, got %v", err)
	}
}

func TestEstimate(t *testing.T) {
	svc := NewCreditService(newMemCreditStore(map[string]int64{testTenant: 10}), nil, 2)
	res, err := svc.Estimate(context.Background(), testTenant, &models.CostEstimateRequest{
		Body:       strings.Repeat("a", 150),
		MediaCount: 1,
		Recipients: 3,
	})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if res.UnitCost != 4 || res.TotalCost != 12 || res.CanAfford {
		t.Errorf("estimate = %+v", res)
	}
}
