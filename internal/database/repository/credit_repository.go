package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// EnsureAccount creates a zero balance row for the tenant if none exists
func (r *CreditRepository) EnsureAccount(ctx context.Context, tenantID string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoNothing: true,
	}).Create(&models.CreditBalance{TenantID: tenantID, Balance: 0, UpdatedAt: time.Now()}).Error
}

// GetBalance returns the tenant balance; a tenant without an account has 0
func (r *CreditRepository) GetBalance(ctx context.Context, tenantID string) (int64, error) {
	var balances []models.CreditBalance
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Limit(1).
		Find(&balances).Error
	if err != nil {
		return 0, err
	}
	if len(balances) == 0 {
		return 0, nil
	}
	return balances[0].Balance, nil
}

// ApplyDelta moves the balance from expected to expected+txn.Amount and appends txn in one
// transaction. It reports false, writing nothing, when the stored balance is no longer expected.
func (r *CreditRepository) ApplyDelta(ctx context.Context, tenantID string, expected int64, txn *models.CreditTransaction) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next := expected + txn.Amount
		result := tx.Model(&models.CreditBalance{}).
			Where("tenant_id = ? AND balance = ?", tenantID, expected).
			Updates(map[string]interface{}{"balance": next, "updated_at": time.Now()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		txn.TenantID = tenantID
		txn.BalanceAfter = next
		if err := tx.Create(txn).Error; err != nil {
			if isUniqueViolation(err) && txn.RefundOf != nil {
				return apperrors.NewConflict("transaction %s is already refunded", *txn.RefundOf)
			}
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// GetTransaction retrieves one ledger entry of a tenant
func (r *CreditRepository) GetTransaction(ctx context.Context, tenantID, id string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&txn).Error
	if err != nil {
		return nil, notFound(err, "credit transaction", id)
	}
	return &txn, nil
}

// ListTransactions retrieves a page of the tenant ledger, newest first
func (r *CreditRepository) ListTransactions(ctx context.Context, tenantID string, offset, limit int) ([]models.CreditTransaction, int64, error) {
	offset, limit = clampPage(offset, limit)
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txns []models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&txns).Error
	return txns, total, err
}
