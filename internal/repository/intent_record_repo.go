package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hppgate/internal/models"
)

// ErrIntentClaimed is returned by Claim when another writer already linked
// the intent to a payment.
var ErrIntentClaimed = errors.New("payment intent already claimed")

// IntentRecordRepository links processor intents to local payments.
type IntentRecordRepository struct {
	db *gorm.DB
}

func NewIntentRecordRepository(db *gorm.DB) *IntentRecordRepository {
	return &IntentRecordRepository{db: db}
}

// FindByIntentID returns nil, nil when the intent has never been claimed.
func (r *IntentRecordRepository) FindByIntentID(ctx context.Context, intentID string) (*models.IntentRecord, error) {
	var record models.IntentRecord
	err := conn(ctx, r.db).Where("intent_id = ?", intentID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Claim links intentID to paymentID. It must run inside the commit
// transaction.
//
// The insert goes first so a concurrent claimer blocks on the unique index
// instead of racing a read; the loser gets ErrIntentClaimed. A record left
// pointing at a payment that never completed is re-pointed at paymentID.
func (r *IntentRecordRepository) Claim(ctx context.Context, intentID string, paymentID uint) (*models.IntentRecord, error) {
	db := conn(ctx, r.db)

	record := &models.IntentRecord{IntentID: intentID, PaymentID: paymentID}
	err := db.Create(record).Error
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	var existing models.IntentRecord
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("intent_id = ?", intentID).
		First(&existing).Error; err != nil {
		return nil, err
	}

	var completed int64
	if err := db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", existing.PaymentID, models.PaymentStatusComplete).
		Count(&completed).Error; err != nil {
		return nil, err
	}
	if completed > 0 {
		return nil, ErrIntentClaimed
	}

	if err := db.Model(&existing).Update("payment_id", paymentID).Error; err != nil {
		return nil, err
	}
	existing.PaymentID = paymentID
	return &existing, nil
}
