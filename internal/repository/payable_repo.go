package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"hppgate/internal/models"
)

// PayableRepository reads the host platform's price list.
type PayableRepository struct {
	db *gorm.DB
}

func NewPayableRepository(db *gorm.DB) *PayableRepository {
	return &PayableRepository{db: db}
}

// FindByRef returns nil, nil when no payable matches.
func (r *PayableRepository) FindByRef(ctx context.Context, ref models.PayableRef) (*models.Payable, error) {
	var payable models.Payable
	err := conn(ctx, r.db).
		Where("component = ? AND payment_area = ? AND item_id = ?", ref.Component, ref.PaymentArea, ref.ItemID).
		First(&payable).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payable, nil
}

// Upsert creates or updates the payable identified by its ref.
func (r *PayableRepository) Upsert(ctx context.Context, payable *models.Payable) error {
	existing, err := r.FindByRef(ctx, payable.Ref())
	if err != nil {
		return err
	}
	if existing == nil {
		return conn(ctx, r.db).Create(payable).Error
	}
	payable.ID = existing.ID
	return conn(ctx, r.db).Model(existing).Updates(map[string]interface{}{
		"account_id": payable.AccountID,
		"amount":     payable.Amount,
		"currency":   payable.Currency,
	}).Error
}
