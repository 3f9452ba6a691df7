package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"hppgate/internal/models"
)

// PaymentRepository is the local payment ledger.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a pending payment and fills payment.ID.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	return conn(ctx, r.db).Create(payment).Error
}

// FindByID returns nil, nil when the payment does not exist.
func (r *PaymentRepository) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	err := conn(ctx, r.db).Where("id = ?", id).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkComplete flips a payment to complete.
func (r *PaymentRepository) MarkComplete(ctx context.Context, id uint) error {
	res := conn(ctx, r.db).Model(&models.Payment{}).
		Where("id = ?", id).
		Update("status", models.PaymentStatusComplete)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByUserID lists a payer's payments, newest first.
func (r *PaymentRepository) FindByUserID(ctx context.Context, userID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := conn(ctx, r.db).Where("user_id = ?", userID).Order("id DESC").Find(&payments).Error
	return payments, err
}

// CountByRef counts payments recorded for a payable, any status.
func (r *PaymentRepository) CountByRef(ctx context.Context, ref models.PayableRef) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Payment{}).
		Where("component = ? AND payment_area = ? AND item_id = ?", ref.Component, ref.PaymentArea, ref.ItemID).
		Count(&count).Error
	return count, err
}

// ListByUser returns one page of a payer's payments and the total count.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64, limit, page int) ([]models.Payment, int64, error) {
	var total int64
	q := conn(ctx, r.db).Model(&models.Payment{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	offset := (page - 1) * limit
	err := conn(ctx, r.db).Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&payments).Error
	return payments, total, err
}
