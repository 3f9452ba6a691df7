package repository

import (
	"context"

	"gorm.io/gorm"

	"hppgate/internal/models"
)

// DeliveryRepository records order fulfilment for completed payments. It is
// the default Deliverer; hosts with their own fulfilment replace it.
type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Deliver grants the payable to the payer for paymentID. The unique index on
// payment_id makes a second delivery for the same payment fail.
func (r *DeliveryRepository) Deliver(ctx context.Context, ref models.PayableRef, paymentID uint, userID int64) error {
	return conn(ctx, r.db).Create(&models.OrderDelivery{
		PaymentID:   paymentID,
		Component:   ref.Component,
		PaymentArea: ref.PaymentArea,
		ItemID:      ref.ItemID,
		UserID:      userID,
	}).Error
}

func (r *DeliveryRepository) CountByPayment(ctx context.Context, paymentID uint) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.OrderDelivery{}).Where("payment_id = ?", paymentID).Count(&count).Error
	return count, err
}

func (r *DeliveryRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.OrderDelivery{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
