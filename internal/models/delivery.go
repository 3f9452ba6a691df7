package models

import "time"

// OrderDelivery maps to the `order_deliveries` table: the host-side grant
// produced by a completed payment (course access, enrolment, ...).
type OrderDelivery struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PaymentID   uint      `gorm:"column:payment_id;not null;uniqueIndex:ux_order_deliveries_payment" json:"payment_id"`
	Component   string    `gorm:"column:component;size:100;not null" json:"component"`
	PaymentArea string    `gorm:"column:payment_area;size:50;not null" json:"paymentarea"`
	ItemID      int64     `gorm:"column:item_id;not null" json:"itemid"`
	UserID      int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OrderDelivery) TableName() string {
	return "order_deliveries"
}
