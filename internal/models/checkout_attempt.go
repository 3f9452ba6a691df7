package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AttemptStatusPending   = "pending"
	AttemptStatusCommitted = "committed"
	AttemptStatusFailed    = "failed"
	AttemptStatusExpired   = "expired"
)

// CheckoutAttempt maps to the `checkout_attempts` table. One row per
// created intent; it is how callbacks, webhooks and the sweep find the
// payer and payable without trusting anything the browser sends.
type CheckoutAttempt struct {
	ID              uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	IntentID        string          `gorm:"column:intent_id;size:64;not null;uniqueIndex:ux_checkout_attempts_intent" json:"intent_id"`
	MerchantOrderID string          `gorm:"column:merchant_order_id;size:191;not null;uniqueIndex:ux_checkout_attempts_order" json:"merchant_order_id"`
	Component       string          `gorm:"column:component;size:100;not null" json:"component"`
	PaymentArea     string          `gorm:"column:payment_area;size:50;not null" json:"paymentarea"`
	ItemID          int64           `gorm:"column:item_id;not null" json:"itemid"`
	UserID          int64           `gorm:"column:user_id;not null;index" json:"user_id"`
	Cost            decimal.Decimal `gorm:"column:cost;type:decimal(20,6);not null" json:"cost"`
	Currency        string          `gorm:"column:currency;size:3;not null" json:"currency"`
	Status          string          `gorm:"column:status;size:20;not null;default:'pending';index:ix_checkout_attempts_status_created,priority:1" json:"status"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime;index:ix_checkout_attempts_status_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CheckoutAttempt) TableName() string {
	return "checkout_attempts"
}

func (a *CheckoutAttempt) Ref() PayableRef {
	return PayableRef{Component: a.Component, PaymentArea: a.PaymentArea, ItemID: a.ItemID}
}
