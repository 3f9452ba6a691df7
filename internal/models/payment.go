package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusComplete = "complete"
)

// Payment maps to the `payments` table, the local ledger entry.
type Payment struct {
	ID          uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AccountID   uint            `gorm:"column:account_id;not null;index" json:"account_id"`
	Component   string          `gorm:"column:component;size:100;not null;index:ix_payments_ref,priority:1" json:"component"`
	PaymentArea string          `gorm:"column:payment_area;size:50;not null;index:ix_payments_ref,priority:2" json:"paymentarea"`
	ItemID      int64           `gorm:"column:item_id;not null;index:ix_payments_ref,priority:3" json:"itemid"`
	UserID      int64           `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(20,6);not null" json:"amount"`
	Currency    string          `gorm:"column:currency;size:3;not null" json:"currency"`
	Gateway     string          `gorm:"column:gateway;size:50;not null" json:"gateway"`
	Status      string          `gorm:"column:status;size:20;not null;default:'pending'" json:"status"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
