package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PayableRef identifies a priced item in the host platform.
type PayableRef struct {
	Component   string `json:"component" query:"component" validate:"required,max=100"`
	PaymentArea string `json:"paymentarea" query:"paymentarea" validate:"required,max=50"`
	ItemID      int64  `json:"itemid" query:"itemid" validate:"required,gt=0"`
}

func (r PayableRef) String() string {
	return fmt.Sprintf("%s/%s/%d", r.Component, r.PaymentArea, r.ItemID)
}

// Payable maps to the `payables` table: the host platform's price list.
type Payable struct {
	ID          uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Component   string          `gorm:"column:component;size:100;not null;uniqueIndex:ux_payables_ref,priority:1" json:"component"`
	PaymentArea string          `gorm:"column:payment_area;size:50;not null;uniqueIndex:ux_payables_ref,priority:2" json:"paymentarea"`
	ItemID      int64           `gorm:"column:item_id;not null;uniqueIndex:ux_payables_ref,priority:3" json:"itemid"`
	AccountID   uint            `gorm:"column:account_id;not null;index" json:"account_id"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(20,6);not null" json:"amount"`
	Currency    string          `gorm:"column:currency;size:3;not null" json:"currency"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payable) TableName() string {
	return "payables"
}

func (p *Payable) Ref() PayableRef {
	return PayableRef{Component: p.Component, PaymentArea: p.PaymentArea, ItemID: p.ItemID}
}
