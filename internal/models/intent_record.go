package models

import "time"

// IntentRecord maps to the `payment_intent_records` table and links a
// processor intent to the local payment it produced. The unique index on
// intent_id is the only guard against a second commit for the same intent.
type IntentRecord struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	IntentID  string    `gorm:"column:intent_id;size:64;not null;uniqueIndex:ux_payment_intent_records_intent" json:"intent_id"`
	PaymentID uint      `gorm:"column:payment_id;not null;index" json:"payment_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (IntentRecord) TableName() string {
	return "payment_intent_records"
}
