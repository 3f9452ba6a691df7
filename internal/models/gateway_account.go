package models

import "time"

// GatewayAccount maps to the `gateway_accounts` table: processor
// credentials configured for one payment account and gateway.
type GatewayAccount struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AccountID     uint      `gorm:"column:account_id;not null;uniqueIndex:ux_gateway_accounts_account_gateway,priority:1" json:"account_id"`
	Gateway       string    `gorm:"column:gateway;size:50;not null;uniqueIndex:ux_gateway_accounts_account_gateway,priority:2" json:"gateway"`
	Enabled       bool      `gorm:"column:enabled;not null;default:true" json:"enabled"`
	ClientID      string    `gorm:"column:client_id;size:255" json:"client_id"`
	APIKey        string    `gorm:"column:api_key;size:255" json:"api_key,omitempty"`
	WebhookSecret string    `gorm:"column:webhook_secret;size:255" json:"webhook_secret,omitempty"`
	Environment   string    `gorm:"column:environment;size:20;not null;default:'sandbox'" json:"environment"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (GatewayAccount) TableName() string {
	return "gateway_accounts"
}
