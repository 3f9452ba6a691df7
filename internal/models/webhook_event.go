package models

import "time"

// WebhookEvent stores processor webhook deliveries, deduplicated by event id.
type WebhookEvent struct {
	ID              uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventID         string     `gorm:"column:event_id;size:191;not null;uniqueIndex:ux_webhook_events_event" json:"event_id"`
	EventType       string     `gorm:"column:event_type;size:100;not null;index" json:"event_type"`
	IntentID        string     `gorm:"column:intent_id;size:64;index" json:"intent_id"`
	PayloadJSON     string     `gorm:"column:payload_json;type:text;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"column:signature_valid;not null;default:false" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"column:processing_error;type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
