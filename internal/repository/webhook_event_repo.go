package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hppgate/internal/models"
)

// WebhookEventRepository persists processor webhook deliveries.
type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// CreateIfAbsent inserts event unless its event_id is already stored.
// The boolean reports whether a new row was written.
func (r *WebhookEventRepository) CreateIfAbsent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByEventID returns nil, nil when the event was never stored.
func (r *WebhookEventRepository) FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := conn(ctx, r.db).Where("event_id = ?", eventID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed stamps the event; processingErr is stored when non-empty.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string, processingErr string) error {
	now := time.Now()
	return conn(ctx, r.db).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": processingErr,
		}).Error
}

// PurgeProcessedBefore deletes processed events older than cutoff.
func (r *WebhookEventRepository) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := conn(ctx, r.db).
		Where("processed_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&models.WebhookEvent{})
	return res.RowsAffected, res.Error
}
