package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"hppgate/internal/models"
)

// AttemptRepository stores one row per created payment intent.
type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *models.CheckoutAttempt) error {
	if attempt.Status == "" {
		attempt.Status = models.AttemptStatusPending
	}
	return conn(ctx, r.db).Create(attempt).Error
}

// FindByIntentID returns nil, nil for an unknown intent.
func (r *AttemptRepository) FindByIntentID(ctx context.Context, intentID string) (*models.CheckoutAttempt, error) {
	var attempt models.CheckoutAttempt
	err := conn(ctx, r.db).Where("intent_id = ?", intentID).First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// UpdateStatus sets the attempt status for intentID.
func (r *AttemptRepository) UpdateStatus(ctx context.Context, intentID, status string) error {
	return conn(ctx, r.db).Model(&models.CheckoutAttempt{}).
		Where("intent_id = ?", intentID).
		Update("status", status).Error
}

// MarkExpired expires an attempt that is still pending.
func (r *AttemptRepository) MarkExpired(ctx context.Context, intentID string) error {
	return conn(ctx, r.db).Model(&models.CheckoutAttempt{}).
		Where("intent_id = ? AND status = ?", intentID, models.AttemptStatusPending).
		Update("status", models.AttemptStatusExpired).Error
}

// FindPendingBefore returns up to limit pending attempts created before cutoff,
// oldest first.
func (r *AttemptRepository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var attempts []models.CheckoutAttempt
	err := conn(ctx, r.db).
		Where("status = ? AND created_at < ?", models.AttemptStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}
