package checkout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hppgate/internal/payment"
)

// SweepStats summarizes one pass over pending checkout attempts.
type SweepStats struct {
	Scanned   int
	Committed int
	Expired   int
	Failed    int
}

// SweepPending reconciles attempts still pending after minAge, catching
// payments whose browser never came back. Attempts older than ttl whose
// intent has not succeeded are expired.
func (r *Reconciler) SweepPending(ctx context.Context, minAge, ttl time.Duration, limit int) (SweepStats, error) {
	var stats SweepStats

	now := time.Now()
	attempts, err := r.attempts.FindPendingBefore(ctx, now.Add(-minAge), limit)
	if err != nil {
		return stats, fmt.Errorf("load pending attempts: %w", err)
	}

	for _, attempt := range attempts {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scanned++

		out := r.ReconcileIntent(ctx, attempt.IntentID, "sweep")
		switch {
		case out.Committed:
			stats.Committed++
		case ttl > 0 && now.Sub(attempt.CreatedAt) > ttl && out.Kind == payment.KindPaymentNotCleared:
			if err := r.attempts.MarkExpired(ctx, attempt.IntentID); err != nil {
				r.logger.Warn("expire attempt", zap.String("intent_id", attempt.IntentID), zap.Error(err))
				continue
			}
			stats.Expired++
		default:
			stats.Failed++
		}
	}
	return stats, nil
}
