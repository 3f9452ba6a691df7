package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"hppgate/internal/checkout"
	"hppgate/internal/config"
)

const (
	sweepBatch   = 200
	sweepTimeout = 5 * time.Minute
	purgeTimeout = time.Minute
)

// Sweeper reconciles checkout attempts whose browser never came back.
type Sweeper interface {
	SweepPending(ctx context.Context, minAge, ttl time.Duration, limit int) (checkout.SweepStats, error)
}

// EventPurger deletes processed webhook events.
type EventPurger interface {
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	cfg     config.CronConfig
	sweeper Sweeper
	purger  EventPurger
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new cron scheduler.
func New(cfg config.CronConfig, sweeper Sweeper, purger EventPurger, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		sweeper: sweeper,
		purger:  purger,
		logger:  logger,
		now:     time.Now,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	// Pending checkout sweep - every 10 minutes by default
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, func() {
		s.logger.Debug("Running: pending checkout sweep")
		s.sweepPending()
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.SweepSpec, err)
	}

	// Webhook event purge - daily at 03:30 by default
	if _, err := s.cron.AddFunc(s.cfg.PurgeSpec, func() {
		s.logger.Debug("Running: webhook event purge")
		s.purgeWebhookEvents()
	}); err != nil {
		return fmt.Errorf("schedule purge %q: %w", s.cfg.PurgeSpec, err)
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ── Pending checkout sweep ───────────────────────────────────────────

func (s *Scheduler) sweepPending() {
	defer s.recoverFromPanic("sweepPending")

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	stats, err := s.sweeper.SweepPending(ctx, s.cfg.SweepMinAge, s.cfg.AttemptTTL, sweepBatch)
	if err != nil {
		s.logger.Error("Pending checkout sweep failed", zap.Error(err))
		return
	}
	if stats.Scanned > 0 {
		s.logger.Info("Pending checkout sweep completed",
			zap.Int("scanned", stats.Scanned),
			zap.Int("committed", stats.Committed),
			zap.Int("expired", stats.Expired),
			zap.Int("failed", stats.Failed),
		)
	}
}

// ── Webhook event purge ──────────────────────────────────────────────

func (s *Scheduler) purgeWebhookEvents() {
	defer s.recoverFromPanic("purgeWebhookEvents")

	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.PurgeAfter)
	n, err := s.purger.PurgeProcessedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Webhook event purge failed", zap.Error(err))
		return
	}
	s.logger.Debug("Webhook event purge completed", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
