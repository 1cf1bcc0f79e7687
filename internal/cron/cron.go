package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// WindowSweeper notifies requesters whose approved window has ended.
type WindowSweeper interface {
	NotifyEndedWindows(ctx context.Context) (int, error)
}

// NotificationCleaner deletes read notifications past their retention.
type NotificationCleaner interface {
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron      *cron.Cron
	windows   WindowSweeper
	cleaner   NotificationCleaner
	retention time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler. A nil sweeper or cleaner disables its job.
func NewScheduler(windows WindowSweeper, cleaner NotificationCleaner, retentionDays int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		windows:   windows,
		cleaner:   cleaner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		timeout:   time.Minute,
		logger:    logger.Named("cron"),
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	// Ended access windows - every 10 minutes
	if _, err := s.cron.AddFunc("*/10 * * * *", func() {
		s.logger.Debug("running ended window check")
		s.notifyEndedWindows()
	}); err != nil {
		return err
	}

	// Clean up old notifications - every Sunday at midnight
	if _, err := s.cron.AddFunc("0 0 * * 0", func() {
		s.logger.Debug("running notification cleanup")
		s.cleanupOldNotifications()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) notifyEndedWindows() int {
	if s.windows == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	sent, err := s.windows.NotifyEndedWindows(ctx)
	if err != nil {
		s.logger.Error("ended window check failed", zap.Error(err))
	}
	if sent > 0 {
		s.logger.Info("sent window ended notifications", zap.Int("count", sent))
	}
	return sent
}

// cleanupOldNotifications removes old read notifications
func (s *Scheduler) cleanupOldNotifications() int {
	if s.cleaner == nil || s.retention <= 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	deleted, err := s.cleaner.CleanupOlderThan(ctx, s.retention)
	if err != nil {
		s.logger.Error("notification cleanup failed", zap.Error(err))
		return 0
	}
	s.logger.Info("cleaned up notifications", zap.Int("deleted", deleted))
	return deleted
}

// ManualTrigger runs a job immediately and returns how many rows it touched.
func (s *Scheduler) ManualTrigger(checkType string) int {
	switch checkType {
	case "windows":
		return s.notifyEndedWindows()
	case "cleanup":
		return s.cleanupOldNotifications()
	case "all":
		return s.notifyEndedWindows() + s.cleanupOldNotifications()
	}
	return 0
}
