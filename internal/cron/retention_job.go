package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"gorm.io/gorm"
)

const defaultRetentionDays = 30

type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type notificationPurger interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// RetentionParams are shared by the purge jobs.
type RetentionParams struct {
	Logger *logger.Logger
	DB     txRunner
	// Days of history to keep; zero or less falls back to 30.
	Days int
}

// NewNotificationCleanupJob deletes read notifications older than the window.
// Unread notifications are never purged.
func NewNotificationCleanupJob(params RetentionParams, repo notificationPurger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionJob("notification-cleanup", params, repo.DeleteOlderThan)
}

// NewOutboxRetentionJob deletes outbox rows that were published before the window.
func NewOutboxRetentionJob(params RetentionParams, repo outboxPurger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox-retention", params, repo.DeletePublishedBefore)
}

func newRetentionJob(name string, params RetentionParams, purge purgeFunc) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	if params.DB == nil {
		return nil, fmt.Errorf("%s: db runner required", name)
	}
	days := params.Days
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &retentionJob{
		name:  name,
		logg:  params.Logger,
		db:    params.DB,
		purge: purge,
		keep:  time.Duration(days) * 24 * time.Hour,
		now:   time.Now,
	}, nil
}

type retentionJob struct {
	name  string
	logg  *logger.Logger
	db    txRunner
	purge purgeFunc
	keep  time.Duration
	now   func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.purge(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention purge complete")
	return nil
}
