// Command cron-worker runs the scheduled sweeps: expiring auctions and
// trimming old notifications and outbox rows.
package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bidhaven-backend/internal/bootstrap"
	"github.com/angelmondragon/bidhaven-backend/internal/cron"
	"github.com/angelmondragon/bidhaven-backend/internal/engine"
	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	"github.com/angelmondragon/bidhaven-backend/pkg/db"
	"github.com/angelmondragon/bidhaven-backend/pkg/lock"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
)

const lockKeyFormat = "bh:cron-worker:lock:%s"

func main() {
	bootstrap.Main("cron-worker", run)
}

func run(ctx context.Context, rt *bootstrap.Runtime) error {
	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}
	cronLock, err := lock.NewRedisLock(redisClient, lockKey(rt.Config.App.Env), 0)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Params{
		Config:     rt.Config,
		Logger:     rt.Logger,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	jobs, err := buildJobs(rt.Config, rt.Logger, dbClient, eng)
	if err != nil {
		return fmt.Errorf("build cron jobs: %w", err)
	}

	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: cron.NewRegistry(jobs...),
		Lock:     cronLock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: rt.Config.Auction.SweepInterval,
	})
	if err != nil {
		return err
	}

	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	return scheduler.Run(ctx)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, eng *engine.Engine) ([]cron.Job, error) {
	expiryJob, err := cron.NewAuctionExpiryJob(cron.AuctionExpiryJobParams{
		Logger:     logg,
		Repository: eng.ListingsRepo,
		Auctions:   eng.Auction,
		BatchSize:  cfg.Auction.SweepBatchSize,
	})
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationCleanupJob(cron.RetentionParams{
		Logger: logg,
		DB:     dbClient,
		Days:   cfg.Notifications.RetentionDays,
	}, eng.NotificationsRepo)
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.RetentionParams{
		Logger: logg,
		DB:     dbClient,
		Days:   cfg.Outbox.RetentionDays,
	}, outbox.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	return []cron.Job{expiryJob, notificationJob, outboxJob}, nil
}
