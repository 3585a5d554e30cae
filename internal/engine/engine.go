// Package engine assembles the auction lifecycle services for the binaries.
package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bidhaven-backend/internal/auction"
	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/internal/ratings"
	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	"github.com/angelmondragon/bidhaven-backend/pkg/db"
	"github.com/angelmondragon/bidhaven-backend/pkg/lock"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/redis"
)

// Params are the shared clients every binary already bootstraps.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Engine holds the wired services.
type Engine struct {
	ListingsRepo      listings.Repository
	NotificationsRepo notifications.Repository
	Listings          listings.Service
	Auction           auction.Service
	Ratings           ratings.Service
	Notifications     notifications.Service
	Watch             *listings.Watch
	Metrics           *metrics.EngineMetrics
}

func New(params Params) (*Engine, error) {
	if params.Config == nil || params.Logger == nil || params.DB == nil || params.Redis == nil {
		return nil, errors.New("config, logger, db and redis are required")
	}
	cfg := params.Config
	logg := params.Logger

	var engineMetrics *metrics.EngineMetrics
	if params.Registerer != nil {
		engineMetrics = metrics.NewEngineMetrics(params.Registerer)
	}

	listingsRepo := listings.NewRepository(params.DB.DB())
	notificationsRepo := notifications.NewRepository(params.DB.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(params.DB.DB()), logg)

	watch, err := listings.NewWatch(params.Redis, logg)
	if err != nil {
		return nil, err
	}
	dispatcher, err := notifications.NewDispatcher(notificationsRepo, logg, engineMetrics)
	if err != nil {
		return nil, err
	}
	locks, err := lock.NewFactory(params.Redis, cfg.Auction.RatingLockTTL)
	if err != nil {
		return nil, err
	}

	listingsSvc, err := listings.NewService(listingsRepo)
	if err != nil {
		return nil, err
	}
	auctionSvc, err := auction.NewService(auction.ServiceParams{
		Repo:            listingsRepo,
		Tx:              params.DB,
		Outbox:          outboxSvc,
		Notifier:        dispatcher,
		Watch:           watch,
		Metrics:         engineMetrics,
		Logger:          logg,
		ConflictRetries: cfg.Auction.ConflictRetries,
	})
	if err != nil {
		return nil, err
	}
	ratingsSvc, err := ratings.NewService(ratings.ServiceParams{
		Repo:            ratings.NewRepository(params.DB.DB()),
		Listings:        listingsRepo,
		Tx:              params.DB,
		Outbox:          outboxSvc,
		Notifier:        dispatcher,
		Watch:           watch,
		Locks:           locks,
		Keys:            params.Redis,
		Metrics:         engineMetrics,
		Logger:          logg,
		LockWait:        lockWait(cfg.Auction.RatingLockTTL),
		ConflictRetries: cfg.Auction.ConflictRetries,
	})
	if err != nil {
		return nil, err
	}
	notificationsSvc, err := notifications.NewService(notificationsRepo)
	if err != nil {
		return nil, err
	}

	return &Engine{
		ListingsRepo:      listingsRepo,
		NotificationsRepo: notificationsRepo,
		Listings:          listingsSvc,
		Auction:           auctionSvc,
		Ratings:           ratingsSvc,
		Notifications:     notificationsSvc,
		Watch:             watch,
		Metrics:           engineMetrics,
	}, nil
}

// lockWait bounds how long a rating recompute waits for a held aggregate lock.
func lockWait(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return 2 * ttl
}
