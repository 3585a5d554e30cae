package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bidhaven-backend/api/controllers"
	"github.com/angelmondragon/bidhaven-backend/api/middleware"
	"github.com/angelmondragon/bidhaven-backend/internal/auction"
	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/internal/ratings"
	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	"github.com/angelmondragon/bidhaven-backend/pkg/db"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/redis"
)

// redisStore is what the router needs from Redis: health pings and the
// idempotency record store.
type redisStore interface {
	redis.Pinger
	redis.IdempotencyStore
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	gatherer prometheus.Gatherer,
	listingsService listings.Service,
	auctionService auction.Service,
	ratingsService ratings.Service,
	notificationsService notifications.Service,
	watch controllers.ListingWatcher,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisClient,
		}))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/v1/me", controllers.Whoami(logg))

		r.Post("/v1/listings", controllers.CreateListing(listingsService, logg))
		r.Get("/v1/listings/{listingId}", controllers.GetListing(listingsService, logg))
		r.Get("/v1/listings/{listingId}/bids", controllers.ListListingBids(listingsService, logg))
		r.Post("/v1/listings/{listingId}/bids", controllers.PlaceBid(auctionService, logg))
		r.Post("/v1/listings/{listingId}/complete", controllers.CompleteListing(auctionService, logg))
		r.Post("/v1/listings/{listingId}/confirm", controllers.ConfirmListing(auctionService, logg))
		r.Get("/v1/listings/{listingId}/rating-eligibility", controllers.RatingEligibility(ratingsService, logg))
		r.Post("/v1/listings/{listingId}/ratings", controllers.SubmitRating(ratingsService, logg))
		r.Get("/v1/listings/{listingId}/watch", controllers.WatchListing(listingsService, watch, logg))

		r.Get("/v1/users/{userId}/rating", controllers.UserRating(ratingsService, logg))

		r.Get("/v1/notifications", controllers.ListNotifications(notificationsService, logg))
		r.Post("/v1/notifications/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		r.Post("/v1/notifications/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
	})

	return r
}
