// Command worker consumes rating events and repairs rating aggregates.
package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/bidhaven-backend/internal/bootstrap"
	"github.com/angelmondragon/bidhaven-backend/internal/engine"
	"github.com/angelmondragon/bidhaven-backend/internal/ratings"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/idempotency"
)

func main() {
	bootstrap.Main("worker", run)
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
	pubsubClient, err := rt.PubSub(ctx)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Params{
		Config: rt.Config,
		Logger: rt.Logger,
		DB:     dbClient,
		Redis:  redisClient,
	})
	if err != nil {
		return err
	}
	guard, err := idempotency.NewGuard(redisClient, rt.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	subscription := pubsubClient.RatingsSubscription()
	if subscription == nil {
		return errors.New("BIDHAVEN_PUBSUB_RATINGS_SUBSCRIPTION is empty")
	}
	ratingConsumer, err := ratings.NewConsumer(eng.Ratings, guard, subscription, rt.Logger)
	if err != nil {
		return err
	}

	worker, err := NewService(ServiceParams{
		Logger: rt.Logger,
		Dependencies: []Dependency{
			{Name: "database", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Consumers: map[string]Consumer{"ratings": ratingConsumer},
	})
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}
