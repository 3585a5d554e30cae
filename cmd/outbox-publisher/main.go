// Command outbox-publisher relays committed outbox rows to Pub/Sub.
package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bidhaven-backend/internal/bootstrap"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/registry"
)

func main() {
	bootstrap.Main("outbox-publisher", run)
}

func run(ctx context.Context, rt *bootstrap.Runtime) error {
	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := rt.PubSub(ctx)
	if err != nil {
		return err
	}
	routes, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		return err
	}

	relay, err := NewService(ServiceParams{
		Config:        rt.Config,
		Logger:        rt.Logger,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      routes,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	return relay.Run(ctx)
}
