// Command api serves the HTTP surface of the auction engine.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/bidhaven-backend/api/routes"
	"github.com/angelmondragon/bidhaven-backend/internal/bootstrap"
	"github.com/angelmondragon/bidhaven-backend/internal/engine"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	bootstrap.Main("api", run)
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng, err := engine.New(engine.Params{
		Config:     rt.Config,
		Logger:     rt.Logger,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(
		rt.Config,
		rt.Logger,
		dbClient,
		redisClient,
		reg,
		eng.Listings,
		eng.Auction,
		eng.Ratings,
		eng.Notifications,
		eng.Watch,
	)
	server := &http.Server{
		Addr:              listenAddr(rt.Config.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	ctx = rt.Logger.WithField(ctx, "addr", server.Addr)

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		stopped <- server.Shutdown(shutdownCtx)
	}()

	rt.Logger.Info(ctx, "api listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}

// listenAddr prefers the platform-assigned PORT over the configured one.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + configured
}
