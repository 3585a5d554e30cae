// Package bootstrap holds the start-up and tear-down steps shared by every
// long-running binary.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	"github.com/angelmondragon/bidhaven-backend/pkg/db"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/angelmondragon/bidhaven-backend/pkg/migrate"
	"github.com/angelmondragon/bidhaven-backend/pkg/pubsub"
	"github.com/angelmondragon/bidhaven-backend/pkg/redis"
)

// Runtime is a loaded config, a configured logger and the connections opened
// through it. Close releases the connections in reverse order.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Start loads .env (when present) and the environment, then builds the
// logger for kind.
func Start(kind string) (*Runtime, error) {
	early := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		early.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = kind

	return &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Console:     cfg.App.LogFormat == "console",
		}),
	}, nil
}

// OnClose registers fn to run during Close.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

// Close runs the registered closers last-in first-out and logs failures.
func (rt *Runtime) Close(ctx context.Context) {
	for _, c := range slices.Backward(rt.closers) {
		if err := c.close(); err != nil {
			rt.Logger.Error(ctx, "error closing "+c.name, err)
		}
	}
	rt.closers = nil
}

// Database connects to the primary store and, in dev with auto-migrate on,
// applies pending migrations.
func (rt *Runtime) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.OnClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (rt *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	rt.OnClose("redis", client.Close)
	return client, nil
}

func (rt *Runtime) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, rt.Config.PubSub, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	rt.OnClose("pubsub client", client.Close)
	return client, nil
}

// ServeMetrics exposes gatherer on BIDHAVEN_METRICS_ADDR until ctx ends. It
// does nothing when the address is empty.
func (rt *Runtime) ServeMetrics(ctx context.Context, gatherer prometheus.Gatherer) {
	addr := rt.Config.Service.MetricsAddr
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, gatherer); err != nil {
			rt.Logger.Error(ctx, "metrics listener stopped", err)
		}
	}()
}

// Main boots kind, runs it until SIGINT or SIGTERM, then tears it down.
// It exits non-zero when start-up or run fails.
func Main(kind string, run func(ctx context.Context, rt *Runtime) error) {
	rt, err := Start(kind)
	if err != nil {
		logger.New(logger.Options{ServiceName: kind}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	os.Exit(rt.execute(kind, run))
}

func (rt *Runtime) execute(kind string, run func(ctx context.Context, rt *Runtime) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = rt.Logger.WithFields(ctx, map[string]any{
		"env":          rt.Config.App.Env,
		"service_kind": kind,
	})

	rt.Logger.Info(ctx, "starting "+kind)
	err := run(ctx, rt)
	rt.Close(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(ctx, kind+" stopped unexpectedly", err)
		return 1
	}
	rt.Logger.Info(ctx, kind+" shut down gracefully")
	return 0
}
