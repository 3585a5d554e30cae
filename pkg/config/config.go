package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Auction       AuctionConfig
	Notifications NotificationsConfig
}

// Load reads the environment and fails on the first missing required value,
// then reports every cross-field problem at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}
	check(slices.Contains([]string{"json", "console"}, c.App.LogFormat), "log format %q must be json or console", c.App.LogFormat)
	check(slices.Contains([]string{"postgres", "sqlite"}, c.DB.Driver), "db driver %q must be postgres or sqlite", c.DB.Driver)
	check(!c.App.IsProd() || c.DB.Driver == "postgres", "sqlite is not allowed in prod")
	check(c.JWT.ExpirationMinutes > 0, "jwt expiration must be positive")
	check(c.Outbox.MaxAttempts > 0, "outbox max attempts must be positive")
	check(c.Outbox.BatchSize > 0, "outbox batch size must be positive")
	check(c.Auction.ConflictRetries >= 0, "conflict retries cannot be negative")
	check(c.Auction.SweepInterval > 0, "sweep interval must be positive")
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"BIDHAVEN_APP_ENV" required:"true"`
	Port         string `envconfig:"BIDHAVEN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BIDHAVEN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BIDHAVEN_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"BIDHAVEN_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"BIDHAVEN_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BIDHAVEN_SERVICE_KIND" default:"api"`
	// MetricsAddr exposes /metrics on background processes. Empty disables it.
	MetricsAddr string `envconfig:"BIDHAVEN_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"BIDHAVEN_DB_DSN"`
	// Driver is "postgres" or "sqlite" (local runs only).
	Driver string `envconfig:"BIDHAVEN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BIDHAVEN_DB_HOST"`
	LegacyPort     int    `envconfig:"BIDHAVEN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BIDHAVEN_DB_USER"`
	LegacyPassword string `envconfig:"BIDHAVEN_DB_PASSWORD"`
	LegacyName     string `envconfig:"BIDHAVEN_DB_NAME"`
	LegacySSLMode  string `envconfig:"BIDHAVEN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIDHAVEN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIDHAVEN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIDHAVEN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIDHAVEN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"BIDHAVEN_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BIDHAVEN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BIDHAVEN_REDIS_ADDR"`
	Password     string        `envconfig:"BIDHAVEN_REDIS_PASSWORD"`
	DB           int           `envconfig:"BIDHAVEN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BIDHAVEN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BIDHAVEN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BIDHAVEN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BIDHAVEN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BIDHAVEN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the shared HMAC secret used to verify identity tokens.
type JWTConfig struct {
	Secret            string `envconfig:"BIDHAVEN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BIDHAVEN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BIDHAVEN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BIDHAVEN_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"BIDHAVEN_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// GCPConfig relies on application default credentials for Pub/Sub.
type GCPConfig struct {
	ProjectID string `envconfig:"BIDHAVEN_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	ListingsTopic        string `envconfig:"BIDHAVEN_PUBSUB_LISTINGS_TOPIC" default:"bh-listing-events"`
	ListingsSubscription string `envconfig:"BIDHAVEN_PUBSUB_LISTINGS_SUBSCRIPTION"`
	RatingsTopic         string `envconfig:"BIDHAVEN_PUBSUB_RATINGS_TOPIC" default:"bh-rating-events"`
	RatingsSubscription  string `envconfig:"BIDHAVEN_PUBSUB_RATINGS_SUBSCRIPTION" default:"bh-rating-events-worker"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BIDHAVEN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BIDHAVEN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BIDHAVEN_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"BIDHAVEN_OUTBOX_RETENTION_DAYS" default:"30"`
}

// AuctionConfig tunes the lifecycle engine and its sweep job.
type AuctionConfig struct {
	ConflictRetries int           `envconfig:"BIDHAVEN_AUCTION_CONFLICT_RETRIES" default:"1"`
	SweepInterval   time.Duration `envconfig:"BIDHAVEN_AUCTION_SWEEP_INTERVAL" default:"1m"`
	SweepBatchSize  int           `envconfig:"BIDHAVEN_AUCTION_SWEEP_BATCH_SIZE" default:"200"`
	RatingLockTTL   time.Duration `envconfig:"BIDHAVEN_AUCTION_RATING_LOCK_TTL" default:"10s"`
}

type NotificationsConfig struct {
	RetentionDays int `envconfig:"BIDHAVEN_NOTIFICATIONS_RETENTION_DAYS" default:"30"`
}

// ensureDSN assembles a postgres URL from the discrete BIDHAVEN_DB_* values
// when no DSN is given.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, value := range map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		u.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}
