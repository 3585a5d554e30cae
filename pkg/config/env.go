package config

const (
	EnvPrefix = "BIDHAVEN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "BIDHAVEN_APP_ENV"
	EnvPort     = "BIDHAVEN_APP_PORT"
	EnvDBDSN    = "BIDHAVEN_DB_DSN"
	EnvDBHost   = "BIDHAVEN_DB_HOST"
	EnvDBUser   = "BIDHAVEN_DB_USER"
	EnvDBName   = "BIDHAVEN_DB_NAME"
	EnvDBPort   = "BIDHAVEN_DB_PORT"
	EnvRedisURL = "BIDHAVEN_REDIS_URL"

	EnvJWTSecret  = "BIDHAVEN_JWT_SECRET"
	EnvJWTIssuer  = "BIDHAVEN_JWT_ISSUER"
	EnvJWTExpMins = "BIDHAVEN_JWT_EXPIRATION_MINUTES"

	EnvLogFormat              = "BIDHAVEN_LOG_FORMAT"
	EnvDBDriver               = "BIDHAVEN_DB_DRIVER"
	EnvAuctionConflictRetries = "BIDHAVEN_AUCTION_CONFLICT_RETRIES"
	EnvAuctionSweepInterval   = "BIDHAVEN_AUCTION_SWEEP_INTERVAL"
	EnvPubSubListingsTopic    = "BIDHAVEN_PUBSUB_LISTINGS_TOPIC"
	EnvOutboxMaxAttempts      = "BIDHAVEN_OUTBOX_MAX_ATTEMPTS"
)
