package config

// EnvPrefix is the envconfig prefix for every variable the service reads.
const EnvPrefix = "MERCALINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names, spelled out so tests and deploy tooling can
// reference them without duplicating strings.
const (
	EnvAppEnv   = "MERCALINE_APP_ENV"
	EnvPort     = "MERCALINE_APP_PORT"
	EnvLogLevel = "MERCALINE_LOG_LEVEL"

	EnvDBDSN  = "MERCALINE_DB_DSN"
	EnvDBHost = "MERCALINE_DB_HOST"
	EnvDBUser = "MERCALINE_DB_USER"
	EnvDBName = "MERCALINE_DB_NAME"

	EnvRedisURL = "MERCALINE_REDIS_URL"

	EnvStripeAPIKey        = "MERCALINE_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "MERCALINE_STRIPE_WEBHOOK_SECRET"

	EnvCheckoutLockTTL       = "MERCALINE_CHECKOUT_LOCK_TTL"
	EnvCheckoutSweepInterval = "MERCALINE_CHECKOUT_SWEEP_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
