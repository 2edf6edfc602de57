package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Checkout     CheckoutConfig
	Shipping     ShippingConfig
	Tax          TaxConfig
	Stripe       StripeConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MERCALINE_APP_ENV" required:"true"`
	Port         string `envconfig:"MERCALINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MERCALINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERCALINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MERCALINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MERCALINE_DB_DSN"`
	Driver string `envconfig:"MERCALINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MERCALINE_DB_HOST"`
	LegacyPort     int    `envconfig:"MERCALINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MERCALINE_DB_USER"`
	LegacyPassword string `envconfig:"MERCALINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MERCALINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MERCALINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERCALINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERCALINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERCALINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERCALINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MERCALINE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"MERCALINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERCALINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERCALINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERCALINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERCALINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERCALINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERCALINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CheckoutConfig tunes the cart lock lifecycle. LockTTL is how long a lock
// holds stock before it expires; SweepInterval is how often the cron worker
// flips stale locks to expired.
type CheckoutConfig struct {
	LockTTL         time.Duration `envconfig:"MERCALINE_CHECKOUT_LOCK_TTL" default:"5m"`
	SweepInterval   time.Duration `envconfig:"MERCALINE_CHECKOUT_SWEEP_INTERVAL" default:"1m"`
	MaxItemsPerCart int           `envconfig:"MERCALINE_CHECKOUT_MAX_ITEMS_PER_CART" default:"100"`
}

type ShippingConfig struct {
	FlatFeeCents       int `envconfig:"MERCALINE_SHIPPING_FLAT_FEE_CENTS" default:"995"`
	FreeThresholdCents int `envconfig:"MERCALINE_SHIPPING_FREE_THRESHOLD_CENTS" default:"10000"`
}

// TaxConfig controls whether the shipping fee joins the taxable base.
type TaxConfig struct {
	ApplyToShipping bool `envconfig:"MERCALINE_TAX_APPLY_TO_SHIPPING" default:"false"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"MERCALINE_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"MERCALINE_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"MERCALINE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CronConfig struct {
	LockTTL         time.Duration `envconfig:"MERCALINE_CRON_LOCK_TTL" default:"5m"`
	ShutdownTimeout time.Duration `envconfig:"MERCALINE_CRON_SHUTDOWN_TIMEOUT" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MERCALINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MERCALINE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
