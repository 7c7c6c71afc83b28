package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SHOPLIGHT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SHOPLIGHT_DB_DSN"
	EnvDBHost = "SHOPLIGHT_DB_HOST"
	EnvDBUser = "SHOPLIGHT_DB_USER"
	EnvDBName = "SHOPLIGHT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Sendgrid     SendgridConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
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
	Env          string `envconfig:"SHOPLIGHT_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPLIGHT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPLIGHT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPLIGHT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPLIGHT_DB_DSN"`
	Driver string `envconfig:"SHOPLIGHT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPLIGHT_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPLIGHT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPLIGHT_DB_USER"`
	LegacyPassword string `envconfig:"SHOPLIGHT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPLIGHT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPLIGHT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPLIGHT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPLIGHT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPLIGHT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPLIGHT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPLIGHT_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"SHOPLIGHT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPLIGHT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPLIGHT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPLIGHT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPLIGHT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey     string        `envconfig:"SHOPLIGHT_STRIPE_API_KEY"`
	Secret     string        `envconfig:"SHOPLIGHT_STRIPE_SECRET"`
	WebhookTTL time.Duration `envconfig:"SHOPLIGHT_STRIPE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// CheckoutConfig holds the pricing and session knobs for the checkout pipeline.
type CheckoutConfig struct {
	TaxRateBP                 int            `envconfig:"SHOPLIGHT_CHECKOUT_TAX_RATE_BP" default:"800"`
	ShippingStandardCents     int            `envconfig:"SHOPLIGHT_CHECKOUT_SHIPPING_STANDARD_CENTS" default:"1000"`
	ShippingReducedCents      int            `envconfig:"SHOPLIGHT_CHECKOUT_SHIPPING_REDUCED_CENTS" default:"500"`
	ReducedShippingFloorCents int            `envconfig:"SHOPLIGHT_CHECKOUT_REDUCED_SHIPPING_FLOOR_CENTS" default:"2500"`
	FreeShippingFloorCents    int            `envconfig:"SHOPLIGHT_CHECKOUT_FREE_SHIPPING_FLOOR_CENTS" default:"7500"`
	SessionTTL                time.Duration  `envconfig:"SHOPLIGHT_CHECKOUT_SESSION_TTL" default:"30m"`
	DiscountCodes             map[string]int `envconfig:"SHOPLIGHT_CHECKOUT_DISCOUNT_CODES"`
	LowStockThreshold         int            `envconfig:"SHOPLIGHT_CHECKOUT_LOW_STOCK_THRESHOLD" default:"5"`
}

// RateLimitConfig throttles checkout session creation per owner.
type RateLimitConfig struct {
	CheckoutWindow time.Duration `envconfig:"SHOPLIGHT_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit  int           `envconfig:"SHOPLIGHT_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"SHOPLIGHT_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"SHOPLIGHT_SENDGRID_FROM_EMAIL"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOPLIGHT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOPLIGHT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOPLIGHT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPLIGHT_AUTO_MIGRATE" default:"false"`
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
