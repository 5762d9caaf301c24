package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Currency   CurrencyConfig
	Membership MembershipConfig
	GoCardless GoCardlessConfig
	Stripe     StripeConfig
	JoinFlow   JoinFlowConfig
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
	Env          string `envconfig:"MEMBERDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"MEMBERDESK_APP_PORT" default:"8080"`
	WebhookPort  string `envconfig:"MEMBERDESK_WEBHOOK_PORT" default:"8085"`
	LogLevel     string `envconfig:"MEMBERDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEMBERDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"MEMBERDESK_DB_DSN"`

	LegacyHost     string `envconfig:"MEMBERDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"MEMBERDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEMBERDESK_DB_USER"`
	LegacyPassword string `envconfig:"MEMBERDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEMBERDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEMBERDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEMBERDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEMBERDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEMBERDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEMBERDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"MEMBERDESK_DB_AUTO_MIGRATE" default:"false"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.LegacyHost == "" || d.LegacyUser == "" || d.LegacyName == "" {
		return fmt.Errorf("either MEMBERDESK_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.LegacyHost, d.LegacyPort, d.LegacyUser, d.LegacyPassword, d.LegacyName, d.LegacySSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"MEMBERDESK_REDIS_URL"`
	Address      string        `envconfig:"MEMBERDESK_REDIS_ADDR"`
	Password     string        `envconfig:"MEMBERDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEMBERDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEMBERDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEMBERDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEMBERDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEMBERDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEMBERDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CurrencyConfig struct {
	// ISO code sent to providers, lowercase.
	Code string `envconfig:"MEMBERDESK_CURRENCY" default:"gbp"`
}

type MembershipConfig struct {
	// GracePeriod is added to a charge date before membership is considered
	// expired.
	GracePeriod time.Duration `envconfig:"MEMBERDESK_MEMBERSHIP_GRACE_PERIOD" default:"168h"`
}

type GoCardlessConfig struct {
	AccessToken   string `envconfig:"MEMBERDESK_GOCARDLESS_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"MEMBERDESK_GOCARDLESS_WEBHOOK_SECRET"`
	Sandbox       bool   `envconfig:"MEMBERDESK_GOCARDLESS_SANDBOX" default:"true"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"MEMBERDESK_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"MEMBERDESK_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"MEMBERDESK_STRIPE_ENV" default:"test"`
	// MembershipProduct is the Stripe product that subscription prices are
	// created under.
	MembershipProduct string `envconfig:"MEMBERDESK_STRIPE_MEMBERSHIP_PRODUCT"`
}

func (s StripeConfig) Environment() string {
	return s.Env
}

type JoinFlowConfig struct {
	// TTL bounds how long an unconsumed join flow token stays redeemable.
	TTL time.Duration `envconfig:"MEMBERDESK_JOIN_FLOW_TTL" default:"24h"`
}
