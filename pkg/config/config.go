package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App      AppConfig
	JWT      JWTConfig
	Password PasswordConfig
	Redis    RedisConfig
	Payments PaymentsConfig
	Geo      GeoConfig
	Push     PushConfig
	Seed     SeedConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.JWT.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SWIFTDROP_APP_ENV" default:"development"`
	Port         string `envconfig:"SWIFTDROP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SWIFTDROP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SWIFTDROP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type JWTConfig struct {
	Secret            string `envconfig:"SWIFTDROP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SWIFTDROP_JWT_ISSUER" default:"swiftdrop"`
	ExpirationMinutes int    `envconfig:"SWIFTDROP_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// validate catches a secret that is set but blank, which the required tag
// accepts.
func (j JWTConfig) validate() error {
	if strings.TrimSpace(j.Secret) == "" {
		return fmt.Errorf("SWIFTDROP_JWT_SECRET must not be empty")
	}
	return nil
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SWIFTDROP_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SWIFTDROP_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SWIFTDROP_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SWIFTDROP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SWIFTDROP_ARGON_KEY_LEN" default:"32"`
}

// RedisConfig is optional: when URL is empty the session registry falls back
// to its in-process store.
type RedisConfig struct {
	URL          string        `envconfig:"SWIFTDROP_REDIS_URL"`
	Password     string        `envconfig:"SWIFTDROP_REDIS_PASSWORD"`
	DB           int           `envconfig:"SWIFTDROP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SWIFTDROP_REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"SWIFTDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SWIFTDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SWIFTDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type PaymentsConfig struct {
	CommissionRate      float64 `envconfig:"SWIFTDROP_COMMISSION_RATE" default:"0.25"`
	StripeSecretKey     string  `envconfig:"SWIFTDROP_STRIPE_SECRET_KEY"`
	StripeWebhookSecret string  `envconfig:"SWIFTDROP_STRIPE_WEBHOOK_SECRET"`
}

func (p PaymentsConfig) validate() error {
	if p.CommissionRate < 0 || p.CommissionRate >= 1 {
		return fmt.Errorf("commission rate must be in [0, 1), got %v", p.CommissionRate)
	}
	return nil
}

type GeoConfig struct {
	WatchInterval    time.Duration `envconfig:"SWIFTDROP_GEO_WATCH_INTERVAL" default:"5s"`
	MinDistanceM     float64       `envconfig:"SWIFTDROP_GEO_MIN_DISTANCE_M" default:"10"`
	SimSeedLatitude  float64       `envconfig:"SWIFTDROP_GEO_SIM_LAT" default:"40.7128"`
	SimSeedLongitude float64       `envconfig:"SWIFTDROP_GEO_SIM_LNG" default:"-74.0060"`
}

type PushConfig struct {
	Enabled bool `envconfig:"SWIFTDROP_PUSH_ENABLED" default:"true"`
}

type SeedConfig struct {
	Demo bool `envconfig:"SWIFTDROP_SEED_DEMO" default:"false"`
}
