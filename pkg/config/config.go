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
	JWT          JWTConfig
	Handoff      HandoffConfig
	Orders       OrdersConfig
	Assignment   AssignmentConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"LOCALKART_APP_ENV" required:"true"`
	Port         string `envconfig:"LOCALKART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOCALKART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOCALKART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOCALKART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOCALKART_DB_DSN"`
	Driver string `envconfig:"LOCALKART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOCALKART_DB_HOST"`
	LegacyPort     int    `envconfig:"LOCALKART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOCALKART_DB_USER"`
	LegacyPassword string `envconfig:"LOCALKART_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOCALKART_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOCALKART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOCALKART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOCALKART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOCALKART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOCALKART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOCALKART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOCALKART_REDIS_ADDR"`
	Password     string        `envconfig:"LOCALKART_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOCALKART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOCALKART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOCALKART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOCALKART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOCALKART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOCALKART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOCALKART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOCALKART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LOCALKART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// HandoffConfig tunes OTP issuance and verification.
type HandoffConfig struct {
	CodeLength  int           `envconfig:"LOCALKART_HANDOFF_CODE_LENGTH" default:"6"`
	TTL         time.Duration `envconfig:"LOCALKART_HANDOFF_TTL" default:"10m"`
	MaxAttempts int           `envconfig:"LOCALKART_HANDOFF_MAX_ATTEMPTS" default:"5"`
}

// OrdersConfig tunes order lifecycle housekeeping.
type OrdersConfig struct {
	// PendingMaxAge is how long an order may sit in pending before the cron
	// worker cancels it and restores stock.
	PendingMaxAge time.Duration `envconfig:"LOCALKART_ORDERS_PENDING_MAX_AGE" default:"72h"`
}

// AssignmentConfig tunes delivery agent selection.
type AssignmentConfig struct {
	// StaleLocationAge marks an agent location as too old to trust for
	// read-side displays; assignment does not depend on it.
	StaleLocationAge time.Duration `envconfig:"LOCALKART_ASSIGNMENT_STALE_LOCATION_AGE" default:"30m"`
}

type RateLimitConfig struct {
	HandoffVerifyWindow time.Duration `envconfig:"LOCALKART_RATE_LIMIT_HANDOFF_WINDOW" default:"1m"`
	HandoffVerifyLimit  int           `envconfig:"LOCALKART_RATE_LIMIT_HANDOFF_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LOCALKART_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"LOCALKART_CRON_LOCK_TTL" default:"55m"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"LOCALKART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"LOCALKART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"LOCALKART_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Channel        string `envconfig:"LOCALKART_OUTBOX_CHANNEL" default:"lk.order-events"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LOCALKART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LOCALKART_AUTO_MIGRATE" default:"false"`
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
