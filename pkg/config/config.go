package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "PARTSDEPOT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PARTSDEPOT_DB_DSN"
	EnvDBHost = "PARTSDEPOT_DB_HOST"
	EnvDBUser = "PARTSDEPOT_DB_USER"
	EnvDBName = "PARTSDEPOT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Tap    TapConfig
	Orders OrdersConfig
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
	Env          string `envconfig:"PARTSDEPOT_APP_ENV" required:"true"`
	Port         string `envconfig:"PARTSDEPOT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PARTSDEPOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PARTSDEPOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PARTSDEPOT_DB_DSN"`
	Driver string `envconfig:"PARTSDEPOT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PARTSDEPOT_DB_HOST"`
	LegacyPort     int    `envconfig:"PARTSDEPOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PARTSDEPOT_DB_USER"`
	LegacyPassword string `envconfig:"PARTSDEPOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"PARTSDEPOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"PARTSDEPOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PARTSDEPOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PARTSDEPOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PARTSDEPOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PARTSDEPOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"PARTSDEPOT_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PARTSDEPOT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PARTSDEPOT_REDIS_ADDR"`
	Password     string        `envconfig:"PARTSDEPOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PARTSDEPOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PARTSDEPOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PARTSDEPOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PARTSDEPOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PARTSDEPOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PARTSDEPOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"PARTSDEPOT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"PARTSDEPOT_JWT_ISSUER" required:"true"`
}

// TapConfig carries the payment gateway credentials and endpoints.
type TapConfig struct {
	SecretKey      string        `envconfig:"PARTSDEPOT_TAP_SECRET_KEY"`
	WebhookSecret  string        `envconfig:"PARTSDEPOT_TAP_WEBHOOK_SECRET"`
	Env            string        `envconfig:"PARTSDEPOT_TAP_ENV" default:"test"`
	BaseURL        string        `envconfig:"PARTSDEPOT_TAP_BASE_URL" default:"https://api.tap.company/v2"`
	RequestTimeout time.Duration `envconfig:"PARTSDEPOT_TAP_REQUEST_TIMEOUT" default:"15s"`
	RedirectURL    string        `envconfig:"PARTSDEPOT_TAP_REDIRECT_URL"`
	WebhookURL     string        `envconfig:"PARTSDEPOT_TAP_WEBHOOK_URL"`

	WebhookDedupTTL time.Duration `envconfig:"PARTSDEPOT_TAP_WEBHOOK_DEDUP_TTL" default:"720h"`
}

// Environment returns the normalized Tap environment (test/live).
func (t TapConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(t.Env))
	if env == "" {
		return "test"
	}
	return env
}

type OrdersConfig struct {
	Currency string `envconfig:"PARTSDEPOT_ORDERS_CURRENCY" default:"SAR"`
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
