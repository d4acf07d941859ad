package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppEnv               = "development"
	defaultPort                 = "8080"
	defaultLogLevel             = "info"
	defaultShutdownDelay        = 10 * time.Second
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultRequestTimeout       = 5 * time.Second
	defaultCompensationAttempts = 3
	defaultCompensationBackoff  = 100 * time.Millisecond
	defaultCompensationTimeout  = 15 * time.Second
	defaultBreakerFailures      = 5
	defaultBreakerOpenFor       = 30 * time.Second
	defaultRateLimitPerMinute   = 60
	defaultReconcileSchedule    = "@every 5m"
	defaultAuditPath            = "/ledger-entries"
	defaultAuditExchange        = "ledger_events"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	WalletServiceURL string
	AuditServiceURL  string
	AuditPath        string
	AuditAMQPURL     string
	AuditExchange    string

	RequestTimeout       time.Duration
	CompensationAttempts int
	CompensationBackoff  time.Duration
	CompensationTimeout  time.Duration
	BreakerFailures      int
	BreakerOpenFor       time.Duration

	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
	RateLimitPerMinute int
	ReconcileSchedule  string
	OperatorOwnerIDs   []int64
}

// Load reads configuration values from the environment, after a .env file in
// the working directory if one exists. service names the binary and is the
// default APP_NAME.
func Load(service string) (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getEnv("APP_NAME", service),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		WalletServiceURL:  os.Getenv("WALLET_SERVICE_URL"),
		AuditServiceURL:   os.Getenv("AUDIT_SERVICE_URL"),
		AuditPath:         getEnv("AUDIT_PATH", defaultAuditPath),
		AuditAMQPURL:      os.Getenv("AUDIT_AMQP_URL"),
		AuditExchange:     getEnv("AUDIT_EXCHANGE", defaultAuditExchange),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", defaultReconcileSchedule),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CompensationBackoff, err = durationEnv("COMPENSATION_BACKOFF", defaultCompensationBackoff); err != nil {
		return Config{}, err
	}
	if cfg.CompensationTimeout, err = durationEnv("COMPENSATION_TIMEOUT", defaultCompensationTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BreakerOpenFor, err = durationEnv("BREAKER_OPEN_FOR", defaultBreakerOpenFor); err != nil {
		return Config{}, err
	}
	if cfg.CompensationAttempts, err = intEnv("COMPENSATION_ATTEMPTS", defaultCompensationAttempts); err != nil {
		return Config{}, err
	}
	if cfg.BreakerFailures, err = intEnv("BREAKER_FAILURES", defaultBreakerFailures); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", defaultRateLimitPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.OperatorOwnerIDs, err = idsEnv("OPERATOR_OWNER_IDS"); err != nil {
		return Config{}, err
	}

	if cfg.CompensationAttempts < 1 {
		return Config{}, fmt.Errorf("COMPENSATION_ATTEMPTS must be at least 1")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether the service may run without Postgres and Redis.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads key<_SECONDS> as whole seconds, else key as a Go duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func idsEnv(key string) ([]int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
