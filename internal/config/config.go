package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName          = "WalletLedger"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultJWTTTL           = 15 * time.Minute
	defaultHoldTTL          = 15 * time.Minute
	defaultHoldSweep        = 30 * time.Second
	defaultProcessorTimeout = 5 * time.Second
	defaultReconcileEvery   = time.Minute
	defaultReconcileAfter   = 2 * time.Minute
	defaultRouting          = "round_robin"
	defaultProcessor        = "network_a"
	defaultKafkaTopic       = "wallet.transactions"
	defaultHouseUserID      = "house"
	defaultWithdrawalFee    = "2.50"
	defaultStartingBalance  = "0"
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   []string
	KafkaTopic     string
	JWTSecret      string
	JWTTTL         time.Duration
	WebhookSecret  string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	AutoMigrate    bool

	HoldTTL           time.Duration
	HoldSweepInterval time.Duration
	ProcessorTimeout  time.Duration
	ProcessorRouting  string
	ProcessorDefault  string
	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration

	StartingBalance   decimal.Decimal
	WithdrawalFlatFee decimal.Decimal
	HouseUserID       string
}

// Load reads configuration values from the environment (and an optional .env
// file) and populates a Config instance.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		ProcessorRouting: strings.ToLower(getEnv("PROCESSOR_ROUTING", defaultRouting)),
		ProcessorDefault: strings.ToLower(getEnv("PROCESSOR_DEFAULT", defaultProcessor)),
		HouseUserID:      getEnv("HOUSE_USER_ID", defaultHouseUserID),
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.JWTTTL, err = duration("JWT_TTL", defaultJWTTTL); err != nil {
		return Config{}, err
	}
	if cfg.HoldTTL, err = duration("HOLD_TTL", defaultHoldTTL); err != nil {
		return Config{}, err
	}
	if cfg.HoldSweepInterval, err = duration("HOLD_SWEEP_INTERVAL", defaultHoldSweep); err != nil {
		return Config{}, err
	}
	if cfg.ProcessorTimeout, err = duration("PROCESSOR_TIMEOUT", defaultProcessorTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileInterval, err = duration("RECONCILE_INTERVAL", defaultReconcileEvery); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileAfter, err = duration("RECONCILE_AFTER", defaultReconcileAfter); err != nil {
		return Config{}, err
	}
	if cfg.StartingBalance, err = amount("STARTING_BALANCE", defaultStartingBalance); err != nil {
		return Config{}, err
	}
	if cfg.WithdrawalFlatFee, err = amount("WITHDRAWAL_FLAT_FEE", defaultWithdrawalFee); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		if cfg.AutoMigrate, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid AUTO_MIGRATE: %w", err)
		}
	}

	switch cfg.ProcessorRouting {
	case "round_robin", "fixed":
	default:
		return Config{}, fmt.Errorf("invalid PROCESSOR_ROUTING %q", cfg.ProcessorRouting)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
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

// IsDev reports whether in-memory fallbacks are allowed.
func (c Config) IsDev() bool {
	switch c.AppEnv {
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

func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(durationKey, fallback)
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func amount(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
