package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	LogLevel       string
	LogFormat      string
	Environment    string
	PrometheusPort string
	Port           string
	MigrationsPath string

	// WebAuthn relying party
	RPID      string
	RPName    string
	RPOrigins []string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	// FrontendURLs are the origins allowed by CORS.
	FrontendURLs []string

	ApprovalWindow        time.Duration
	PendingTTL            time.Duration
	SchedulerPollInterval time.Duration
	QuietHoursLocation    *time.Location
	DefaultSpendingLimit  decimal.Decimal
	MaxPurchaseAmount     decimal.Decimal
}

// Production reports whether sensitive values must be masked in logs.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		RedisURL:        os.Getenv("REDIS_URL"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "text"),
		Environment:     getEnvOrDefault("ENVIRONMENT", "development"),
		PrometheusPort:  getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		Port:            getEnvOrDefault("PORT", "8080"),
		MigrationsPath:  getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
		RPID:            getEnvOrDefault("RP_ID", "localhost"),
		RPName:          getEnvOrDefault("RP_NAME", "Vendor Payment Control"),
		RPOrigins:       splitList(getEnvOrDefault("RP_ORIGIN", "http://localhost:8080")),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnvOrDefault("VAPID_SUBJECT", "mailto:admin@localhost"),
		FrontendURLs:    splitList(os.Getenv("FRONTEND_URL")),
	}

	// Required environment variables
	if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret = os.Getenv("JWT_SECRET"); cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		return nil, fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	var err error
	if cfg.ApprovalWindow, err = durationEnv("APPROVAL_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PendingTTL, err = durationEnv("PENDING_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PendingTTL <= cfg.ApprovalWindow {
		return nil, fmt.Errorf("PENDING_TTL (%s) must be greater than APPROVAL_WINDOW (%s)", cfg.PendingTTL, cfg.ApprovalWindow)
	}
	if cfg.SchedulerPollInterval, err = durationEnv("SCHEDULER_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	tz := getEnvOrDefault("QUIET_HOURS_TZ", "UTC")
	if cfg.QuietHoursLocation, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid QUIET_HOURS_TZ %q: %w", tz, err)
	}

	if cfg.DefaultSpendingLimit, err = decimalEnv("DEFAULT_SPENDING_LIMIT", "50.00"); err != nil {
		return nil, err
	}
	if cfg.MaxPurchaseAmount, err = decimalEnv("MAX_PURCHASE_AMOUNT", "1000"); err != nil {
		return nil, err
	}
	if !cfg.MaxPurchaseAmount.IsPositive() || cfg.DefaultSpendingLimit.IsNegative() {
		return nil, fmt.Errorf("MAX_PURCHASE_AMOUNT must be positive and DEFAULT_SPENDING_LIMIT not negative")
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func decimalEnv(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnvOrDefault(key, defaultValue)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s must be a decimal number, got %q", key, raw)
	}
	return d, nil
}

// splitList parses a comma separated list, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
