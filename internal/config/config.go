package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Inventory ledger retry configuration
	Ledger LedgerConfig

	// Release worker configuration
	Compensation CompensationConfig

	// Scheduled jobs configuration
	Jobs JobsConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Kafka event publishing
	Kafka KafkaConfig

	// Redis (webhook de-duplication)
	Redis RedisConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" or "memory"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// LedgerConfig bounds retries on departure writes
type LedgerConfig struct {
	MaxCASAttempts    int           // conditional write attempts before ConcurrencyExhausted
	BackendMaxRetries int           // store fault retries before ServiceUnavailable
	BackoffInitial    time.Duration // first backoff interval
	BackoffMax        time.Duration // cap on a single backoff interval
	BackoffMaxElapsed time.Duration // cap on total time spent retrying one call
}

// CompensationConfig holds release worker configuration
type CompensationConfig struct {
	Interval    time.Duration // how often the worker drains queued releases
	MaxAttempts int           // release delivery attempts before manual review
	ClaimLease  time.Duration // claims older than this are flagged for manual review
	BatchSize   int
}

// JobsConfig holds cron job configuration
type JobsConfig struct {
	Enabled            bool
	TripCompletionSpec string // cron spec with seconds
	PayoutSpec         string
	RefundWindowHours  int // hours after the trip before a payout may start
}

// PaymentConfig holds payment gateway configuration
type PaymentConfig struct {
	WebhookSecret    string  // HMAC secret shared with the gateway (SECRET)
	DefaultVendorCut float64 // vendor percentage when a plan does not set one
}

// KafkaConfig holds booking event publisher configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RedisConfig holds webhook de-duplication configuration
type RedisConfig struct {
	URL                string
	WebhookTTL         time.Duration // how long a processed delivery id is remembered
	WebhookInFlightTTL time.Duration // how long an unfinished delivery blocks redelivery
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			Issuer:            getEnv("JWT_ISSUER", "tripnest-booking"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Ledger: LedgerConfig{
			MaxCASAttempts:    getEnvAsInt("LEDGER_MAX_CAS_ATTEMPTS", 20),
			BackendMaxRetries: getEnvAsInt("LEDGER_BACKEND_MAX_RETRIES", 5),
			BackoffInitial:    time.Duration(getEnvAsInt("LEDGER_BACKOFF_INITIAL_MS", 50)) * time.Millisecond,
			BackoffMax:        time.Duration(getEnvAsInt("LEDGER_BACKOFF_MAX_MS", 2000)) * time.Millisecond,
			BackoffMaxElapsed: time.Duration(getEnvAsInt("LEDGER_BACKOFF_MAX_ELAPSED_MS", 10000)) * time.Millisecond,
		},
		Compensation: CompensationConfig{
			Interval:    time.Duration(getEnvAsInt("COMPENSATION_INTERVAL_SECONDS", 30)) * time.Second,
			MaxAttempts: getEnvAsInt("COMPENSATION_MAX_ATTEMPTS", 10),
			ClaimLease:  time.Duration(getEnvAsInt("COMPENSATION_CLAIM_LEASE_SECONDS", 300)) * time.Second,
			BatchSize:   getEnvAsInt("COMPENSATION_BATCH_SIZE", 100),
		},
		Jobs: JobsConfig{
			Enabled:            getEnvAsBool("JOBS_ENABLED", true),
			TripCompletionSpec: getEnv("JOBS_TRIP_COMPLETION_SPEC", "0 */15 * * * *"),
			PayoutSpec:         getEnv("JOBS_PAYOUT_SPEC", "0 0 * * * *"),
			RefundWindowHours:  getEnvAsInt("REFUND_WINDOW_HOURS", 48),
		},
		Payment: PaymentConfig{
			WebhookSecret:    getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			DefaultVendorCut: getEnvAsFloat("PAYMENT_DEFAULT_VENDOR_CUT", 85),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		Redis: RedisConfig{
			URL:                getEnv("REDIS_URL", ""),
			WebhookTTL:         time.Duration(getEnvAsInt("WEBHOOK_DEDUP_TTL_HOURS", 72)) * time.Hour,
			WebhookInFlightTTL: time.Duration(getEnvAsInt("WEBHOOK_INFLIGHT_TTL_SECONDS", 120)) * time.Second,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
		if c.Server.Environment == "production" {
			return fmt.Errorf("DATABASE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Ledger.MaxCASAttempts < 1 {
		return fmt.Errorf("LEDGER_MAX_CAS_ATTEMPTS must be at least 1")
	}

	if c.Compensation.MaxAttempts < 1 {
		return fmt.Errorf("COMPENSATION_MAX_ATTEMPTS must be at least 1")
	}

	if c.Payment.DefaultVendorCut <= 0 || c.Payment.DefaultVendorCut > 100 {
		return fmt.Errorf("PAYMENT_DEFAULT_VENDOR_CUT must be in (0, 100]")
	}

	// Unsigned webhooks are only accepted outside production
	if c.Server.Environment == "production" && c.Payment.WebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required in production")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
