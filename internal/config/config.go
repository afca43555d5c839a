// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment rail (primary, SAP-style)
	RailBaseURL      string
	RailTokenURL     string
	RailClientID     string
	RailClientSecret string

	// Secondary payment gateway
	GatewayBaseURL string
	GatewayAPIKey  string

	// Upstream collaborators
	ClaimsBaseURL    string // claims application API (claim + bank details lookups)
	BankDirectoryURL string // routing code directory

	// Timeouts and retry policy
	RailRequestTimeout  time.Duration // single payment submission
	RailBatchTimeout    time.Duration // batch submission (double the single timeout)
	RailMaxAttempts     int
	HealthProbeInterval time.Duration
	RetrySweepInterval  time.Duration

	// Notifications
	NotifyWebhookURL    string
	NotifyWebhookSecret string

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultRailRequestTimeout  = 30 * time.Second
	DefaultRailMaxAttempts     = 3
	DefaultHealthProbeInterval = 3 * time.Minute
	DefaultRetrySweepInterval  = 5 * time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	requestTimeout := getEnvDuration("RAIL_REQUEST_TIMEOUT", DefaultRailRequestTimeout)

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RailBaseURL:         os.Getenv("RAIL_BASE_URL"),
		RailTokenURL:        os.Getenv("RAIL_TOKEN_URL"),
		RailClientID:        os.Getenv("RAIL_CLIENT_ID"),
		RailClientSecret:    os.Getenv("RAIL_CLIENT_SECRET"),
		GatewayBaseURL:      os.Getenv("GATEWAY_BASE_URL"),
		GatewayAPIKey:       os.Getenv("GATEWAY_API_KEY"),
		ClaimsBaseURL:       os.Getenv("CLAIMS_BASE_URL"),
		BankDirectoryURL:    os.Getenv("BANK_DIRECTORY_URL"),
		RailRequestTimeout:  requestTimeout,
		RailBatchTimeout:    2 * requestTimeout,
		RailMaxAttempts:     int(getEnvInt64("RAIL_MAX_ATTEMPTS", DefaultRailMaxAttempts)),
		HealthProbeInterval: getEnvDuration("HEALTH_PROBE_INTERVAL", DefaultHealthProbeInterval),
		RetrySweepInterval:  getEnvDuration("RETRY_SWEEP_INTERVAL", DefaultRetrySweepInterval),
		NotifyWebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookSecret: os.Getenv("NOTIFY_WEBHOOK_SECRET"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RailBaseURL != "" {
		if c.RailTokenURL == "" {
			return fmt.Errorf("RAIL_TOKEN_URL is required when RAIL_BASE_URL is set")
		}
		if c.RailClientID == "" || c.RailClientSecret == "" {
			return fmt.Errorf("RAIL_CLIENT_ID and RAIL_CLIENT_SECRET are required when RAIL_BASE_URL is set")
		}
	}

	if c.GatewayBaseURL != "" && c.GatewayAPIKey == "" {
		return fmt.Errorf("GATEWAY_API_KEY is required when GATEWAY_BASE_URL is set")
	}

	if c.RailMaxAttempts <= 0 {
		return fmt.Errorf("RAIL_MAX_ATTEMPTS must be positive")
	}

	// Probing slower than 5m starves the alert window; faster than 2m
	// hammers the rail's health endpoint.
	if c.HealthProbeInterval < 2*time.Minute || c.HealthProbeInterval > 5*time.Minute {
		return fmt.Errorf("HEALTH_PROBE_INTERVAL must be between 2m and 5m")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
