// Package config provides environment configuration for the bot.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Telegram settings
	TelegramBotToken string
	AdminTelegramID  int64

	// Cal.com settings
	CalcomAPIKey      string
	CalcomAPIVersion  string
	CalcomBaseURL     string
	CalcomHTTPTimeout time.Duration

	// Event type mapping: meeting duration in minutes -> Cal.com event
	// type id. EventTypeIDDefault covers durations without a dedicated id.
	EventTypeIDDefault int
	EventTypeID30      int
	EventTypeID60      int

	// Database settings
	DatabaseURL string

	// Booking flow settings
	AvailabilityCacheTTL time.Duration
	BookingTimeout       time.Duration

	// Ops HTTP server
	OpsPort string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Telegram
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminTelegramID:  getInt64Env("ADMIN_TELEGRAM_ID", 0),

		// Cal.com
		CalcomAPIKey:      getEnv("CALCOM_API_KEY", ""),
		CalcomAPIVersion:  getEnv("CALCOM_API_VERSION", "2024-06-14"),
		CalcomBaseURL:     getEnv("CALCOM_BASE_URL", "https://api.cal.com/v2"),
		CalcomHTTPTimeout: getDurationEnv("CALCOM_HTTP_TIMEOUT", 30*time.Second),

		// Event types
		EventTypeIDDefault: getIntEnv("CALCOM_EVENT_TYPE_ID", 0),
		EventTypeID30:      getIntEnv("CALCOM_EVENT_TYPE_ID_30", 0),
		EventTypeID60:      getIntEnv("CALCOM_EVENT_TYPE_ID_60", 0),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Booking flow
		AvailabilityCacheTTL: getDurationEnv("AVAILABILITY_CACHE_TTL", 5*time.Minute),
		BookingTimeout:       getDurationEnv("BOOKING_TIMEOUT", 15*time.Minute),

		// Ops server
		OpsPort: getEnv("OPS_PORT", "8080"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.CalcomAPIKey == "" {
		return fmt.Errorf("CALCOM_API_KEY is required")
	}
	if c.AdminTelegramID == 0 {
		return fmt.Errorf("ADMIN_TELEGRAM_ID is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// EventTypeID resolves the Cal.com event type id for a meeting duration.
// A missing mapping is a deployment misconfiguration, not a user error.
func (c *Config) EventTypeID(durationMinutes int) (int, error) {
	switch durationMinutes {
	case 30:
		if c.EventTypeID30 != 0 {
			return c.EventTypeID30, nil
		}
	case 60:
		if c.EventTypeID60 != 0 {
			return c.EventTypeID60, nil
		}
	}
	if c.EventTypeIDDefault != 0 {
		return c.EventTypeIDDefault, nil
	}
	return 0, fmt.Errorf("no Cal.com event type configured for duration %d", durationMinutes)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
