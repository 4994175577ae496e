package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration. It is resolved once at startup and
// passed by reference into the constructors that need it; core logic never
// reads the environment directly.
type Config struct {
	// TelegramToken authenticates the bot against the chat transport.
	TelegramToken string
	// SpreadsheetPath points at the xlsx workbook used as the remote store.
	SpreadsheetPath string
	// DatabaseURL selects the SQL store instead of the workbook when set.
	// A postgres:// DSN uses Postgres, anything else is treated as a
	// SQLite path.
	DatabaseURL string

	LogLevel string

	// RoundLimit caps how many due items go into one quiz round.
	RoundLimit int
	// InactivityWindow is how long a session may sit without a message
	// before it is forced to summarize.
	InactivityWindow time.Duration

	// ReminderStartHour and ReminderEndHour bound the daily window (UTC)
	// in which due-review reminders may be sent. A start after the end
	// wraps the window past midnight.
	ReminderStartHour int
	ReminderEndHour   int
}

// Load reads configuration from the environment, consulting a .env file if
// one is present. It fails when a required secret is missing so the process
// can refuse to start before any session logic runs.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments supply the environment.
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		SpreadsheetPath:   os.Getenv("SPREADSHEET_PATH"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		RoundLimit:        getEnvInt("ROUND_LIMIT", 10),
		InactivityWindow:  getEnvDuration("INACTIVITY_WINDOW", 10*time.Minute),
		ReminderStartHour: getEnvInt("REMINDER_START_HOUR", 8),
		ReminderEndHour:   getEnvInt("REMINDER_END_HOUR", 22),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	if cfg.SpreadsheetPath == "" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("neither SPREADSHEET_PATH nor DATABASE_URL is set")
	}
	if cfg.RoundLimit < 1 {
		return nil, fmt.Errorf("ROUND_LIMIT must be positive, got %d", cfg.RoundLimit)
	}
	if cfg.ReminderStartHour < 0 || cfg.ReminderStartHour > 23 ||
		cfg.ReminderEndHour < 0 || cfg.ReminderEndHour > 23 {
		return nil, fmt.Errorf("reminder hours must be within 0-23")
	}

	return cfg, nil
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
