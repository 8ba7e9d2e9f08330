package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/log"
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// Users preloaded by the memory backend
	MemorySeedPath string

	// AMQP; an empty URL disables event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets journal
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Recurring transactions
	RecurringEnabled     bool
	RecurringSchedule    string
	RecurringTimezone    string
	RecurringConcurrency int
	RecurringRunOnStart  bool
	SweepTimeout         time.Duration

	MutationTimeout time.Duration
	LogLevel        string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "4000"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		MemorySeedPath: getEnv("MEMORY_SEED_PATH", "./data/seed_users.csv"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Journal"),

		RecurringEnabled:     getEnvBool("RECURRING_ENABLED", true),
		RecurringSchedule:    getEnv("RECURRING_SCHEDULE", "0 0 1 * *"),
		RecurringTimezone:    getEnv("RECURRING_TIMEZONE", "Local"),
		RecurringConcurrency: getEnvInt("RECURRING_CONCURRENCY", 4),
		RecurringRunOnStart:  getEnvBool("RECURRING_RUN_ON_START", false),
		SweepTimeout:         getEnvDuration("SWEEP_TIMEOUT", 10*time.Minute),

		MutationTimeout: getEnvDuration("MUTATION_TIMEOUT", 5*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// Location resolves RecurringTimezone. "Local" and "" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.RecurringTimezone)
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecurringEnabled {
		if _, err := cron.ParseStandard(c.RecurringSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid recurring schedule '%s': %v", c.RecurringSchedule, err))
		}
	}
	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid recurring timezone '%s': %v", c.RecurringTimezone, err))
	}
	if c.RecurringConcurrency < 1 || c.RecurringConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid recurring concurrency %d: must be between 1 and 64", c.RecurringConcurrency))
	}
	if c.SweepTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sweep timeout %v: must be at least 1 second", c.SweepTimeout))
	}
	if c.MutationTimeout < 10*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid mutation timeout %v: must be at least 10ms", c.MutationTimeout))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateJournal checks the settings the journal worker needs on top of Validate.
func (c *Config) ValidateJournal() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required by the journal worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required by the journal worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
