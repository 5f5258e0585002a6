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
)

type Config struct {
	// Database
	SQLiteDBPath string

	// AMQP. An empty URL disables event publishing; events are then only
	// logged.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Billing scheduler
	BillingSchedule string
	SweepOnStart    bool
	ShutdownTimeout time.Duration

	// Duplicate-charge windows
	ChargeRecencyWindow time.Duration
	DuplicateLookback   time.Duration
	UpcomingWindowDays  int

	// Backend selection
	DataBackend string
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finanzas.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finanzas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "billing_events"),

		BillingSchedule: getEnv("BILLING_SCHEDULE", "@hourly"),
		SweepOnStart:    getEnvBool("BILLING_SWEEP_ON_START", true),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		ChargeRecencyWindow: getEnvDuration("CHARGE_RECENCY_WINDOW", 30*time.Second),
		DuplicateLookback:   getEnvDuration("DUPLICATE_LOOKBACK", 10*time.Minute),
		UpcomingWindowDays:  getEnvInt("UPCOMING_WINDOW_DAYS", 2),

		DataBackend: getEnv("DATA_BACKEND", "sqlite"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
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

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
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

	// Validate AMQP URL if provided
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

	// Validate billing schedule as a standard cron spec
	if _, err := cron.ParseStandard(c.BillingSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid billing schedule '%s': %v", c.BillingSchedule, err))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	} else if c.ShutdownTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at most 1 minute", c.ShutdownTimeout))
	}

	if c.ChargeRecencyWindow < time.Second {
		errors = append(errors, fmt.Sprintf("invalid charge recency window %v: must be at least 1 second", c.ChargeRecencyWindow))
	}
	if c.DuplicateLookback < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid duplicate lookback %v: must be at least 1 minute", c.DuplicateLookback))
	}
	if c.UpcomingWindowDays < 0 || c.UpcomingWindowDays > 30 {
		errors = append(errors, fmt.Sprintf("invalid upcoming window %d: must be between 0 and 30 days", c.UpcomingWindowDays))
	}

	// Return combined errors
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
