package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// Apps Script web app
	RosterEndpoint string

	// Google Sheets API
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleSheetTimeZone      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Memory backend seed
	MemorySeedFile string

	// Outbound calls
	RemoteRateLimit float64
	RemoteTimeout   time.Duration

	// Payment journal (empty disables it)
	JournalDBPath string

	// AMQP (empty URL disables the publisher)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Logging
	LogLevel  string
	LogFormat string
}

var validBackends = []string{"appscript", "sheets", "memory"}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		DataBackend: getEnv("DATA_BACKEND", "appscript"),

		RosterEndpoint: strings.TrimSpace(getEnv("ROSTER_ENDPOINT", "")),

		GoogleSpreadsheetID:      strings.TrimSpace(getEnv("GOOGLE_SPREADSHEET_ID", "")),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Sheet1"),
		GoogleSheetTimeZone:      getEnv("GOOGLE_SHEET_TIMEZONE", "Asia/Kolkata"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		MemorySeedFile: getEnv("MEMORY_SEED_FILE", "./data/roster.yaml"),

		RemoteRateLimit: getEnvFloat("REMOTE_RATE_LIMIT", 5),
		RemoteTimeout:   getEnvDuration("REMOTE_TIMEOUT", 0),

		JournalDBPath: getEnv("JOURNAL_DB_PATH", ""),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "rette"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "payments"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid.
// A missing endpoint or spreadsheet id is not an error: the tracker reports
// setup required instead.
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "appscript" && c.RosterEndpoint != "" {
		if u, err := url.Parse(c.RosterEndpoint); err != nil {
			errors = append(errors, fmt.Sprintf("invalid roster endpoint '%s': %v", c.RosterEndpoint, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid roster endpoint scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}

	if c.DataBackend == "sheets" {
		if strings.TrimSpace(c.GoogleSheetName) == "" {
			errors = append(errors, "Google Sheet name cannot be empty when using sheets backend")
		}
		if _, err := time.LoadLocation(c.GoogleSheetTimeZone); err != nil {
			errors = append(errors, fmt.Sprintf("invalid sheet time zone '%s': %v", c.GoogleSheetTimeZone, err))
		}
		if c.GoogleServiceAccountFile != "" && c.GoogleServiceAccountJSON == "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.RemoteRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid remote rate limit %v: must not be negative", c.RemoteRateLimit))
	}
	if c.RemoteTimeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must not be negative", c.RemoteTimeout))
	}

	// Check the journal directory exists or can be created
	if c.JournalDBPath != "" {
		dir := filepath.Dir(c.JournalDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create journal database directory '%s': %v", dir, err))
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
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
