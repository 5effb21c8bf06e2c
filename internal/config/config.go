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
)

// MinJWTSecretLength is the shortest accepted signing secret.
const MinJWTSecretLength = 16

type Config struct {
	// HTTP Server
	Port           string
	RateLimitRPS   float64
	RateLimitBurst int

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	MirrorBackend            string
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	MirrorResyncOnStart      bool

	// Auth and sessions
	JWTSecret       string
	TokenTTL        time.Duration
	SessionMaxUsers int
	SessionTTL      time.Duration

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Legacy snapshot directory used by moodctl
	LegacyDataDir string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/moodtracker.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moodtracker"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "mirror_entries"),

		MirrorBackend:            getEnv("MIRROR_BACKEND", "memory"),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Moods"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		MirrorResyncOnStart:      getEnvBool("MIRROR_RESYNC_ON_START", false),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTL:        getEnvDuration("TOKEN_TTL", 30*24*time.Hour),
		SessionMaxUsers: getEnvInt("SESSION_MAX_USERS", 1000),
		SessionTTL:      getEnvDuration("SESSION_TTL", 30*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
		LogJSON:  getEnvBool("LOG_JSON", false),

		LegacyDataDir: getEnv("LEGACY_DATA_DIR", "./data"),
	}

	return cfg
}

// Validate checks the settings every binary needs and returns all problems at once.
func (c *Config) Validate() error {
	return joinProblems("configuration validation failed", c.commonProblems())
}

// ValidateServer adds the HTTP server's auth, session and rate limit rules.
func (c *Config) ValidateServer() error {
	errors := c.commonProblems()

	if len(c.JWTSecret) < MinJWTSecretLength {
		errors = append(errors, fmt.Sprintf("JWT_SECRET must be at least %d characters", MinJWTSecretLength))
	}
	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	}
	if c.SessionMaxUsers < 1 {
		errors = append(errors, fmt.Sprintf("invalid session max users %d: must be at least 1", c.SessionMaxUsers))
	}
	if c.SessionTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 second", c.SessionTTL))
	}
	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	return joinProblems("configuration validation failed", errors)
}

func (c *Config) commonProblems() []string {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
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

	if !slices.Contains([]string{"", "debug", "info", "warn", "warning", "error"}, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}

	return errors
}

func joinProblems(prefix string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s:\n- %s", prefix, strings.Join(problems, "\n- "))
}

// ValidateWorker adds the mirror worker's broker and spreadsheet rules.
func (c *Config) ValidateWorker() error {
	errors := c.commonProblems()

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required by the mirror worker")
	}

	validMirrors := []string{"memory", "sheets"}
	if !slices.Contains(validMirrors, c.MirrorBackend) {
		errors = append(errors, fmt.Sprintf("invalid mirror backend '%s': must be one of %v", c.MirrorBackend, validMirrors))
	}

	if c.MirrorBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets mirror")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets mirror")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.MirrorResyncOnStart && c.DataBackend != "sqlite" {
		errors = append(errors, "MIRROR_RESYNC_ON_START requires the sqlite data backend")
	}

	return joinProblems("worker configuration validation failed", errors)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
