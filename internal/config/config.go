package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port         string
	RateLimitRPM int

	// Storage
	DataBackend  string
	DataDir      string
	SQLiteDBPath string
	PostgresDSN  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Generative model
	LLMProvider    string
	GeminiAPIKey   string
	OpenAIAPIKey   string
	LLMModel       string
	LLMBaseURL     string
	LLMTimeout     time.Duration
	LLMMaxAttempts int
	LLMRateLimit   int

	// Receipt pipeline
	SuggestCacheTTL time.Duration
	ReviewTTL       time.Duration

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validBackends  = []string{"memory", "json", "sqlite", "postgres"}
	validProviders = []string{"gemini", "openai", "none"}
	validLevels    = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"text", "json"}
)

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", 60),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/scontrini.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "scontrini"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "export_expenses"),

		LLMProvider:    getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		LLMMaxAttempts: getEnvInt("LLM_MAX_ATTEMPTS", 1),
		LLMRateLimit:   getEnvInt("LLM_RATE_LIMIT", 30),

		SuggestCacheTTL: getEnvDuration("SUGGEST_CACHE_TTL", 10*time.Minute),
		ReviewTTL:       getEnvDuration("REVIEW_TTL", 30*time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}

	if !oneOf(c.DataBackend, validBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "json":
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using json backend")
		}
	case "sqlite":
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
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
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

	if !oneOf(c.LLMProvider, validProviders) {
		errors = append(errors, fmt.Sprintf("invalid LLM provider '%s': must be one of %v", c.LLMProvider, validProviders))
	}
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			errors = append(errors, "GEMINI_API_KEY is required when using the gemini provider")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required when using the openai provider")
		}
		if c.LLMBaseURL != "" {
			if u, err := url.Parse(c.LLMBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				errors = append(errors, fmt.Sprintf("invalid LLM base URL '%s': must be an http(s) URL", c.LLMBaseURL))
			}
		}
	}
	if c.LLMTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at least 1 second", c.LLMTimeout))
	}
	if c.LLMMaxAttempts < 1 || c.LLMMaxAttempts > 5 {
		errors = append(errors, fmt.Sprintf("invalid LLM max attempts %d: must be between 1 and 5", c.LLMMaxAttempts))
	}
	if c.LLMRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid LLM rate limit %d: must be at least 1 request per minute", c.LLMRateLimit))
	}

	if c.SuggestCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid suggestion cache TTL %v: cannot be negative", c.SuggestCacheTTL))
	}
	if c.ReviewTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid review TTL %v: must be at least 1 minute", c.ReviewTTL))
	}

	if !oneOf(c.LogLevel, validLevels) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	if !oneOf(c.LogFormat, validFormats) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateExport checks the settings the export worker needs on top of
// Validate.
func (c *Config) ValidateExport() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the export worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the export worker")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "GOOGLE_SHEET_NAME cannot be empty")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
