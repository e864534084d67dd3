package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	StorageModeS3    = "s3"
	StorageModeLocal = "local"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string
	Port        string
	GoEnv       string
	LogLevel    string
	Timezone    string

	TelegramBotToken      string
	TelegramBotUsername   string
	TelegramWebhookSecret string
	TelegramAPIURL        string
	AdminTelegramIDs      []int64

	SessionSecret string
	SessionMaxAge time.Duration
	PublicAppURL  string
	CORSOrigins   []string

	GeminiAPIKey     string
	GeminiModel      string
	GeminiAPIURL     string
	AnalysisTimeout  time.Duration
	MessagingTimeout time.Duration

	StorageMode        string
	UploadDir          string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSS3Endpoint      string
	AWSS3PublicURL     string

	SupportPhone string
	SupportEmail string
	SentryDSN    string
}

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	config := FromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv builds a Config from the process environment without loading .env files
// or validating the result.
func FromEnv() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		GoEnv:       getEnv("GO_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Timezone:    getEnv("TIMEZONE", "Europe/Moscow"),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBotUsername:   getEnv("TELEGRAM_BOT_USERNAME", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramAPIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		AdminTelegramIDs:      parseIDList(getEnv("ADMIN_TELEGRAM_IDS", "")),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionMaxAge: getDuration("SESSION_MAX_AGE", 7*24*time.Hour),
		PublicAppURL:  strings.TrimRight(getEnv("PUBLIC_APP_URL", "http://localhost:3000"), "/"),
		CORSOrigins:   parseList(getEnv("CORS_ORIGINS", "")),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		GeminiAPIURL:     strings.TrimRight(getEnv("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta"), "/"),
		AnalysisTimeout:  getDuration("ANALYSIS_TIMEOUT", 30*time.Second),
		MessagingTimeout: getDuration("MESSAGING_TIMEOUT", 10*time.Second),

		StorageMode:        strings.ToLower(getEnv("STORAGE_MODE", StorageModeLocal)),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSS3Endpoint:      getEnv("AWS_S3_ENDPOINT", ""),
		AWSS3PublicURL:     strings.TrimRight(getEnv("AWS_S3_PUBLIC_URL", ""), "/"),

		SupportPhone: getEnv("SUPPORT_PHONE", "+7 (XXX) XXX-XX-XX"),
		SupportEmail: getEnv("SUPPORT_EMAIL", "support@ticrm.com"),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
	}
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	switch c.StorageMode {
	case StorageModeLocal:
	case StorageModeS3:
		if c.AWSS3Bucket == "" {
			return fmt.Errorf("AWS_S3_BUCKET is required when STORAGE_MODE=s3")
		}
	default:
		return fmt.Errorf("STORAGE_MODE must be %q or %q, got %q", StorageModeS3, StorageModeLocal, c.StorageMode)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// Location returns the configured business timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdminTelegramID reports whether id is on the ADMIN_TELEGRAM_IDS allowlist.
func (c *Config) IsAdminTelegramID(id int64) bool {
	for _, adminID := range c.AdminTelegramIDs {
		if adminID == id {
			return true
		}
	}
	return false
}

// AllowedOrigins returns the CORS allowlist, defaulting to the public app URL.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSOrigins) > 0 {
		return c.CORSOrigins
	}
	return []string{c.PublicAppURL}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go duration strings ("30s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	seconds, err := cast.ToInt64E(value)
	if err != nil || seconds <= 0 {
		log.Printf("invalid %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range parseList(raw) {
		id, err := cast.ToInt64E(part)
		if err != nil {
			log.Printf("ignoring invalid admin telegram id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
