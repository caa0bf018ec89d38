package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Env            string
	ServerPort     string
	DatabaseType   string
	DatabasePath   string
	DatabaseURL    string
	MigrationsPath string

	// JWTSecret signs the per-session teacher tokens
	JWTSecret       string
	TeacherTokenTTL time.Duration

	// Participant approval polling fallback
	PollInterval  time.Duration
	ApprovalWait  time.Duration
	JoinRateLimit int

	LLMAPIURL string
	LLMAPIKey string
	LLMModel  string

	SESFromEmail string
	SESFromName  string
	AWSRegion    string
	AppBaseURL   string

	RollbarToken string

	ReconcileSchedule string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	return &Config{
		Env:               getEnv("ENV", "development"),
		ServerPort:        getEnv("PORT", "8080"),
		DatabaseType:      getEnv("DB_TYPE", "sqlite"),
		DatabasePath:      getEnv("DB_PATH", "./classpulse.db"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		MigrationsPath:    getEnv("MIGRATIONS_PATH", ""),
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		TeacherTokenTTL:   getEnvDuration("TEACHER_TOKEN_TTL", 12*time.Hour),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 5*time.Second),
		ApprovalWait:      getEnvDuration("APPROVAL_MAX_WAIT", 10*time.Minute),
		JoinRateLimit:     getEnvInt("JOIN_RATE_LIMIT", 20),
		LLMAPIURL:         getEnv("LLM_API_URL", "https://api.openai.com/v1/chat/completions"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "ClassPulse"),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		AppBaseURL:        getEnv("APP_BASE_URL", "http://localhost:8080"),
		RollbarToken:      getEnv("ROLLBAR_TOKEN", ""),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 1m"),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
