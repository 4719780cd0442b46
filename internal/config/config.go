package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthJWTSecret string

	GeminiAPIKey   string
	GeminiModelID  string
	NLUTimeout     time.Duration
	NLUMaxTokens   int
	NLUTemperature float64

	SchedulingBaseURL     string
	SchedulingAPIKey      string
	SchedulingTimeout     time.Duration
	SchedulingMaxRetries  int
	SchedulingRetryDelay  time.Duration
	DirectoryBaseURL      string
	DirectoryAPIKey       string
	DirectoryTimeout      time.Duration
	DirectoryCacheTTL     time.Duration
	ConversationLockTTL   time.Duration
	ConversationLockRetry time.Duration

	RealtimePublishTimeout time.Duration

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		NLUTimeout:     getEnvAsDuration("NLU_TIMEOUT", 30*time.Second),
		NLUMaxTokens:   getEnvAsInt("NLU_MAX_TOKENS", 1024),
		NLUTemperature: getEnvAsFloat("NLU_TEMPERATURE", 0.4),

		SchedulingBaseURL:     getEnv("SCHEDULING_BASE_URL", ""),
		SchedulingAPIKey:      getEnv("SCHEDULING_API_KEY", ""),
		SchedulingTimeout:     getEnvAsDuration("SCHEDULING_TIMEOUT", 10*time.Second),
		SchedulingMaxRetries:  getEnvAsInt("SCHEDULING_MAX_RETRIES", 2),
		SchedulingRetryDelay:  getEnvAsDuration("SCHEDULING_RETRY_DELAY", 500*time.Millisecond),
		DirectoryBaseURL:      getEnv("DIRECTORY_BASE_URL", ""),
		DirectoryAPIKey:       getEnv("DIRECTORY_API_KEY", ""),
		DirectoryTimeout:      getEnvAsDuration("DIRECTORY_TIMEOUT", 5*time.Second),
		DirectoryCacheTTL:     getEnvAsDuration("DIRECTORY_CACHE_TTL", time.Minute),
		ConversationLockTTL:   getEnvAsDuration("CONVERSATION_LOCK_TTL", 45*time.Second),
		ConversationLockRetry: getEnvAsDuration("CONVERSATION_LOCK_RETRY", 100*time.Millisecond),

		RealtimePublishTimeout: getEnvAsDuration("REALTIME_PUBLISH_TIMEOUT", 2*time.Second),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Bookline"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
