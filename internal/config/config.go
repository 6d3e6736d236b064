package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	// Session storage
	SessionBackend string // "memory" or "redis"
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Long-term transcript persistence (optional)
	DatabaseURL string

	// Extraction pipeline
	CacheTTL       time.Duration
	ExtractTimeout time.Duration
	ExtractWorkers int

	// LLM provider selection
	LLMProvider     string // "mock", "openai", "anthropic" or "gemini"
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string

	// Calendar collaborator
	CalendarBackend       string // "mock" or "google"
	GoogleCredentialsFile string
	GoogleCalendarID      string
	BusinessOpenHour      int
	BusinessCloseHour     int
	DefaultDurationMins   int

	// Confirmation email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Admin surface
	AdminJWTSecret string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", time.Hour),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		CacheTTL:       getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		ExtractTimeout: getEnvAsDuration("EXTRACT_TIMEOUT", 2*time.Second),
		ExtractWorkers: getEnvAsInt("EXTRACT_WORKERS", 4),

		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "mock"))),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		CalendarBackend:       strings.ToLower(strings.TrimSpace(getEnv("CALENDAR_BACKEND", "mock"))),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", "primary"),
		BusinessOpenHour:      getEnvAsInt("BUSINESS_OPEN_HOUR", 9),
		BusinessCloseHour:     getEnvAsInt("BUSINESS_CLOSE_HOUR", 17),
		DefaultDurationMins:   getEnvAsInt("DEFAULT_DURATION_MINS", 60),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Booking Assistant"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
