package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the access assistant service
type Config struct {
	// Server configuration
	Port    string
	GinMode string
	DataDir string
	DevMode bool

	// Logging
	LogLevel  string
	LogFormat string

	// Model gateway configuration
	Provider       string
	GatewayTimeout time.Duration

	GoogleAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	ClaudeModel     string
	ClaudeBaseURL   string

	// Image relay configuration
	RelayURL          string
	RelayTimeout      time.Duration
	RelayMaxBytes     int64
	RelayAllowedHosts []string
	// Lets the proxy and direct image fetches reach loopback and private addresses
	RelayAllowPrivate bool

	// Alt-text advisor
	ImageMaxWidth int

	// Rate limiting (requests per second per client, burst size)
	RateLimit float64
	RateBurst int

	// Document store
	DocumentTTL  time.Duration
	MaxDocuments int

	// Months of usage statistics kept besides the current one
	UsageRetainMonths int
}

// LoadEnv loads .env.development first (for local development) and falls back to .env
func LoadEnv() {
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Debug("No .env file found, using environment variables")
		}
	}
}

// Load loads configuration from environment variables
func Load() *Config {
	LoadEnv()

	return &Config{
		Port:    getEnv("PORT", "8082"),
		GinMode: getEnv("GIN_MODE", "release"),
		DataDir: getEnv("DATA_DIR", "data"),
		DevMode: getBoolEnv("DEV_MODE", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		Provider:       strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GatewayTimeout: getDurationEnv("GATEWAY_TIMEOUT", 60*time.Second),

		GoogleAPIKey:  getEnv("GOOGLE_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ClaudeModel:     getEnv("CLAUDE_MODEL", "claude-sonnet-4-20250514"),
		ClaudeBaseURL:   getEnv("CLAUDE_BASE_URL", "https://api.anthropic.com"),

		RelayURL:          getEnv("RELAY_URL", ""),
		RelayTimeout:      getDurationEnv("RELAY_TIMEOUT", 15*time.Second),
		RelayMaxBytes:     int64(getIntEnv("RELAY_MAX_BYTES", 10<<20)),
		RelayAllowedHosts: getStringSliceEnv("RELAY_ALLOWED_HOSTS", ""),
		RelayAllowPrivate: getBoolEnv("RELAY_ALLOW_PRIVATE", false),

		ImageMaxWidth: getIntEnv("IMAGE_MAX_WIDTH", 1024),

		RateLimit: getFloatEnv("RATE_LIMIT", 2),
		RateBurst: getIntEnv("RATE_BURST", 5),

		DocumentTTL:  getDurationEnv("DOCUMENT_TTL", time.Hour),
		MaxDocuments: getIntEnv("MAX_DOCUMENTS", 1000),

		UsageRetainMonths: getIntEnv("USAGE_RETAIN_MONTHS", 12),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getStringSliceEnv gets a comma-separated environment variable as a trimmed slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
