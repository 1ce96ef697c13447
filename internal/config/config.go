package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	DatabaseURL string

	// Redis (review queue)
	RedisURL string
	QueueKey string

	// Operator auth
	APIKey string

	// Claude API (evaluator)
	ClaudeAPIKey  string
	ClaudeBaseURL string
	ClaudeModel   string

	// Job boards
	RapidAPIKey  string
	AdzunaAppID  string
	AdzunaAppKey string

	// Review pipeline
	PollIntervalSeconds int
	PollBatch           int
	ReviewWorkers       int
	MaxRetries          int
	RetryBackoffSeconds int
	EvalTimeoutSeconds  int

	// Scrape scheduler
	ScrapeCheckMinutes int

	// Rate limiting
	RateLimitRPS int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Load .env file if it exists (development only)
	loadEnvFile(".env")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueKey:    getEnv("QUEUE_KEY", "jobradar:review_queue"),
		APIKey:      getEnv("API_KEY", ""),

		ClaudeAPIKey:  getEnv("CLAUDE_API_KEY", ""),
		ClaudeBaseURL: getEnv("CLAUDE_BASE_URL", "https://api.anthropic.com"),
		ClaudeModel:   getEnv("CLAUDE_MODEL", "claude-sonnet-4-5-20250929"),

		RapidAPIKey:  getEnv("RAPIDAPI_KEY", ""),
		AdzunaAppID:  getEnv("ADZUNA_APP_ID", ""),
		AdzunaAppKey: getEnv("ADZUNA_APP_KEY", ""),

		PollIntervalSeconds: getEnvInt("POLL_INTERVAL_SECONDS", 15),
		PollBatch:           getEnvInt("POLL_BATCH", 50),
		ReviewWorkers:       getEnvInt("REVIEW_WORKERS", 4),
		MaxRetries:          getEnvInt("MAX_RETRIES", 3),
		RetryBackoffSeconds: getEnvInt("RETRY_BACKOFF_SECONDS", 30),
		EvalTimeoutSeconds:  getEnvInt("EVAL_TIMEOUT_SECONDS", 120),

		ScrapeCheckMinutes: getEnvInt("SCRAPE_CHECK_MINUTES", 10),

		RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 10),
		AllowedOrigins: []string{
			"http://localhost:5173",
			"https://jobradar.app",
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Env == "production" && cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required in production")
	}

	return cfg, nil
}

// loadEnvFile reads a .env file and sets environment variables.
// Silently skips if the file doesn't exist (production uses real env vars).
func loadEnvFile(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on first = sign
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't overwrite existing env vars (real env takes precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}
