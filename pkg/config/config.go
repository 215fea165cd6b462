package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingAPIKey is returned by Validate when no Gemini credential is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")

type Config struct {
	GeminiAPIKey string

	QueryGeneratorModel string
	ReflectionModel     string
	AnswerModel         string

	MaxResearchLoops  int
	InitialQueryCount int

	SearchConcurrency int
	SearchMinInterval time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration

	Port      string
	LogLevel  string
	LogFormat string
}

// Load reads the process environment (and a .env file when present) once at startup.
func Load() *Config {
	_ = godotenv.Load()

	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GOOGLE_API_KEY", "")
	}

	return &Config{
		GeminiAPIKey:        apiKey,
		QueryGeneratorModel: getEnv("QUERY_GENERATOR_MODEL", "gemini-2.0-flash"),
		ReflectionModel:     getEnv("REFLECTION_MODEL", "gemini-2.5-flash"),
		AnswerModel:         getEnv("ANSWER_MODEL", "gemini-2.5-pro"),
		MaxResearchLoops:    getEnvAsInt("MAX_RESEARCH_LOOPS", 2),
		InitialQueryCount:   getEnvAsInt("INITIAL_SEARCH_QUERY_COUNT", 3),
		SearchConcurrency:   getEnvAsInt("SEARCH_CONCURRENCY", 3),
		SearchMinInterval:   getEnvAsDuration("SEARCH_MIN_INTERVAL", 0),
		RetryAttempts:       getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay:      getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
		Port:                getEnv("PORT", "8081"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}
}

// Default returns a configuration with every tunable at its default and no credential.
func Default() *Config {
	return &Config{
		QueryGeneratorModel: "gemini-2.0-flash",
		ReflectionModel:     "gemini-2.5-flash",
		AnswerModel:         "gemini-2.5-pro",
		MaxResearchLoops:    2,
		InitialQueryCount:   3,
		SearchConcurrency:   3,
		RetryAttempts:       3,
		RetryBaseDelay:      time.Second,
		Port:                "8081",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Validate reports configuration problems that must stop the process from starting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("1500ms") or a bare number of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
