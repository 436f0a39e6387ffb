package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogLevel string
	LogPath  string
	LogJSON  bool

	// Database
	DatabaseURL string

	// Document store: postgres | mongo | memory
	DocumentStore string
	MongoURL      string
	MongoDatabase string

	// Redis
	RedisURL string

	// Auth
	JWTSecret      string
	GoogleClientID string

	// Flashcard generation
	GeminiAPIKey             string
	GeminiModel              string
	GeminiConcurrentReqs     int
	GenerationEndpoint       string
	GenerationTimeoutSeconds int

	// Catalog
	ExamTopicsPath string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                     getEnvOrDefault("PORT", "8080"),
		Env:                      getEnvOrDefault("ENV", "development"),
		LogLevel:                 getEnvOrDefault("LOG_LEVEL", "info"),
		LogPath:                  getEnvOrDefault("LOG_PATH", ""),
		LogJSON:                  getEnvAsBoolOrDefault("LOG_JSON", false),
		DocumentStore:            strings.ToLower(getEnvOrDefault("DOCUMENT_STORE", "postgres")),
		DatabaseURL:              mustGetEnv("DATABASE_URL"),
		RedisURL:                 mustGetEnv("REDIS_URL"),
		JWTSecret:                mustGetEnv("JWT_SECRET"),
		GoogleClientID:           getEnvOrDefault("GOOGLE_CLIENT_ID", ""),
		GeminiAPIKey:             getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:              getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs:     getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		GenerationEndpoint:       getEnvOrDefault("GENERATION_ENDPOINT", ""),
		GenerationTimeoutSeconds: getEnvAsIntOrDefault("GENERATION_TIMEOUT_SECONDS", 30),
		ExamTopicsPath:           getEnvOrDefault("EXAM_TOPICS_PATH", ""),
		FrontendURL:              getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	if cfg.DocumentStore == "mongo" {
		cfg.MongoURL = mustGetEnv("MONGODB_URL")
		cfg.MongoDatabase = getEnvOrDefault("MONGODB_DATABASE", "flashcards")
	}

	if cfg.GenerationEndpoint == "" && cfg.GeminiAPIKey == "" {
		panic("either GENERATION_ENDPOINT or GEMINI_API_KEY must be set")
	}

	return cfg
}

// UsesRemoteGenerator reports whether flashcards come from an external
// generation endpoint instead of the in-process Gemini generator.
func (c *Config) UsesRemoteGenerator() bool {
	return c.GenerationEndpoint != ""
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
