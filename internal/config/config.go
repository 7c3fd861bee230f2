package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port         string
	Environment  string
	LogLevel     string
	WriteTimeout time.Duration

	// Database
	DatabaseURL string

	// JWT
	JWTSecret string

	// Storage
	StoragePath string

	// Background Workers
	WorkerCount int

	// CORS
	AllowedOrigins []string

	// Sentry
	SentryDSN string

	// Import
	ImportSyncThreshold int
	ImportBatchSize     int
	ImportTimeout       time.Duration
	MaxUploadMB         int64

	// Maintenance
	TempFileMaxAge   time.Duration
	DuplicateFileTTL time.Duration
	CleanupInterval  time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		LogLevel:            getEnv("LOG_LEVEL", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		StoragePath:         getEnv("STORAGE_PATH", "./storage"),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 5),
		AllowedOrigins:      getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		SentryDSN:           getEnv("SENTRY_DSN", ""),
		ImportSyncThreshold: getEnvAsInt("IMPORT_SYNC_THRESHOLD", 1000),
		ImportBatchSize:     getEnvAsInt("IMPORT_BATCH_SIZE", 100),
		ImportTimeout:       getEnvAsDuration("IMPORT_TIMEOUT", 5*time.Minute),
		MaxUploadMB:         int64(getEnvAsInt("MAX_UPLOAD_MB", 50)),
		TempFileMaxAge:      getEnvAsDuration("TEMP_FILE_MAX_AGE", time.Hour),
		DuplicateFileTTL:    getEnvAsDuration("DUPLICATE_FILE_TTL", time.Hour),
		CleanupInterval:     getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
	}

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	// Set default JWT secret for development
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	if cfg.ImportSyncThreshold < 1 || cfg.ImportBatchSize < 1 {
		return nil, fmt.Errorf("IMPORT_SYNC_THRESHOLD and IMPORT_BATCH_SIZE must be positive")
	}

	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}

	// The response for a slow import is written when ImportTimeout fires, so
	// the server must keep the connection open a little longer.
	cfg.WriteTimeout = cfg.ImportTimeout + 30*time.Second

	return cfg, nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads an environment variable as a Go duration ("90s", "2h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
