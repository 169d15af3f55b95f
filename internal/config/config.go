package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	App struct {
		Port        string
		Debug       bool
		FrontendURL string
	}
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		DBName   string
		SSLMode  string
	}
	Redis struct {
		Host     string
		Port     string
		Password string
		DB       int
	}
	Auth struct {
		JWTSecret string
	}
	Import struct {
		// MaxPayloadBytes caps the direct JSON body path; MaxUploadBytes
		// caps the browser multipart path.
		MaxPayloadBytes int
		MaxUploadBytes  int
		ExportDir       string
	}
	RateLimit struct {
		RequestsPerSecond int
		Burst             int
		// Per-caller fixed window on the import endpoint.
		ImportsPerWindow int
		Window           time.Duration
		UseRedis         bool
	}
	Workers struct {
		HistoryEnabled  bool
		HistoryInterval time.Duration
	}
	Cache struct {
		TTL time.Duration
	}
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8080")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:3000")

	// DB
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnv("DB_NAME", "reportdesk")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	// Redis
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	// Auth
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")

	// Import
	cfg.Import.MaxPayloadBytes = getEnvAsInt("IMPORT_MAX_PAYLOAD_BYTES", 5<<20)
	cfg.Import.MaxUploadBytes = getEnvAsInt("IMPORT_MAX_UPLOAD_BYTES", 2<<20)
	cfg.Import.ExportDir = getEnv("EXPORT_DIR", "./data/exports")

	// Rate Limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 10)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 20)
	cfg.RateLimit.ImportsPerWindow = getEnvAsInt("RATE_LIMIT_IMPORTS_PER_WINDOW", 30)
	cfg.RateLimit.Window = getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute)
	cfg.RateLimit.UseRedis = getEnvAsBool("RATE_LIMIT_USE_REDIS", false)

	// Workers
	cfg.Workers.HistoryEnabled = getEnvAsBool("HISTORY_WORKER_ENABLED", true)
	cfg.Workers.HistoryInterval = getEnvAsDuration("HISTORY_WORKER_INTERVAL", 6*time.Hour)

	// Cache
	cfg.Cache.TTL = getEnvAsDuration("CACHE_TTL", 5*time.Minute)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
