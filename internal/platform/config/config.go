package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	DataEncryptionKey  string
	FrontendDir        string
	Environment        string
	LogLevel           string
	SeedTenantName     string
	SeedAdminEmail     string
	SeedAdminPassword  string
	EmailFrom          string
	EmailEnabled       bool
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPUseTLS         bool
	RunMigrations      bool
	RunSeed            bool
	MigrationsDir      string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CycleCloseInterval time.Duration
	MetricsEnabled     bool
}

// Load reads the process environment, after merging an optional .env file. Variables already
// set in the environment win over the file.
func Load() Config {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("env file load failed", "file", envFile, "err", err)
	}

	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		DataEncryptionKey:  getEnv("DATA_ENCRYPTION_KEY", ""),
		FrontendDir:        getEnv("FRONTEND_DIR", "frontend/dist"),
		Environment:        getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SeedTenantName:     getEnv("SEED_TENANT_NAME", "Default Tenant"),
		SeedAdminEmail:     getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:  getEnv("SEED_ADMIN_PASSWORD", ""),
		EmailFrom:          getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:       getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:         getEnvBool("SMTP_USE_TLS", true),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:            getEnvBool("RUN_SEED", true),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "migrations"),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		CycleCloseInterval: getEnvDuration("CYCLE_CLOSE_INTERVAL", time.Hour),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
