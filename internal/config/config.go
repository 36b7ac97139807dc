package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string // CIDR ranges allowed to set forwarding headers
}

// AuthConfig drives the adaptive authentication guard
type AuthConfig struct {
	SessionIdleTimeout time.Duration // Sliding session expiry
	CodeExpiry         time.Duration // Emailed verification code validity

	LockoutThreshold   int
	LockoutDuration    time.Duration
	AlertThreshold     int
	AlertCooldown      time.Duration
	BruteForceInterval time.Duration

	LoginRequestLimit  int
	LoginRequestWindow time.Duration
	VerifyLimit        int
	VerifyWindow       time.Duration
	ResendLimit        int
	ResendWindow       time.Duration

	TimingDelayBaseMs   int
	TimingDelayRandomMs int

	CleanupInterval time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	AdminEmail  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "aegis"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCommaSeparated(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 45*time.Minute),
			CodeExpiry:         getEnvAsDuration("CODE_EXPIRY", 10*time.Minute),

			LockoutThreshold:   getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			AlertThreshold:     getEnvAsInt("ALERT_THRESHOLD", 3),
			AlertCooldown:      getEnvAsDuration("ALERT_COOLDOWN", 1*time.Hour),
			BruteForceInterval: getEnvAsDuration("BRUTE_FORCE_INTERVAL", 5*time.Second),

			LoginRequestLimit:  getEnvAsInt("LOGIN_REQUEST_LIMIT", 5),
			LoginRequestWindow: getEnvAsDuration("LOGIN_REQUEST_WINDOW", 5*time.Minute),
			VerifyLimit:        getEnvAsInt("VERIFY_LIMIT", 3),
			VerifyWindow:       getEnvAsDuration("VERIFY_WINDOW", 3*time.Minute),
			ResendLimit:        getEnvAsInt("RESEND_LIMIT", 3),
			ResendWindow:       getEnvAsDuration("RESEND_WINDOW", 5*time.Minute),

			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),

			CleanupInterval: getEnvAsDuration("CODE_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
			AdminEmail:  getEnv("ADMIN_ALERT_EMAIL", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if env == "production" && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required in production")
	}

	if cfg.Auth.AlertThreshold > cfg.Auth.LockoutThreshold {
		return nil, fmt.Errorf("ALERT_THRESHOLD (%d) must not exceed LOCKOUT_THRESHOLD (%d)",
			cfg.Auth.AlertThreshold, cfg.Auth.LockoutThreshold)
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return parseCommaSeparated(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
