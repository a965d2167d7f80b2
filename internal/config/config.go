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
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Throttle     ThrottleConfig
	Verification VerificationConfig
	Messaging    MessagingConfig
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

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

type AuthConfig struct {
	// UserKeyRotationLifetime is how long a persisted user key is reused
	// before issuance generates a replacement.
	UserKeyRotationLifetime time.Duration
	// UserTokenMaxLifetime is how long a user token validates, measured
	// from its key's created_at.
	UserTokenMaxLifetime time.Duration
	CleanupInterval      time.Duration
}

type ThrottleConfig struct {
	// Window and MaxRequests bound consecutive verification-code requests
	// per network address and per contact entity alike.
	Window      time.Duration
	MaxRequests int
	// MinInterval is the minimum spacing between requests from the same
	// address on the same channel.
	MinInterval time.Duration
}

type VerificationConfig struct {
	CodeTTL time.Duration
}

type MessagingConfig struct {
	AWSRegion    string
	FromAddress  string
	SMSSenderID  string
	Organization string
	Disabled     bool
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
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			UserKeyRotationLifetime: getEnvAsDuration("USER_KEY_ROTATION_LIFETIME", 24*time.Hour),
			UserTokenMaxLifetime:    getEnvAsDuration("USER_TOKEN_MAX_LIFETIME", 24*time.Hour),
			CleanupInterval:         getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Throttle: ThrottleConfig{
			Window:      getEnvAsDuration("THROTTLE_WINDOW", 3*time.Hour),
			MaxRequests: getEnvAsInt("THROTTLE_MAX_REQUESTS", 6),
			MinInterval: getEnvAsDuration("THROTTLE_MIN_INTERVAL", 30*time.Second),
		},
		Verification: VerificationConfig{
			CodeTTL: getEnvAsDuration("VERIFICATION_CODE_TTL", 15*time.Minute),
		},
		Messaging: MessagingConfig{
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
			SMSSenderID:  getEnv("SMS_SENDER_ID", ""),
			Organization: getEnv("ORGANIZATION_NAME", "Gatehouse"),
			Disabled:     getEnvAsBool("MESSAGING_DISABLED", env != "production"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if !cfg.Messaging.Disabled && cfg.Messaging.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when messaging is enabled")
	}
	if cfg.Throttle.MaxRequests < 1 {
		return nil, fmt.Errorf("THROTTLE_MAX_REQUESTS must be at least 1")
	}
	if cfg.Throttle.MinInterval >= cfg.Throttle.Window {
		return nil, fmt.Errorf("THROTTLE_MIN_INTERVAL must be shorter than THROTTLE_WINDOW")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
