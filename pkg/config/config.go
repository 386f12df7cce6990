// Package config loads service configuration from environment variables,
// with typed defaults and a Validate step that collects every problem
// instead of failing on the first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the identity service.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string

	// Database Configuration (URL-based, used by pkg/database.Client)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// Request authentication (pkg/requestauth)
	RequestAuthSkewSeconds int
	RequestAuthMaxBodyBytes int64
	NonceStoreBackend       string // "postgres" or "leveldb"
	NonceStorePath          string // path for the leveldb-backed nonce store

	// Backup envelope defaults (pkg/backup)
	BackupArgon2MCost uint32
	BackupArgon2TCost uint32
	BackupArgon2PCost uint32

	// Device limits (pkg/identity)
	MaxActiveDevicesPerAccount int

	// Recovery (pkg/identity)
	MaxRecoveryHelpers int

	// Session / login bootstrap (pkg/session)
	SessionJWTSecret    string
	SessionTTL          time.Duration
	GoogleOAuthClientID string
	GoogleOAuthSecret   string
	GoogleOAuthRedirect string
	FirebaseProjectID   string
	FirebaseCredsFile   string

	// Firestore login-audit trail (pkg/session)
	FirestoreEnabled bool

	LogLevel string
}

// Load reads configuration from environment variables. Call Validate()
// afterward before starting the service in production.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		DatabaseRequired:    getEnvBool("DATABASE_REQUIRED", true),

		RequestAuthSkewSeconds:  getEnvInt("REQUEST_AUTH_SKEW_SECONDS", 300),
		RequestAuthMaxBodyBytes: int64(getEnvInt("REQUEST_AUTH_MAX_BODY_BYTES", 64*1024)),
		NonceStoreBackend:       getEnv("NONCE_STORE_BACKEND", "postgres"),
		NonceStorePath:          getEnv("NONCE_STORE_PATH", "./data/nonces"),

		BackupArgon2MCost: uint32(getEnvInt("BACKUP_ARGON2_M_COST", 262144)),
		BackupArgon2TCost: uint32(getEnvInt("BACKUP_ARGON2_T_COST", 4)),
		BackupArgon2PCost: uint32(getEnvInt("BACKUP_ARGON2_P_COST", 1)),

		MaxActiveDevicesPerAccount: getEnvInt("MAX_ACTIVE_DEVICES_PER_ACCOUNT", 10),
		MaxRecoveryHelpers:         getEnvInt("MAX_RECOVERY_HELPERS", 10),

		SessionJWTSecret:    getEnv("SESSION_JWT_SECRET", ""),
		SessionTTL:          getEnvDuration("SESSION_TTL", 15*time.Minute),
		GoogleOAuthClientID: getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
		GoogleOAuthSecret:   getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
		GoogleOAuthRedirect: getEnv("GOOGLE_OAUTH_REDIRECT_URL", ""),
		FirebaseProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredsFile:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		FirestoreEnabled: getEnvBool("FIRESTORE_ENABLED", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if configFile := getEnv("CONFIG_FILE", ""); configFile != "" {
		if err := applyFileOverrides(cfg, configFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and secure.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required but not set")
	} else if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		errs = append(errs, "DATABASE_URL must use sslmode=require for production security")
	}

	if c.SessionJWTSecret == "" {
		errs = append(errs, "SESSION_JWT_SECRET is required but not set")
	} else if len(c.SessionJWTSecret) < 32 {
		errs = append(errs, "SESSION_JWT_SECRET must be at least 32 characters")
	}

	if c.MaxActiveDevicesPerAccount <= 0 {
		errs = append(errs, "MAX_ACTIVE_DEVICES_PER_ACCOUNT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for local
// development. Do not use this in production.
func (c *Config) ValidateForDevelopment() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
