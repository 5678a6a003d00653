// Package config loads pool and connection configuration from the
// environment, in the teacher's getEnv/getEnvAsInt/getEnvAsBool style.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the process-level configuration for a pgpool-backed
// service: the pool's tuning knobs, the database endpoint, which secret
// store (if any) supplies the password, and logging.
type Config struct {
	Pool     PoolConfig
	Database DatabaseConfig
	Secrets  SecretsConfig
	Logger   LoggerConfig
}

// PoolConfig mirrors the subset of pool.Options that is reasonable to
// drive from the environment; the rest (event handlers, custom named-
// parameter rules, a Dial factory) are wired in code.
type PoolConfig struct {
	PoolSize                                 int
	IdleTimeoutMillis                        int
	WaitForAvailableConnectionTimeoutMillis  int
	ConnectionTimeoutMillis                  int
	RetryConnectionMaxRetries                int
	RetryConnectionWaitMillis                int
	DatabaseStartupTimeoutMillis             int
	ReadOnlyTransactionReconnectTimeoutMillis int
	ConnectionReconnectTimeoutMillis         int
	QueryTimeoutMillis                       int
	StatementTimeoutMillis                   int
}

// DatabaseConfig holds the PostgreSQL endpoint. Password is left empty
// when Secrets.Provider is set; the caller resolves it separately and
// folds it into the DSN before constructing the dial Factory.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// SecretsConfig selects which secret store (if any) supplies the
// database password, and the path to look it up at.
type SecretsConfig struct {
	Provider string // "", "aws", or "vault"
	Path     string

	AWSRegion string

	VaultAddress string
	VaultToken   string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Pool: PoolConfig{
			PoolSize:                                 getEnvAsInt("PGPOOL_SIZE", 10),
			IdleTimeoutMillis:                         getEnvAsInt("PGPOOL_IDLE_TIMEOUT_MS", 10_000),
			WaitForAvailableConnectionTimeoutMillis:   getEnvAsInt("PGPOOL_WAIT_TIMEOUT_MS", 90_000),
			ConnectionTimeoutMillis:                   getEnvAsInt("PGPOOL_CONNECT_TIMEOUT_MS", 5_000),
			RetryConnectionMaxRetries:                 getEnvAsInt("PGPOOL_RETRY_MAX", 5),
			RetryConnectionWaitMillis:                 getEnvAsInt("PGPOOL_RETRY_WAIT_MS", 100),
			DatabaseStartupTimeoutMillis:               getEnvAsInt("PGPOOL_STARTUP_TIMEOUT_MS", 90_000),
			ReadOnlyTransactionReconnectTimeoutMillis:  getEnvAsInt("PGPOOL_READONLY_RETRY_TIMEOUT_MS", 90_000),
			ConnectionReconnectTimeoutMillis:           getEnvAsInt("PGPOOL_CONN_RETRY_TIMEOUT_MS", 90_000),
			QueryTimeoutMillis:                         getEnvAsInt("PGPOOL_QUERY_TIMEOUT_MS", 0),
			StatementTimeoutMillis:                     getEnvAsInt("PGPOOL_STATEMENT_TIMEOUT_MS", 0),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PGPOOL_DB_HOST", "localhost"),
			Port:     getEnvAsInt("PGPOOL_DB_PORT", 5432),
			User:     getEnv("PGPOOL_DB_USER", "postgres"),
			Password: getEnv("PGPOOL_DB_PASSWORD", ""),
			Database: getEnv("PGPOOL_DB_NAME", "postgres"),
			SSLMode:  getEnv("PGPOOL_DB_SSLMODE", "disable"),
		},
		Secrets: SecretsConfig{
			Provider:     getEnv("PGPOOL_SECRETS_PROVIDER", ""),
			Path:         getEnv("PGPOOL_SECRETS_PATH", ""),
			AWSRegion:    getEnv("PGPOOL_AWS_REGION", "us-east-1"),
			VaultAddress: getEnv("PGPOOL_VAULT_ADDR", ""),
			VaultToken:   getEnv("PGPOOL_VAULT_TOKEN", ""),
		},
		Logger: LoggerConfig{
			Level:       getEnv("PGPOOL_LOG_LEVEL", "info"),
			Development: getEnvAsBool("PGPOOL_LOG_DEV", false),
		},
	}

	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("PGPOOL_DB_HOST is required")
	}
	if cfg.Secrets.Provider == "" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("PGPOOL_DB_PASSWORD is required when PGPOOL_SECRETS_PROVIDER is unset")
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string built from the database
// config and the given password (the caller substitutes the value
// resolved from AWS/Vault when Secrets.Provider is set).
func (c *DatabaseConfig) DSN(password string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, password, c.Database, c.SSLMode,
	)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
