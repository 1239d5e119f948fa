// Package config provides configuration management for the network tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upstream UpstreamConfig
	Poll     PollConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// UpstreamConfig holds configuration for the external data sources
type UpstreamConfig struct {
	DashboardURL     string        // Dashboard summary API base URL
	DashboardTimeout time.Duration // Per-request timeout for the dashboard API
	ChainRPCURL      string        // Node RPC base URL for blocks and validators
	ChainRPCTimeout  time.Duration // Per-request timeout for the chain RPC
	ChainRPCRateRPS  float64       // Request rate limit towards the chain RPC
}

// PollConfig holds poll job configuration
type PollConfig struct {
	BearerSecret      string        // Shared secret for the poll trigger endpoints
	BlockInterval     time.Duration // Block poll cadence for the standalone poller
	NodeInterval      time.Duration // Node poll cadence for the standalone poller
	ValidatorInterval time.Duration // Validator poll cadence for the standalone poller
	JobBudget         time.Duration // Wall-clock budget per job invocation
	BlockLookback     uint64        // Cold-start lookback from the chain head
	MaxBlocksPerPoll  uint64        // Upper bound on blocks fetched per cycle
	ResultCacheTTL    time.Duration // TTL for cached poll results
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "node_map"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "node_map"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Upstream: UpstreamConfig{
			DashboardURL:     getEnv("DASHBOARD_URL", "https://dashboard.mainnet.concordium.software"),
			DashboardTimeout: getEnvAsDuration("DASHBOARD_TIMEOUT", 10*time.Second),
			ChainRPCURL:      getEnv("CHAIN_RPC_URL", "http://localhost:20000"),
			ChainRPCTimeout:  getEnvAsDuration("CHAIN_RPC_TIMEOUT", 10*time.Second),
			ChainRPCRateRPS:  getEnvAsFloat("CHAIN_RPC_RATE_RPS", 20),
		},
		Poll: PollConfig{
			BearerSecret:      getEnv("POLL_BEARER_SECRET", ""),
			BlockInterval:     getEnvAsDuration("POLL_BLOCK_INTERVAL", 30*time.Second),
			NodeInterval:      getEnvAsDuration("POLL_NODE_INTERVAL", 60*time.Second),
			ValidatorInterval: getEnvAsDuration("POLL_VALIDATOR_INTERVAL", 5*time.Minute),
			JobBudget:         getEnvAsDuration("POLL_JOB_BUDGET", 45*time.Second),
			BlockLookback:     uint64(getEnvAsInt("POLL_BLOCK_LOOKBACK", 100)),
			MaxBlocksPerPoll:  uint64(getEnvAsInt("POLL_MAX_BLOCKS", 500)),
			ResultCacheTTL:    getEnvAsDuration("POLL_RESULT_CACHE_TTL", 90*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
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

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
