// Package config provides configuration management for the wallet tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Pricing  PricingConfig
	Sync     SyncConfig
	Cache    CacheConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
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

// LedgerConfig holds ledger API (Helius) configuration
type LedgerConfig struct {
	APIKey    string
	BaseURL   string
	PageLimit int           // transactions per page request
	PageDelay time.Duration // pacing between page requests, independent of retry delays
	Timeout   time.Duration
}

// PricingConfig holds price source configuration
type PricingConfig struct {
	CoinGeckoBaseURL string
	BinanceBaseURL   string
	JupiterBaseURL   string
	// NativeMint is the token address of the chain's native asset
	NativeMint string
	// NativeCoinID is the CoinGecko coin id for the native asset
	NativeCoinID string
	// NativeTicker is the exchange ticker symbol for the native asset
	NativeTicker string
	// Stablecoins are token addresses treated as $1 anchors in swap pricing
	Stablecoins []string
	// HistoryDelay paces calls to the day-granularity history API
	HistoryDelay time.Duration
	// HistoryRetryAttempts and HistoryRetryDelay tune the more tolerant retry
	// policy used on the strictly rate-limited history endpoint
	HistoryRetryAttempts int
	HistoryRetryDelay    time.Duration
	CurrentPriceTTL      time.Duration
	BatchChunkSize       int
	Timeout              time.Duration
}

// SyncConfig holds sync pipeline configuration
type SyncConfig struct {
	// StalenessWindow is how long a processing sync may go without an update
	// before it is presumed crashed and reset
	StalenessWindow time.Duration
	// StartDate is the earliest transaction date ingested for any wallet
	StartDate time.Time
	// DustThreshold discards native transfers below this many units (fee/rent noise)
	DustThreshold float64
	Workers       int
	QueueSize     int
}

// CacheConfig holds the snapshot read cache configuration
type CacheConfig struct {
	SnapshotTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Known Solana token addresses
const (
	SolanaNativeMint = "So11111111111111111111111111111111111111112"
	SolanaUSDCMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	SolanaUSDTMint   = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	startDate, err := time.Parse("2006-01-02", getEnv("SYNC_START_DATE", "2026-01-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_START_DATE: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_tracker"),
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
		Ledger: LedgerConfig{
			APIKey:    getEnv("HELIUS_API_KEY", ""),
			BaseURL:   getEnv("HELIUS_BASE_URL", "https://api.helius.xyz/v0"),
			PageLimit: getEnvAsInt("LEDGER_PAGE_LIMIT", 100),
			PageDelay: getEnvAsDuration("LEDGER_PAGE_DELAY", 200*time.Millisecond),
			Timeout:   getEnvAsDuration("LEDGER_TIMEOUT", 10*time.Second),
		},
		Pricing: PricingConfig{
			CoinGeckoBaseURL:     getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			BinanceBaseURL:       getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
			JupiterBaseURL:       getEnv("JUPITER_BASE_URL", "https://api.jup.ag"),
			NativeMint:           getEnv("NATIVE_MINT", SolanaNativeMint),
			NativeCoinID:         getEnv("NATIVE_COIN_ID", "solana"),
			NativeTicker:         getEnv("NATIVE_TICKER", "SOLUSDT"),
			Stablecoins:          getEnvAsList("STABLECOIN_MINTS", []string{SolanaUSDCMint, SolanaUSDTMint}),
			HistoryDelay:         getEnvAsDuration("PRICE_HISTORY_DELAY", 3*time.Second),
			HistoryRetryAttempts: getEnvAsInt("PRICE_HISTORY_RETRY_ATTEMPTS", 3),
			HistoryRetryDelay:    getEnvAsDuration("PRICE_HISTORY_RETRY_DELAY", 2*time.Second),
			CurrentPriceTTL:      getEnvAsDuration("PRICE_CURRENT_TTL", time.Minute),
			BatchChunkSize:       getEnvAsInt("PRICE_BATCH_CHUNK_SIZE", 50),
			Timeout:              getEnvAsDuration("PRICE_TIMEOUT", 5*time.Second),
		},
		Sync: SyncConfig{
			StalenessWindow: getEnvAsDuration("SYNC_STALENESS_WINDOW", 2*time.Minute),
			StartDate:       startDate.UTC(),
			DustThreshold:   getEnvAsFloat("SYNC_DUST_THRESHOLD", 0.001),
			Workers:         getEnvAsInt("SYNC_WORKERS", 4),
			QueueSize:       getEnvAsInt("SYNC_QUEUE_SIZE", 64),
		},
		Cache: CacheConfig{
			SnapshotTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", 30*time.Second),
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

// getEnvAsList gets an environment variable as a comma-separated list
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
