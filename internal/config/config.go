// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir              string // Base directory for all databases (always absolute)
	BaseCurrency         domain.Currency
	DefaultProvider      domain.Provider
	FMPAPIKey            string
	AlphaVantageAPIKey   string
	MarketstackAPIKey    string
	YahooEnabled         bool
	LogLevel             string
	LogPretty            bool
	Port                 int
	DevMode              bool
	MaxConcurrency       int
	HTTPTimeout          time.Duration
	PriceRefreshSchedule string
	Backup               *BackupConfig
}

// BackupConfig holds offsite snapshot settings for S3-compatible storage
type BackupConfig struct {
	Enabled         bool
	Schedule        string
	Bucket          string
	Endpoint        string // Empty uses the AWS endpoint for Region
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Prefix          string
	RetentionDays   int // Zero keeps every backup
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PORTFOLIO_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	base, err := domain.NormalizeCurrency(getEnv("BASE_CURRENCY", "EUR"))
	if err != nil {
		return nil, fmt.Errorf("invalid BASE_CURRENCY: %w", err)
	}

	provider, err := domain.ParseProvider(getEnv("DEFAULT_PROVIDER", "fmp"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_PROVIDER: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		BaseCurrency:         base,
		DefaultProvider:      provider,
		FMPAPIKey:            getEnv("FMP_API_KEY", ""),
		AlphaVantageAPIKey:   getEnv("ALPHA_VANTAGE_API_KEY", ""),
		MarketstackAPIKey:    getEnv("MARKETSTACK_API_KEY", ""),
		YahooEnabled:         getEnvAsBool("YAHOO_ENABLED", true),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogPretty:            getEnvAsBool("LOG_PRETTY", true),
		Port:                 getEnvAsInt("PORT", 8080),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		MaxConcurrency:       getEnvAsInt("MAX_CONCURRENCY", 8),
		HTTPTimeout:          time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		PriceRefreshSchedule: getEnv("PRICE_REFRESH_SCHEDULE", "0 0 */1 * * *"),
		Backup:               loadBackupConfig(),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if _, err := domain.NormalizeCurrency(string(c.BaseCurrency)); err != nil {
		return fmt.Errorf("invalid base currency: %w", err)
	}
	if c.DefaultProvider == domain.ProviderUnknown {
		return errors.New("default provider is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %s", c.HTTPTimeout)
	}
	if c.Backup != nil && c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return errors.New("BACKUP_BUCKET is required when backups are enabled")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return errors.New("backup credentials are required when backups are enabled")
		}
	}
	return nil
}

// ProviderKeys returns the configured API key for each keyed provider
func (c *Config) ProviderKeys() map[domain.Provider]string {
	return map[domain.Provider]string{
		domain.ProviderFMP:          c.FMPAPIKey,
		domain.ProviderAlphaVantage: c.AlphaVantageAPIKey,
		domain.ProviderMarketstack:  c.MarketstackAPIKey,
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		Prefix:          getEnv("BACKUP_PREFIX", "portfolio"),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}
