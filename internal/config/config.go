package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Provider   ProviderConfig
	Settlement SettlementConfig
	Anomaly    AnomalyConfig
	Secrets    SecretsConfig
	Logger     LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int

	// CronSecret authenticates external scheduler requests to the
	// cron endpoints
	CronSecret string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// ProviderConfig holds split-payment provider configuration
type ProviderConfig struct {
	BaseURL    string
	MerchantID string
	APIKey     string // Resolved through the secret manager when APIKeyPath is set
	APIKeyPath string
	Timeout    int // Request timeout in seconds (default: 30)
	MaxRetries int
}

// SettlementConfig holds the settlement bounds and cadence
type SettlementConfig struct {
	// Timezone is the business timezone for T+1 settle dates and the
	// daily cap window (e.g. "Asia/Shanghai")
	Timezone string

	// DailyCapMinorUnits caps the per-day settlement total
	DailyCapMinorUnits int64

	// MaxShareRate caps a settlement at this share of its order amount
	MaxShareRate float64

	// DefaultAgentRate is the commission rate assigned on enrollment
	DefaultAgentRate float64

	// MaxRetries is the per-attempt poll budget
	MaxRetries int

	// MaxAttemptAgeHours force-fails attempts stuck longer than this
	MaxAttemptAgeHours int

	// DailyHour is the local hour of the daily settlement sweep
	DailyHour int

	// ReconcileIntervalMinutes is the gap between reconcile passes
	ReconcileIntervalMinutes int

	// AnomalyIntervalHours is the gap between anomaly sweeps
	AnomalyIntervalHours int
}

// AnomalyConfig holds the auto-suspension thresholds
type AnomalyConfig struct {
	HourlyRecordThreshold int
	DailyAmountThreshold  float64
	MinInvitedUsers       int
	MinPaidUsers          int
	MaxConversionRatio    float64
}

// SecretsConfig selects and configures the secret manager backend
type SecretsConfig struct {
	Backend   string // "aws" or "local"
	AWSRegion string
	LocalPath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
			CronSecret:  getEnv("CRON_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "commission_service"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Provider: ProviderConfig{
			BaseURL:    getEnv("PROVIDER_BASE_URL", "https://api.sandbox.wxpay.example.com"),
			MerchantID: getEnv("PROVIDER_MERCHANT_ID", ""),
			APIKey:     getEnv("PROVIDER_API_KEY", ""),
			APIKeyPath: getEnv("PROVIDER_API_KEY_PATH", ""),
			Timeout:    getEnvAsInt("PROVIDER_TIMEOUT", 30),
			MaxRetries: getEnvAsInt("PROVIDER_MAX_RETRIES", 3),
		},
		Settlement: SettlementConfig{
			Timezone:                 getEnv("SETTLEMENT_TIMEZONE", "Asia/Shanghai"),
			DailyCapMinorUnits:       getEnvAsInt64("SETTLEMENT_DAILY_CAP_MINOR_UNITS", 100000000),
			MaxShareRate:             getEnvAsFloat("SETTLEMENT_MAX_SHARE_RATE", 0.30),
			DefaultAgentRate:         getEnvAsFloat("AGENT_DEFAULT_RATE", 0.30),
			MaxRetries:               getEnvAsInt("SETTLEMENT_MAX_RETRIES", 24),
			MaxAttemptAgeHours:       getEnvAsInt("SETTLEMENT_MAX_ATTEMPT_AGE_HOURS", 24),
			DailyHour:                getEnvAsInt("SETTLEMENT_DAILY_HOUR", 1),
			ReconcileIntervalMinutes: getEnvAsInt("SETTLEMENT_RECONCILE_INTERVAL_MINUTES", 60),
			AnomalyIntervalHours:     getEnvAsInt("SETTLEMENT_ANOMALY_INTERVAL_HOURS", 6),
		},
		Anomaly: AnomalyConfig{
			HourlyRecordThreshold: getEnvAsInt("ANOMALY_HOURLY_RECORD_THRESHOLD", 10),
			DailyAmountThreshold:  getEnvAsFloat("ANOMALY_DAILY_AMOUNT_THRESHOLD", 5000),
			MinInvitedUsers:       getEnvAsInt("ANOMALY_MIN_INVITED_USERS", 5),
			MinPaidUsers:          getEnvAsInt("ANOMALY_MIN_PAID_USERS", 5),
			MaxConversionRatio:    getEnvAsFloat("ANOMALY_MAX_CONVERSION_RATIO", 0.8),
		},
		Secrets: SecretsConfig{
			Backend:   getEnv("SECRETS_BACKEND", "local"),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
			LocalPath: getEnv("SECRETS_LOCAL_PATH", "./secrets"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Provider.MerchantID == "" {
		return nil, fmt.Errorf("PROVIDER_MERCHANT_ID is required")
	}
	if cfg.Provider.APIKey == "" && cfg.Provider.APIKeyPath == "" {
		return nil, fmt.Errorf("one of PROVIDER_API_KEY or PROVIDER_API_KEY_PATH is required")
	}
	if cfg.Server.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required")
	}

	return cfg, nil
}

// Location resolves the configured settlement timezone
func (c *SettlementConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
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
