// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/ditm/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Market data gateway
	SchwabBaseURL     string
	SchwabToken       string
	SchwabMaxRetries  int
	SchwabDelayMillis int // pause between per-ticker requests

	// Scanning
	ScanWorkers    int
	DefaultTickers []string // seeds the watchlist on startup when it is empty
	PresetsPath    string   // optional JSON file overriding built-in presets
	RiskFreeRate   float64  // annualized, used by risk-adjusted return metrics
	TargetCapital  float64  // default capital when a scan request omits it

	// Position refresh schedule (cron expression with seconds field)
	RefreshSchedule string

	Backup *BackupConfig
}

// BackupConfig holds remote database backup configuration
type BackupConfig struct {
	Enabled         bool
	Schedule        string // cron expression with seconds field
	Bucket          string
	Prefix          string
	AccountID       string // R2 account, forms the endpoint URL
	AccessKeyID     string
	SecretAccessKey string
	Retention       int // days a remote backup is kept before rotation
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DITM_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("DITM_PORT", 8452),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		SchwabBaseURL:     getEnv("SCHWAB_BASE_URL", "https://api.schwabapi.com"),
		SchwabToken:       getEnv("SCHWAB_TOKEN", ""),
		SchwabMaxRetries:  getEnvAsInt("SCHWAB_MAX_RETRIES", 3),
		SchwabDelayMillis: getEnvAsInt("SCHWAB_DELAY_MS", 250),
		ScanWorkers:       getEnvAsInt("SCAN_WORKERS", 4),
		DefaultTickers:    utils.ParseCSV(getEnv("DITM_TICKERS", "")),
		PresetsPath:       getEnv("PRESETS_PATH", ""),
		RiskFreeRate:      getEnvAsFloat("RISK_FREE_RATE", 0.0),
		TargetCapital:     getEnvAsFloat("TARGET_CAPITAL", 100000),
		RefreshSchedule:   getEnv("REFRESH_SCHEDULE", "0 30 16 * * MON-FRI"),
		Backup:            loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ScanWorkers < 1 {
		return fmt.Errorf("SCAN_WORKERS must be at least 1, got %d", c.ScanWorkers)
	}
	if c.TargetCapital <= 0 {
		return fmt.Errorf("TARGET_CAPITAL must be positive, got %.2f", c.TargetCapital)
	}
	if c.Backup.Enabled {
		if c.Backup.Bucket == "" || c.Backup.AccountID == "" {
			return fmt.Errorf("backup enabled but R2_BUCKET or R2_ACCOUNT_ID missing")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup enabled but R2 credentials missing")
		}
	}
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
		Bucket:          getEnv("R2_BUCKET", ""),
		Prefix:          getEnv("R2_PREFIX", "ditm-backups"),
		AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		Retention:       getEnvAsInt("BACKUP_RETENTION", 14),
	}
}
