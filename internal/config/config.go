// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SyncConfig holds the exchange-rate engine tunables. It is built once at
// startup and passed in by value; nothing mutates it afterwards.
type SyncConfig struct {
	// InsertBatchSize is the number of rate rows written per batch.
	InsertBatchSize int

	// RefreshWindow bounds how far back an already-stored rate may be
	// rewritten by a provider revision.
	RefreshWindow time.Duration

	// RefreshThreshold is the minimum relative difference between the
	// stored and freshly fetched rate for an update to be worth writing.
	RefreshThreshold float64

	// ProbeWindow is how far back ticker discovery looks when testing
	// whether a candidate symbol returns any quotes.
	ProbeWindow time.Duration

	// ProgressEvery is the date-scan interval between progress events
	// during gap analysis.
	ProgressEvery int
}

// DefaultSyncConfig returns the engine defaults.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		InsertBatchSize:  500,
		RefreshWindow:    7 * 24 * time.Hour,
		RefreshThreshold: 0.001,
		ProbeWindow:      5 * 24 * time.Hour,
		ProgressEvery:    100,
	}
}

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the database (always absolute)
	Port         int
	DevMode      bool
	LogLevel     string
	SyncSchedule string // cron expression for the nightly rate sync
	Sync         SyncConfig
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FXSYNC_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".fxsync")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sync := DefaultSyncConfig()
	sync.InsertBatchSize = getEnvAsInt("FXSYNC_INSERT_BATCH", sync.InsertBatchSize)
	sync.RefreshThreshold = getEnvAsFloat("FXSYNC_REFRESH_THRESHOLD", sync.RefreshThreshold)
	if days := getEnvAsInt("FXSYNC_REFRESH_WINDOW_DAYS", 0); days > 0 {
		sync.RefreshWindow = time.Duration(days) * 24 * time.Hour
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("FXSYNC_PORT", 8090),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SyncSchedule: getEnv("FXSYNC_SCHEDULE", "@daily"),
		Sync:         sync,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Sync.InsertBatchSize <= 0 {
		return fmt.Errorf("insert batch size must be positive, got %d", c.Sync.InsertBatchSize)
	}
	if c.Sync.RefreshThreshold < 0 {
		return fmt.Errorf("refresh threshold must not be negative, got %f", c.Sync.RefreshThreshold)
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
