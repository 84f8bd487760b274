package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// VK API configuration
	VKToken           string
	VKRequestInterval time.Duration

	// Persistence
	DatabasePath string

	// Auth configuration
	JWTSecret     string
	TokenLifetime time.Duration
	BcryptCost    int

	// Group metadata refresh schedule (cron expression with seconds)
	GroupSyncSchedule string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		VKToken:           getEnv("VK_TOKEN", ""),
		VKRequestInterval: getDurationEnv("VK_REQUEST_INTERVAL", 300*time.Millisecond),

		DatabasePath: getEnv("DATABASE_PATH", "vk_data.db"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenLifetime: getDurationEnv("TOKEN_LIFETIME", 30*time.Minute),
		BcryptCost:    getIntEnv("BCRYPT_COST", 10),

		// Daily at 6 AM UTC
		GroupSyncSchedule: getEnv("GROUP_SYNC_SCHEDULE", "0 0 6 * * *"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.VKToken == "" {
		return fmt.Errorf("VK_TOKEN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.VKRequestInterval <= 0 {
		return fmt.Errorf("VK_REQUEST_INTERVAL must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
