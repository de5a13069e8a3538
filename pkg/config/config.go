// Package config provides configuration management for the reconciliation
// engine. It loads runtime settings from environment variables and .env
// files, and the matching rules from a YAML rules file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	DatabasePath  string
	RulesPath     string
	LogLevel      string
	MinConfidence float64
	ClampOverpay  bool
	Scope         string
}

// Load loads configuration from environment variables.
// It automatically loads a .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	minConfidence, err := parseFloatEnv("RECON_MIN_CONFIDENCE", 0.8)
	if err != nil {
		return nil, fmt.Errorf("invalid RECON_MIN_CONFIDENCE: %w", err)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("RECON_MIN_CONFIDENCE must be in [0,1], got %v", minConfidence)
	}

	config := &Config{
		DatabasePath:  getEnvOrDefault("RECON_DATABASE_PATH", "./ledger.db"),
		RulesPath:     getEnvOrDefault("RECON_RULES_PATH", "./rules.yaml"),
		LogLevel:      getEnvOrDefault("RECON_LOG_LEVEL", "info"),
		MinConfidence: minConfidence,
		ClampOverpay:  os.Getenv("RECON_CLAMP_OVERPAY") == "true",
		Scope:         os.Getenv("RECON_SCOPE"),
	}

	return config, nil
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabasePath == "" {
		missing = append(missing, "RECON_DATABASE_PATH")
	}
	if c.RulesPath == "" {
		missing = append(missing, "RECON_RULES_PATH")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}
	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloatEnv parses a float64 from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value for %s: %s", key, value)
	}

	return parsed, nil
}
