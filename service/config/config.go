package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL  string
	SolanaNetwork string // "mainnet" or "devnet"

	// Service wallet configuration.
	// Path to a JSON keypair file (solana-keygen format). The server signs
	// create/mint/transfer intents with this key.
	ServiceWalletKeypair string

	// Reconciliation configuration
	PollInterval time.Duration
	HistoryLimit int

	// Orchestration configuration
	SendRetryLimit  int
	LeaseRetryLimit int
	SigningGrace    time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "devnet")
	if cfg.SolanaNetwork != "mainnet" && cfg.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK must be \"mainnet\" or \"devnet\", got %q", cfg.SolanaNetwork))
	}

	// Service wallet configuration
	cfg.ServiceWalletKeypair = os.Getenv("SERVICE_WALLET_KEYPAIR")
	if cfg.ServiceWalletKeypair == "" {
		errs = append(errs, fmt.Errorf("SERVICE_WALLET_KEYPAIR is required"))
	}

	// Reconciliation configuration
	pollInterval, err := parseDuration("POLL_INTERVAL", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	historyLimit, err := parseInt("HISTORY_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryLimit = historyLimit
	}

	// Orchestration configuration
	sendRetries, err := parseInt("SEND_RETRY_LIMIT", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SendRetryLimit = sendRetries
	}

	leaseRetries, err := parseInt("LEASE_RETRY_LIMIT", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LeaseRetryLimit = leaseRetries
	}

	signingGrace, err := parseDuration("SIGNING_GRACE", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SigningGrace = signingGrace
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.SolanaNetwork != "mainnet" && c.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SolanaNetwork must be \"mainnet\" or \"devnet\""))
	}

	if c.ServiceWalletKeypair == "" {
		errs = append(errs, fmt.Errorf("ServiceWalletKeypair is required"))
	}

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}

	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HistoryLimit must be positive"))
	}

	if c.SendRetryLimit < 1 {
		errs = append(errs, fmt.Errorf("SendRetryLimit must be at least 1"))
	}

	if c.LeaseRetryLimit < 1 {
		errs = append(errs, fmt.Errorf("LeaseRetryLimit must be at least 1"))
	}

	if c.SigningGrace <= 0 {
		errs = append(errs, fmt.Errorf("SigningGrace must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
