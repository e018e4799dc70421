package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the deed gateway service.
type Config struct {
	Port           string
	Environment    string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	LedgerRPCURL   string
	LedgerRPCToken string
	LedgerTimeout  time.Duration
	LedgerGasLimit uint64
	LedgerMaxFee   uint64
	IdempotencyTTL time.Duration
}

// FromEnv loads configuration from environment variables required by the service.
func FromEnv() (*Config, error) {
	port := getEnvDefault("DEED_PORT", "8080")
	env := getEnvDefault("DEED_ENV", "development")

	dbURL := os.Getenv("DEED_DB_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DEED_DB_URL is required")
	}
	redisURL := os.Getenv("DEED_REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("DEED_REDIS_URL is required")
	}
	jwtSecret := strings.TrimSpace(os.Getenv("DEED_JWT_SECRET"))
	if jwtSecret == "" {
		return nil, fmt.Errorf("DEED_JWT_SECRET is required")
	}
	ledgerURL := os.Getenv("DEED_LEDGER_RPC_URL")
	if ledgerURL == "" {
		return nil, fmt.Errorf("DEED_LEDGER_RPC_URL is required")
	}
	ledgerToken := strings.TrimSpace(os.Getenv("DEED_LEDGER_RPC_TOKEN"))

	timeoutSeconds := parseIntEnv("DEED_LEDGER_TIMEOUT_SECONDS", 15)
	if timeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid DEED_LEDGER_TIMEOUT_SECONDS %d", timeoutSeconds)
	}
	gasLimit := parseUintEnv("DEED_LEDGER_GAS_LIMIT", 2_000_000)
	maxFee := parseUintEnv("DEED_LEDGER_MAX_FEE", 500_000_000)

	ttlSeconds := parseIntEnv("DEED_IDEMPOTENCY_TTL_SECONDS", 86_400)
	if ttlSeconds <= 0 {
		return nil, fmt.Errorf("invalid DEED_IDEMPOTENCY_TTL_SECONDS %d", ttlSeconds)
	}

	return &Config{
		Port:           port,
		Environment:    env,
		DatabaseURL:    dbURL,
		RedisURL:       redisURL,
		JWTSecret:      jwtSecret,
		LedgerRPCURL:   ledgerURL,
		LedgerRPCToken: ledgerToken,
		LedgerTimeout:  time.Duration(timeoutSeconds) * time.Second,
		LedgerGasLimit: gasLimit,
		LedgerMaxFee:   maxFee,
		IdempotencyTTL: time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseUintEnv(key string, fallback uint64) uint64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
