package config

import (
	"os"
	"strconv"
	"time"
)

type LedgerConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		MaxRetries:      getEnvAsInt("LEDGER_MAX_RETRIES", 3),
		RetryBackoff:    getEnvAsDuration("LEDGER_RETRY_BACKOFF", 50*time.Millisecond),
		DefaultPageSize: getEnvAsInt("LEDGER_DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:     getEnvAsInt("LEDGER_MAX_PAGE_SIZE", 100),
	}
}

type GenerationConfig struct {
	WorkerURL      string
	CoinCost       int64
	RequestTimeout time.Duration
}

func LoadGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		WorkerURL:      getEnv("GENERATION_WORKER_URL", "http://localhost:9090/generate"),
		CoinCost:       int64(getEnvAsInt("GENERATION_COIN_COST", 30)),
		RequestTimeout: getEnvAsDuration("GENERATION_REQUEST_TIMEOUT", 60*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
