package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the ST-Manager server.
type Config struct {
	Port      int
	Version   string
	CardsDir  string
	DataDir   string
	Scanner   ScannerConfig
	Batch     BatchConfig
	Telemetry TelemetryConfig
}

// ScannerConfig tunes the background filesystem reconciler.
type ScannerConfig struct {
	SweepInterval time.Duration
	Debounce      time.Duration
}

// BatchConfig tunes automation batch execution.
type BatchConfig struct {
	Workers     int
	DeepTimeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	home, _ := os.UserHomeDir()
	defaultData := filepath.Join(home, ".st-manager")
	return &Config{
		Port:     envInt("STM_PORT", 8787),
		Version:  envStr("STM_VERSION", "0.4.0"),
		CardsDir: envStr("STM_CARDS_DIR", filepath.Join(defaultData, "cards")),
		DataDir:  envStr("STM_DATA_DIR", defaultData),
		Scanner: ScannerConfig{
			SweepInterval: envDur("STM_SCAN_INTERVAL", 5*time.Minute),
			Debounce:      envDur("STM_SCAN_DEBOUNCE", 500*time.Millisecond),
		},
		Batch: BatchConfig{
			Workers:     envInt("STM_BATCH_WORKERS", 4),
			DeepTimeout: envDur("STM_DEEP_TIMEOUT", 10*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "st-manager"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
