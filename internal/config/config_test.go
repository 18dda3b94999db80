package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Scanner.SweepInterval)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.NotEmpty(t, cfg.CardsDir)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STM_PORT", "9001")
	t.Setenv("STM_CARDS_DIR", "/data/cards")
	t.Setenv("STM_SCAN_INTERVAL", "30s")
	t.Setenv("STM_BATCH_WORKERS", "8")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "/data/cards", cfg.CardsDir)
	assert.Equal(t, 30*time.Second, cfg.Scanner.SweepInterval)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestEnvParseFailureFallsBack(t *testing.T) {
	t.Setenv("STM_PORT", "not a number")
	t.Setenv("STM_SCAN_INTERVAL", "whenever")

	cfg := Load()
	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Scanner.SweepInterval)
}
