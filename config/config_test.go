package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.StockCacheTTL)
	assert.Equal(t, int64(5<<20), cfg.MaxProofBytes)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_PROOF_BYTES", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MAX_PROOF_BYTES", "lots")
	_, err = Load()
	assert.Error(t, err)
}
