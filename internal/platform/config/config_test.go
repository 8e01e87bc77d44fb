package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DefaultPerOpCap, cfg.PerOpCap)
	assert.Equal(t, DefaultGlobalCap, cfg.GlobalCap)
	assert.Equal(t, "nymreg.events", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("NYMREG_ADDR", ":9999")
	t.Setenv("NYMREG_PER_OP_CAP", "50")
	t.Setenv("NYMREG_GLOBAL_CAP", "5000")
	t.Setenv("NYMREG_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, uint64(50), cfg.PerOpCap)
	assert.Equal(t, uint64(5000), cfg.GlobalCap)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestFromEnvRejections(t *testing.T) {
	t.Run("malformed cap", func(t *testing.T) {
		t.Setenv("NYMREG_PER_OP_CAP", "lots")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("per-op cap above global cap", func(t *testing.T) {
		t.Setenv("NYMREG_PER_OP_CAP", "200")
		t.Setenv("NYMREG_GLOBAL_CAP", "100")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
