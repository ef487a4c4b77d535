package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "archivist.notifications", cfg.Kafka.Topic)
	assert.Equal(t, 10, cfg.Workflow.ReasonMinLength)
	assert.Equal(t, 3*time.Second, cfg.Workflow.CredentialTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, k2:9092 ,k1:9092")
	t.Setenv("SESSION_TIMEOUT_MIN", "15m")
	t.Setenv("SESSION_TIMEOUT_MAX", "8h")
	t.Setenv("ARCHIVIST_SEED_FILE", "/etc/archivist/seed.yaml")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/etc/archivist/seed.yaml", cfg.Workflow.SeedFile)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Workflow.SessionTimeoutMin)
	assert.Equal(t, 8*time.Hour, cfg.Workflow.SessionTimeoutMax)
}

func TestFromEnvRejectsInvertedBounds(t *testing.T) {
	t.Setenv("SESSION_TIMEOUT_MIN", "2h")
	t.Setenv("SESSION_TIMEOUT_MAX", "30m")

	_, err := FromEnv()
	require.Error(t, err)
}
