package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/captable")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.OpsAddr)
	assert.Equal(t, QueueDriverAsynq, cfg.QueueDriver)
	assert.Equal(t, 3, cfg.VerificationMaxAttempts)
	assert.Equal(t, time.Second, cfg.VerificationBackoffBase)
	assert.Equal(t, 10*time.Second, cfg.RegistryTimeout)
	assert.Equal(t, 60*time.Second, cfg.VerificationJobTimeout)
	assert.Equal(t, "company.audit", cfg.KafkaAuditTopic)
	assert.Equal(t, 5*time.Second, cfg.SideEffectTimeout)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileStaleAfter)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUDIT_SINK", "memory")
	t.Setenv("VERIFICATION_MAX_ATTEMPTS", "5")
	t.Setenv("VERIFICATION_BACKOFF_BASE", "250ms")
	t.Setenv("REGISTRY_MODE", "mock")
	t.Setenv("QUEUE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.VerificationMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.VerificationBackoffBase)
	assert.Equal(t, RegistryModeMock, cfg.RegistryMode)
	assert.Equal(t, QueueDriverMemory, cfg.QueueDriver)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUDIT_SINK=memory\nQUEUE_NAME=from-file\n"), 0o600))
	t.Setenv("QUEUE_NAME", "")
	os.Unsetenv("QUEUE_NAME")
	t.Cleanup(func() { os.Unsetenv("AUDIT_SINK") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.QueueName)
}

func TestValidateRejectsJobTimeoutBelowRegistryTimeout(t *testing.T) {
	t.Setenv("AUDIT_SINK", "memory")
	t.Setenv("REGISTRY_TIMEOUT", "30s")
	t.Setenv("VERIFICATION_JOB_TIMEOUT", "30s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERIFICATION_JOB_TIMEOUT")
}

func TestValidateRejectsStaleThresholdWithinJobTimeout(t *testing.T) {
	t.Setenv("AUDIT_SINK", "memory")
	t.Setenv("RECONCILE_STALE_AFTER", "45s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECONCILE_STALE_AFTER")
}

func TestValidateRequiresSinkSettings(t *testing.T) {
	t.Setenv("AUDIT_SINK", "kafka")
	t.Setenv("KAFKA_BROKERS", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestBrokers(t *testing.T) {
	cfg := Config{KafkaBrokers: "a:9092, b:9092,,"}
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
}
