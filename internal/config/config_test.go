package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDRESS", "STORE_DRIVER", "KAFKA_BROKERS", "OUTBOX_BATCH_SIZE", "DLQ_BASE_DELAY", "TIMEZONE", "CONSUMER_TOPICS"} {
		t.Setenv(key, "")
	}

	cfg := fromEnv()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
	require.Equal(t, 50, cfg.DLQBatchSize)
	require.Len(t, cfg.ConsumerTopics, 3)
	require.Equal(t, time.Local, cfg.Location())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("DLQ_POLL_INTERVAL", "45s")
	t.Setenv("TIMEZONE", "Europe/Berlin")

	cfg := fromEnv()
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 25, cfg.OutboxBatchSize, "unparsable ints fall back")
	require.Equal(t, 45*time.Second, cfg.DLQPollInterval)
	require.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLocationFallsBackOnUnknownZone(t *testing.T) {
	cfg := Config{Timezone: "Mars/Olympus_Mons"}
	require.Equal(t, time.Local, cfg.Location())
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("METRICS_ADDRESS=:9999\nCORS_ORIGIN=https://app.example\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("CORS_ORIGIN", "https://override.example")
	t.Setenv("METRICS_ADDRESS", "")
	require.NoError(t, os.Unsetenv("METRICS_ADDRESS"))

	cfg := Load()
	require.Equal(t, ":9999", cfg.MetricsAddress)
	require.Equal(t, "https://override.example", cfg.CORSOrigin)
}
