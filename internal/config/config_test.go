package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DELIVERY_JWT_SECRET", "a-very-long-test-secret")
	t.Setenv("DELIVERY_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("DELIVERY_ROUTING_DEBOUNCE", "250ms")
	t.Setenv("DELIVERY_ROUTING_CANCEL_SUPERSEDED", "true")
	t.Setenv("DELIVERY_DB_PORT", "5433")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8085", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "courier.locations", cfg.Kafka.LocationsTopic)
	assert.Equal(t, 250*time.Millisecond, cfg.Routing.Debounce)
	assert.True(t, cfg.Routing.CancelSuperseded)
	assert.Equal(t, 10*time.Second, cfg.Routing.Timeout)
	assert.Equal(t, 5433, cfg.DB.Port)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_RejectsMissingSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DELIVERY_JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestLoad_RejectsBadRoutingURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DELIVERY_JWT_SECRET", "a-very-long-test-secret")
	t.Setenv("DELIVERY_ROUTING_BASE_URL", "not a url")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("DELIVERY_JWT_SECRET=from-dotenv-secret-value\nDELIVERY_APP_ENV=development\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("DELIVERY_JWT_SECRET")
		_ = os.Unsetenv("DELIVERY_APP_ENV")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "from-dotenv-secret-value", cfg.JWT.Secret)
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "delivery_db", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/delivery_db?sslmode=disable", c.URL())
	assert.Contains(t, c.DSN(), "dbname=delivery_db")
}
