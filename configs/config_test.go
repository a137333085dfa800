package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndLegacyEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://tutor@localhost/tutor")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PLATFORM_COMMISSION_RATE", "0.2")
	t.Setenv("BUSINESS_PAYMENT_TIMEOUT", "5m")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://tutor@localhost/tutor", cfg.Database.DSN)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.InDelta(t, 0.2, cfg.Business.PlatformFeeRate, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Business.PaymentTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Business.ReconcileGrace)
	assert.Equal(t, 60, cfg.Business.LessonMinutes)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "log", cfg.Events.Driver)
	assert.False(t, cfg.PayPal.Enabled())
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
database:
  driver: sqlite
  dsn: "file:tutor.db"
events:
  driver: nats
  nats_url: nats://localhost:4222
paypal:
  client_id: id
  client_secret: secret
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "nats", cfg.Events.Driver)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATSURL)
	assert.True(t, cfg.PayPal.Enabled())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://tutor@localhost/tutor")
	_, err := Load("")
	assert.ErrorContains(t, err, "jwt secret")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("EVENTS_DRIVER", "carrier-pigeon")
	_, err = Load("")
	assert.ErrorContains(t, err, "events driver")
}
