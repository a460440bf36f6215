package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "carecircle", cfg.Database.Postgres.Database)
	require.Equal(t, "care", cfg.Database.Postgres.Username)

	require.Equal(t, "/var/lib/carecircle/documents", cfg.Storage.Path)

	require.True(t, cfg.Push.Enabled)
	require.Equal(t, "test-public", cfg.Push.VAPIDPublicKey)
	require.Equal(t, "mailto:ops@example.com", cfg.Push.Subscriber)
	require.Equal(t, 3600, cfg.Push.TTL)
	require.Equal(t, 5*time.Second, cfg.Push.Timeout)

	require.Equal(t, "*/1 * * * *", cfg.Scheduler.MedicationSpec)
	require.Equal(t, 45, cfg.Scheduler.RetentionDays)
	// Unset cadences keep their defaults.
	require.Equal(t, "0 18 * * *", cfg.Scheduler.AppointmentSpec)
	require.Equal(t, "0 2 * * *", cfg.Scheduler.RetentionSpec)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "carecircle-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.True(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/carecircle.sqlite", cfg.Database.Path)
	require.False(t, cfg.Push.Enabled)
	require.Equal(t, "*/5 * * * *", cfg.Scheduler.MedicationSpec)
	require.Equal(t, 30, cfg.Scheduler.RetentionDays)
	require.Equal(t, 24*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}
