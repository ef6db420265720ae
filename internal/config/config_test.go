package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.HTTPPort)
	assert.Equal(t, "local", cfg.StorageType)
	assert.Equal(t, "community-1", cfg.DefaultCommunityID)
	assert.True(t, cfg.SeedDefaults)
	assert.False(t, cfg.AllowAdminRegistration)
	assert.Equal(t, time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry())
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("AUTH_SIMULATED_DELAY", "1s")
	t.Setenv("ALLOW_ADMIN_REGISTRATION", "true")
	t.Setenv("JWT_EXPIRATION_MINUTES", "30")
	t.Setenv("SCHEDULER_INTERVAL", "0s")

	cfg, err := ParseConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, time.Second, cfg.AuthSimulatedDelay)
	assert.True(t, cfg.AllowAdminRegistration)
	assert.Equal(t, 30*time.Minute, cfg.JWTExpiry())
	assert.Zero(t, cfg.SchedulerInterval)
}

func TestParseConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("AUTH_SIMULATED_DELAY", "soon")

	_, err := ParseConfig()
	assert.Error(t, err)
}
