package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("INVITATION_TTL", "3d")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("NOTIFY_WORKERS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, cfg.Invitation.TTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowOrigins)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 4, cfg.Notification.Workers)
}
